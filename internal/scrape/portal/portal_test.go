package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modelsHTML = `
<html><body>
  <table class="other"><tr><th>x</th></tr><tr><td>1</td><td>2</td></tr></table>
  <table class="models-table">
    <tr><th> id </th><th>name</th></tr>
    <tr><td>m2</td><td> Model 2 </td></tr>
    <tr><td>lonely</td></tr>
  </table>
</body></html>`

func fixedScraper(url, token string) *Scraper {
	s := New(url, token, time.Second)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestNormalizeModelsHandlesVariedFieldNames(t *testing.T) {
	out := NormalizeModels([]any{
		map[string]any{
			"model_id":             "model-a",
			"display_name":         "Model A",
			"parameters":           map[string]any{"top_p": 0.9},
			"recommended_settings": map[string]any{"temperature": 0.7},
		},
		map[string]any{"name": "only-name"},
		"junk",
	}, "now")

	require.Len(t, out, 2)
	assert.Equal(t, "model-a", out[0]["id"])
	assert.Equal(t, "Model A", out[0]["name"])
	assert.Equal(t, "latest", out[0]["version"])
	assert.Equal(t, "active", out[0]["status"])
	assert.Equal(t, map[string]any{"top_p": 0.9, "temperature": 0.7}, out[0]["parameters"])
	assert.Equal(t, "only-name", out[1]["id"])
	assert.Equal(t, "now", out[1]["scraped_at"])
}

func TestParseTablePrefersModelsTable(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(modelsHTML))
	require.NoError(t, err)

	models := ParseTable(doc, "now")
	require.Len(t, models, 1)
	assert.Equal(t, Model{"id": "m2", "name": "Model 2", "scraped_at": "now"}, models[0])
}

func TestScrapeModelsUsesAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/models", r.URL.Path)
		assert.Equal(t, "Bearer portal-token", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":"m1","name":"Model 1","parameters":{"top_p":0.9}}]`))
	}))
	defer srv.Close()

	models := fixedScraper(srv.URL+"/", "portal-token").ScrapeModels(context.Background())
	require.Len(t, models, 1)
	assert.Equal(t, "m1", models[0]["id"])
	assert.Equal(t, 0.9, models[0]["parameters"].(map[string]any)["top_p"])
	assert.Equal(t, "2026-01-02T03:04:05Z", models[0]["scraped_at"])
}

func TestScrapeModelsFallsBackToHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.Write([]byte(modelsHTML))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	models := fixedScraper(srv.URL, "").ScrapeModels(context.Background())
	require.Len(t, models, 1)
	assert.Equal(t, "m2", models[0]["id"])
	assert.Equal(t, "Model 2", models[0]["name"])
}

func TestScrapeModelsEmptyWhenEverythingFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	assert.Empty(t, fixedScraper(srv.URL, "").ScrapeModels(context.Background()))
}

func TestCheckForChanges(t *testing.T) {
	current := []Model{
		{"id": "keep", "name": "Keep", "status": "active", "scraped_at": "b"},
		{"id": "same", "name": "Same", "scraped_at": "b"},
		{"id": "new", "name": "New", "status": "active"},
	}
	previous := []Model{
		{"id": "keep", "name": "Keep", "status": "inactive", "scraped_at": "a"},
		{"id": "same", "name": "Same", "scraped_at": "a"},
		{"id": "old", "name": "Old", "status": "active"},
	}

	changes := CheckForChanges(previous, current, "now")

	assert.True(t, changes.HasChanges)
	require.Len(t, changes.Added, 1)
	require.Len(t, changes.Removed, 1)
	require.Len(t, changes.Modified, 1)
	assert.Equal(t, "new", changes.Added[0]["id"])
	assert.Equal(t, "old", changes.Removed[0]["id"])
	assert.Equal(t, "keep", changes.Modified[0].ID)
	assert.Equal(t, "inactive", changes.Modified[0].Previous["status"])

	none := CheckForChanges(current, current, "now")
	assert.False(t, none.HasChanges)
	assert.Equal(t, []Model{}, none.Added)
}

func TestPreviousSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".cache", "models.json")

	assert.Empty(t, LoadPrevious(path))

	require.NoError(t, SavePrevious(path, []Model{{"id": "m1"}}))
	assert.Equal(t, []Model{{"id": "m1"}}, LoadPrevious(path))

	doc := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{"models":[{"id":"m2"}],"changes":{}}`), 0644))
	assert.Equal(t, []Model{{"id": "m2"}}, LoadPrevious(doc))
}

func TestRunWithDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/models":
			w.Write([]byte(`[{"id":"m1"},{"id":"m2"}]`))
		case "/api/models/m1":
			w.Write([]byte(`{"context_length": 32768}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	doc := fixedScraper(srv.URL, "").Run(context.Background(), srv.URL, []Model{{"id": "m2"}}, true)

	assert.Equal(t, 2, doc.Metadata.ModelCount)
	assert.Equal(t, srv.URL, doc.Metadata.PortalURL)
	assert.Equal(t, 32768.0, doc.Models[0]["details"].(map[string]any)["context_length"])
	assert.Equal(t, map[string]any{}, doc.Models[1]["details"])
	assert.Len(t, doc.Changes.Added, 1)
	assert.Len(t, doc.Changes.Modified, 1)
}
