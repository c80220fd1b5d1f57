package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
)

func TestExtractReadme(t *testing.T) {
	text := `
    temperature: 0.65
    top_p=0.91
    - Top-K: 48
    "repetition_penalty": 1.08
    generate(max_new_tokens = 4096)
    `
	got := ExtractReadme(text)

	assert.Equal(t, chatparams.Params{
		"temperature":        0.65,
		"top_p":              0.91,
		"top_k":              48,
		"repetition_penalty": 1.08,
		"max_tokens":         4096,
	}, got)
	assert.Empty(t, ExtractReadme(""))
	assert.Empty(t, ExtractReadme("no numbers here, temperature is warm"))
}

func TestExtractReadmeFirstAliasWins(t *testing.T) {
	got := ExtractReadme("num_predict: 256\nmax_tokens: 1024\n")
	assert.Equal(t, 1024.0, got["max_tokens"])
}

func TestExtractCardPrefersDefaultParams(t *testing.T) {
	got := ExtractCard(map[string]any{
		"default_params": map[string]any{"Temperature": "0,3", "do_sample": true},
		"generation_config": map[string]any{
			"temperature":    0.9,
			"max_new_tokens": 512.0,
		},
	})
	assert.Equal(t, chatparams.Params{"temperature": 0.3, "max_tokens": 512}, got)
	assert.Empty(t, ExtractCard("nope"))
}

func TestExtractGenerationCanonicalNameWins(t *testing.T) {
	got := ExtractGeneration(map[string]any{
		"max_new_tokens": 256.0,
		"max_tokens":     1024.0,
		"bos_token_id":   1.0,
		"eos_token_id":   []any{1.0, 2.0},
	})
	assert.Equal(t, chatparams.Params{"max_tokens": 1024, "bos_token_id": 1}, got)
}

func TestPickBestID(t *testing.T) {
	candidates := []any{
		map[string]any{"id": "someone/Qwen3-Coder-30B-GGUF"},
		map[string]any{"id": "Qwen3-Coder-30B"},
		"junk",
		map[string]any{"id": "  "},
	}
	assert.Equal(t, "Qwen3-Coder-30B", PickBestID("qwen3 coder 30b", candidates))
	// Equal containment scores keep the earlier hit.
	assert.Equal(t, "someone/Qwen3-Coder-30B-GGUF", PickBestID("Coder-30B", candidates))
	assert.Equal(t, "", PickBestID("x", nil))

	// A zero score still picks the first usable candidate.
	assert.Equal(t, "a/b", PickBestID("zzz", []any{map[string]any{"id": "a/b"}, map[string]any{"id": "c/d"}}))
}

func TestCollectModelNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"models": ["a", {"name": "b", "id": "c"}, "a", 3]}`), 0644))

	assert.Equal(t, []string{"a", "b", "c", "d"}, CollectModelNames(path, " d , a,", ""))
	assert.Equal(t, []string{"target"}, CollectModelNames(filepath.Join(dir, "missing.json"), "", " target "))
	assert.Equal(t, []string{DefaultTargetModel}, CollectModelNames("", "", ""))
}

func TestPickSelected(t *testing.T) {
	names := []string{"Ministral-3-14B", "Qwen3-Coder"}
	assert.Equal(t, "Qwen3-Coder", PickSelected(names, "qwen3 coder"))
	assert.Equal(t, "Other", PickSelected(names, "Other"))
	assert.Equal(t, "Ministral-3-14B", PickSelected(names, ""))
	assert.Equal(t, DefaultTargetModel, PickSelected(nil, ""))
}

func TestBuildOutputFallsBackToFirstResult(t *testing.T) {
	id := "org/first"
	results := []*ModelResult{
		{ModelName: "first", HFModelID: &id, Source: SourceScrape, Hyperparameters: chatparams.Params{"temperature": 0.42}},
		{ModelName: "second", Source: SourceNoHFMatch, Hyperparameters: chatparams.Params{"temperature": 0.9}},
	}
	defaults := chatparams.DefaultProfiles().Fallback

	out := BuildOutput(results, "missing", defaults, true)
	assert.Equal(t, 0.42, out.Temperature)
	assert.Equal(t, defaults["top_p"], out.TopP)
	assert.Equal(t, SourceScrape, out.Source)
	assert.Equal(t, &id, out.SelectedHFModelID)
	assert.Equal(t, 2, out.ScrapeMetadata.ModelCount)

	out = BuildOutput(results, "second", defaults, false)
	assert.Equal(t, 0.9, out.Temperature)
	assert.Nil(t, out.SelectedHFModelID)

	empty := BuildOutput(nil, "x", defaults, false)
	assert.Equal(t, SourceFallback, empty.Source)
	assert.Equal(t, defaults["max_tokens"], empty.MaxTokens)
}

// hubServer fakes the Hub API and raw README downloads.
func hubServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/api/models":
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			if r.URL.Query().Get("search") == "Ministral-3-14B-Instruct" {
				w.Write([]byte(`[{"id":"mistralai/Ministral-3-14B-Instruct"},{"id":"mistralai/Ministral-3-14B-Instruct-GGUF"}]`))
				return
			}
			w.Write([]byte(`[]`))
		case "/api/models/mistralai/Ministral-3-14B-Instruct":
			assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{
				"cardData": map[string]any{"default_params": map[string]any{"top_p": 0.6}},
				"config": map[string]any{
					"chat_template":     "{{ messages }}",
					"generation_config": map[string]any{"temperature": 0.3, "top_k": 30, "bos_token_id": 1},
				},
			})
		case "/mistralai/Ministral-3-14B-Instruct/raw/main/README.md":
			w.Write([]byte("We recommend temperature = 0.15 for most tasks.\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestScraper(srv *httptest.Server, cacheDir string) *Scraper {
	return New(Options{
		APIBase:     srv.URL + "/api",
		SiteBase:    srv.URL,
		Token:       "hf-token",
		CacheDir:    cacheDir,
		Concurrency: 2,
	})
}

func TestScrapeModelMergesLayers(t *testing.T) {
	var hits atomic.Int32
	srv := hubServer(t, &hits)
	s := newTestScraper(srv, "")

	r := s.ScrapeModel(context.Background(), "Ministral-3-14B-Instruct")

	require.NotNil(t, r.HFModelID)
	assert.Equal(t, "mistralai/Ministral-3-14B-Instruct", *r.HFModelID)
	assert.Equal(t, SourceScrape, r.Source)
	assert.Equal(t, 0.15, r.Hyperparameters["temperature"])
	assert.Equal(t, 0.6, r.Hyperparameters["top_p"])
	assert.Equal(t, 30.0, r.Hyperparameters["top_k"])
	assert.Equal(t, 4096.0, r.Hyperparameters["max_tokens"])
	assert.Equal(t, 1.0, r.Hyperparameters["bos_token_id"])
	assert.Equal(t, chatparams.Params{"temperature": 0.15}, r.ReadmeHyperparameters)
	require.NotNil(t, r.ChatTemplate)
	assert.Equal(t, "{{ messages }}", *r.ChatTemplate)
	assert.Equal(t, 0.3, r.GenerationConfig["temperature"])
}

func TestScrapeModelWithoutMatchUsesFamily(t *testing.T) {
	var hits atomic.Int32
	srv := hubServer(t, &hits)
	s := newTestScraper(srv, "")

	r := s.ScrapeModel(context.Background(), "qwen-unknown")

	assert.Nil(t, r.HFModelID)
	assert.Equal(t, SourceNoHFMatch, r.Source)
	assert.Equal(t, chatparams.DefaultProfiles().FamilyParams("qwen"), r.Hyperparameters)
	assert.Nil(t, r.ChatTemplate)
	assert.Empty(t, r.GenerationConfig)
}

func TestScrapeModelRepoWithoutDataIsFallback(t *testing.T) {
	var hits atomic.Int32
	srv := hubServer(t, &hits)
	s := newTestScraper(srv, "")

	r := s.ScrapeModel(context.Background(), "org/missing-llama")

	require.NotNil(t, r.HFModelID)
	assert.Equal(t, SourceFallback, r.Source)
	assert.Equal(t, chatparams.DefaultProfiles().FamilyParams("llama"), r.Hyperparameters)
}

func TestScrapeAllKeepsOrder(t *testing.T) {
	var hits atomic.Int32
	srv := hubServer(t, &hits)
	s := newTestScraper(srv, "")

	names := []string{"a", "Ministral-3-14B-Instruct", "b"}
	results := s.ScrapeAll(context.Background(), names)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, names[i], r.ModelName)
	}
	assert.Equal(t, SourceScrape, results[1].Source)
}

func TestCacheServesOfflineRuns(t *testing.T) {
	var hits atomic.Int32
	srv := hubServer(t, &hits)
	cacheDir := t.TempDir()

	first := newTestScraper(srv, cacheDir).ScrapeModel(context.Background(), "Ministral-3-14B-Instruct")
	online := hits.Load()
	require.Positive(t, online)

	cached := newTestScraper(srv, cacheDir).ScrapeModel(context.Background(), "Ministral-3-14B-Instruct")
	assert.Equal(t, online, hits.Load())
	assert.Equal(t, first.Hyperparameters, cached.Hyperparameters)

	srv.Close()
	offline := New(Options{APIBase: srv.URL + "/api", SiteBase: srv.URL, CacheDir: cacheDir, Offline: true})
	again := offline.ScrapeModel(context.Background(), "Ministral-3-14B-Instruct")
	assert.Equal(t, first.Hyperparameters, again.Hyperparameters)

	miss := offline.ScrapeModel(context.Background(), "never-seen")
	assert.Equal(t, SourceNoHFMatch, miss.Source)
}
