package discovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mittwald/owui-bootstrap/internal/config"
)

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, NormalizeBaseURL("  "))
	assert.Equal(t, "https://example.test/v1", NormalizeBaseURL(" https://example.test/v1// "))
}

func TestExtractModelIDsDeduplicatesAndPreservesOrder(t *testing.T) {
	payload := map[string]any{"data": []any{
		map[string]any{"id": "Ministral-3-14B-Instruct-2512"},
		map[string]any{"name": "Whisper-Large-V3-Turbo"},
		map[string]any{"id": "Ministral-3-14B-Instruct-2512"},
		"garbage",
		map[string]any{"id": "  "},
		map[string]any{"id": "Qwen3-Embedding-8B"},
	}}

	assert.Equal(t, []string{
		"Ministral-3-14B-Instruct-2512",
		"Whisper-Large-V3-Turbo",
		"Qwen3-Embedding-8B",
	}, ExtractModelIDs(payload))
	assert.Empty(t, ExtractModelIDs(map[string]any{"data": "nope"}))
}

func TestClassifyPicksDefaults(t *testing.T) {
	c := Classify([]string{
		"Qwen3-Embedding-8B",
		"Ministral-3-14B-Instruct-2512",
		"Whisper-Large-V3-Turbo",
		"BGE-Reranker-v2",
	}, Hints{})

	assert.Equal(t, []string{"Ministral-3-14B-Instruct-2512"}, c.ChatCandidates)
	assert.Equal(t, "Ministral-3-14B-Instruct-2512", c.DefaultChat)
	assert.Equal(t, "Qwen3-Embedding-8B", c.DefaultEmbedding)
	assert.Equal(t, "Whisper-Large-V3-Turbo", c.DefaultWhisper)
	assert.Equal(t, "BGE-Reranker-v2", c.DefaultReranking)
}

func TestClassifyChatPriorityAndHints(t *testing.T) {
	ids := []string{"gpt-oss-120b", "Ministral-3-14B-Instruct-2512", "Qwen3-Embedding-8B"}

	assert.Equal(t, "Ministral-3-14B-Instruct-2512", Classify(ids, Hints{}).DefaultChat)
	assert.Equal(t, "gpt-oss-120b", Classify(ids, Hints{Chat: "GPT-OSS"}).DefaultChat)
	assert.Equal(t, "gpt-oss-120b", Classify(ids, Hints{ChatPriority: []string{"qwen", "gpt"}}).DefaultChat)
	// An unmatched hint falls back to the first candidate, not the priority list.
	assert.Equal(t, "gpt-oss-120b", Classify(ids, Hints{Chat: "llama"}).DefaultChat)

	empty := Classify(nil, Hints{})
	assert.Empty(t, empty.DefaultChat)
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, []string{"ministral", "qwen"}, ParsePriority(" Ministral, ,QWEN "))
}

func TestClassificationJSONUsesNullDefaults(t *testing.T) {
	raw, err := json.Marshal(Classify([]string{"chat-a"}, Hints{}))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "chat-a", doc["default_chat_model"])
	assert.Nil(t, doc["default_embedding_model"])
	assert.Equal(t, []any{}, doc["whisper_candidates"])
}

type fakeProber map[string]bool

func (f fakeProber) ProbeEmbeddings(_ context.Context, model string) (bool, string) {
	if f[model] {
		return true, "ok"
	}
	return false, "http_400"
}

func TestSelectEmbeddingModelProbesUntilSupported(t *testing.T) {
	selected, checks := SelectEmbeddingModel(context.Background(), fakeProber{"Emb-B": true, "Emb-C": true},
		[]string{"Emb-A", "Emb-B", "Emb-C"})

	assert.Equal(t, "Emb-B", selected)
	assert.Equal(t, ProbeCheck{Supported: false, Reason: "http_400"}, checks["Emb-A"])
	assert.True(t, checks["Emb-B"].Supported)
	assert.NotContains(t, checks, "Emb-C")
}

func TestMergeInjectsModelsAndAudioDefaults(t *testing.T) {
	record := config.Record{"openai": map[string]any{
		"enable":        true,
		"api_base_urls": []any{"https://api.openai.com/v1"},
		"api_keys":      []any{"sk-openai"},
		"api_configs":   map[string]any{"0": map[string]any{"enable": true, "model_ids": []any{"gpt-4.1"}}},
	}}
	models := []string{"Ministral-3-14B-Instruct-2512", "Qwen3-Embedding-8B", "Whisper-Large-V3-Turbo"}

	out := MergeProviderConfig(record, MergeOptions{
		BaseURL:     DefaultBaseURL,
		APIKey:      "mw-key",
		ProviderTag: "mittwald",
		ModelIDs:    models,
		Selected: Classification{
			DefaultChat:      "Ministral-3-14B-Instruct-2512",
			DefaultEmbedding: "Qwen3-Embedding-8B",
			DefaultWhisper:   "Whisper-Large-V3-Turbo",
		},
		ConfigureAudioSTT:     true,
		SetDefaultModel:       true,
		ConfigureRAGEmbedding: true,
	})

	oa := out["openai"].(map[string]any)
	assert.Equal(t, []string{"https://api.openai.com/v1", DefaultBaseURL}, oa["api_base_urls"])
	assert.Equal(t, []string{"sk-openai", "mw-key"}, oa["api_keys"])
	target := oa["api_configs"].(map[string]any)["1"].(map[string]any)
	assert.Equal(t, true, target["enable"])
	assert.Equal(t, "external", target["connection_type"])
	assert.Equal(t, []string{"mittwald", "auto-discovered"}, target["tags"])
	assert.Equal(t, models, target["model_ids"])

	stt := out["audio"].(map[string]any)["stt"].(map[string]any)
	assert.Equal(t, "openai", stt["engine"])
	assert.Equal(t, "Whisper-Large-V3-Turbo", stt["model"])
	assert.Equal(t, DefaultSTTContentTypes, stt["supported_content_types"])
	assert.Equal(t, DefaultBaseURL, stt["openai"].(map[string]any)["api_base_url"])
	assert.Equal(t, "mw-key", stt["openai"].(map[string]any)["api_key"])

	assert.Equal(t, "Ministral-3-14B-Instruct-2512", out["ui"].(map[string]any)["default_models"])
	rag := out["rag"].(map[string]any)
	assert.Equal(t, "openai", rag["embedding_engine"])
	assert.Equal(t, "Qwen3-Embedding-8B", rag["embedding_model"])
	assert.Equal(t, DefaultBaseURL, rag["openai_api_base_url"])
	assert.Equal(t, "mw-key", rag["openai_api_key"])
	assert.NotContains(t, rag, "reranking_model")
	assert.Equal(t, 0, out["version"])
}

func TestMergeWithoutDiscoveryKeepsExistingModelIDs(t *testing.T) {
	record := config.Record{
		"version": 3.0,
		"openai": map[string]any{
			"api_base_urls": []any{DefaultBaseURL},
			"api_keys":      []any{"old-key"},
			"api_configs": map[string]any{"0": map[string]any{
				"model_ids":       []any{"already-present"},
				"connection_type": "local",
				"tags":            []any{"mittwald"},
			}},
		},
	}

	out := MergeProviderConfig(record, MergeOptions{BaseURL: DefaultBaseURL + "/", APIKey: "new-key", ProviderTag: "mittwald"})

	oa := out["openai"].(map[string]any)
	assert.Equal(t, []string{"new-key"}, oa["api_keys"])
	target := oa["api_configs"].(map[string]any)["0"].(map[string]any)
	assert.Equal(t, []any{"already-present"}, target["model_ids"])
	assert.Equal(t, "local", target["connection_type"])
	assert.Equal(t, []string{"mittwald", "auto-discovered"}, target["tags"])
	assert.NotContains(t, out, "audio")
	assert.NotContains(t, out, "ui")
	assert.Equal(t, 3.0, out["version"])
}

func TestMergeDoesNotReindexExistingProvider(t *testing.T) {
	record := config.Record{"openai": map[string]any{
		"api_base_urls": []any{"https://api.openai.com/v1"},
		"api_keys":      []any{"openai-key"},
		"api_configs":   map[string]any{"0": map[string]any{"model_ids": []any{"gpt-4.1"}, "tags": []any{"openai"}}},
	}}

	out := MergeProviderConfig(record, MergeOptions{
		BaseURL:  DefaultBaseURL,
		APIKey:   "mw-key",
		ModelIDs: []string{"Ministral-3-14B-Instruct-2512"},
		Selected: Classification{DefaultReranking: "BGE-Reranker-v2"},
	})

	oa := out["openai"].(map[string]any)
	assert.Equal(t, []string{"openai-key", "mw-key"}, oa["api_keys"])
	configs := oa["api_configs"].(map[string]any)
	assert.Equal(t, []any{"openai"}, configs["0"].(map[string]any)["tags"])
	assert.Equal(t, []string{"Ministral-3-14B-Instruct-2512"}, configs["1"].(map[string]any)["model_ids"])
	assert.NotContains(t, out, "rag")
}

func TestMergeSetsRerankingWhenEnabled(t *testing.T) {
	out := MergeProviderConfig(nil, MergeOptions{
		APIKey:            "k",
		Selected:          Classification{DefaultReranking: "BGE-Reranker-v2"},
		SetRerankingModel: true,
	})
	assert.Equal(t, "BGE-Reranker-v2", out["rag"].(map[string]any)["reranking_model"])
}

func TestDiffModels(t *testing.T) {
	d := DiffModels([]string{"b", "a", "c"}, []string{"c", "e", "d"})
	assert.True(t, d.Changed)
	assert.Equal(t, []string{"d", "e"}, d.Added)
	assert.Equal(t, []string{"a", "b"}, d.Removed)

	same := DiffModels([]string{"a"}, []string{"a"})
	assert.False(t, same.Changed)
	assert.Equal(t, []string{}, same.Added)
}

// providerServer fakes an OpenAI-compatible API under /v1.
func providerServer(t *testing.T, embeddings map[string]int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mw-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"Qwen3-Embedding-8B"},{"id":"BGE-Embedding-Legacy"},{"id":"Ministral-3-14B-Instruct-2512"},{"id":"Whisper-Large-V3-Turbo"}]}`))
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch embeddings[req.Model] {
		case http.StatusOK:
			w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}]}`))
		case http.StatusNoContent:
			w.Write([]byte(`{"object":"list","data":[]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"not an embedding model","type":"invalid_request_error"}}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientListModelsAndProbe(t *testing.T) {
	srv := providerServer(t, map[string]int{"good": http.StatusOK, "empty": http.StatusNoContent})
	ctx := context.Background()

	c := NewClient(ClientOptions{BaseURL: srv.URL + "/v1/", APIKey: "mw-key", Verify: true, Timeout: 5 * time.Second})
	models, err := c.ListModels(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 4)

	ok, reason := c.ProbeEmbeddings(ctx, "good")
	assert.True(t, ok)
	assert.Equal(t, "ok", reason)

	ok, reason = c.ProbeEmbeddings(ctx, "empty")
	assert.False(t, ok)
	assert.Equal(t, "missing_data", reason)

	ok, reason = c.ProbeEmbeddings(ctx, "bad")
	assert.False(t, ok)
	assert.Equal(t, "http_400", reason)

	disabled := NewClient(ClientOptions{BaseURL: srv.URL + "/v1", APIKey: "mw-key"})
	ok, reason = disabled.ProbeEmbeddings(ctx, "bad")
	assert.True(t, ok)
	assert.Equal(t, "probe_disabled", reason)
}

func TestClientListModelsHTTPError(t *testing.T) {
	srv := providerServer(t, nil)
	c := NewClient(ClientOptions{BaseURL: srv.URL + "/v1", APIKey: "wrong"})

	_, err := c.ListModels(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestProbeNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(ClientOptions{BaseURL: url, APIKey: "k", Verify: true, Timeout: time.Second})
	ok, reason := c.ProbeEmbeddings(context.Background(), "m")
	assert.False(t, ok)
	assert.Contains(t, reason, "network_")
}

func TestRunWritesConfigAndCache(t *testing.T) {
	srv := providerServer(t, map[string]int{"BGE-Embedding-Legacy": http.StatusOK})
	dir := t.TempDir()

	dbPath := filepath.Join(dir, "webui.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE config (id INTEGER PRIMARY KEY, data JSON)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO config (id, data) VALUES (1, '{"version": 0, "ui": {"title": "kept"}}')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cachePath := filepath.Join(dir, "mittwald-models-discovery.json")
	require.NoError(t, config.AtomicWriteJSON(cachePath, map[string]any{"models": []string{"Old-Model", "Qwen3-Embedding-8B"}}, 0644))

	opts := Options{
		Client:                ClientOptions{BaseURL: srv.URL + "/v1", APIKey: "mw-key", Verify: true},
		ProviderTag:           "mittwald",
		DBPath:                dbPath,
		ConfigPath:            filepath.Join(dir, "config.json"),
		CachePath:             cachePath,
		SetDefaultModel:       true,
		ConfigureRAGEmbedding: true,
	}
	cache, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 4, cache.ModelCount)
	assert.Equal(t, "BGE-Embedding-Legacy", cache.Classification.DefaultEmbedding)
	assert.False(t, cache.EmbeddingProbe.Checks["Qwen3-Embedding-8B"].Supported)
	assert.Equal(t, []string{"Old-Model"}, cache.ModelDiff.Removed)
	assert.Len(t, cache.ModelDiff.Added, 3)

	written, ok := config.ReadJSONObject(opts.ConfigPath)
	require.True(t, ok)
	assert.Equal(t, "kept", written["ui"].(map[string]any)["title"])
	assert.Equal(t, "Ministral-3-14B-Instruct-2512", written["ui"].(map[string]any)["default_models"])
	assert.Equal(t, "BGE-Embedding-Legacy", written["rag"].(map[string]any)["embedding_model"])

	doc, ok := config.ReadJSONObject(cachePath)
	require.True(t, ok)
	assert.Equal(t, "Ministral-3-14B-Instruct-2512", doc["classification"].(map[string]any)["default_chat_model"])
	assert.Equal(t, true, doc["embedding_probe"].(map[string]any)["enabled"])
}

func TestRunKeepsModelIDsWhenDiscoveryFails(t *testing.T) {
	srv := providerServer(t, nil)
	dir := t.TempDir()

	cache, err := Run(context.Background(), Options{
		Client:      ClientOptions{BaseURL: srv.URL + "/v1", APIKey: "wrong"},
		ProviderTag: "mittwald",
		DBPath:      filepath.Join(dir, "missing.db"),
		ConfigPath:  filepath.Join(dir, "config.json"),
		CachePath:   filepath.Join(dir, "cache.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cache.ModelCount)
	assert.Equal(t, []string{}, cache.Models)

	written, ok := config.ReadJSONObject(filepath.Join(dir, "config.json"))
	require.True(t, ok)
	target := written["openai"].(map[string]any)["api_configs"].(map[string]any)["0"].(map[string]any)
	assert.NotContains(t, target, "model_ids")
	assert.Equal(t, []any{"wrong"}, written["openai"].(map[string]any)["api_keys"])
}

func TestRunRequiresAPIKey(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
