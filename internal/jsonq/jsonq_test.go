package jsonq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cacheDoc struct {
	Models []string `json:"models"`
}

func record() map[string]any {
	return map[string]any{
		"openai": map[string]any{
			"api_base_urls": []any{"https://a.test/v1", "https://b.test/v1"},
			"api_keys":      []any{"", "mw-key"},
		},
		"rag": map[string]any{"openai_api_key": "mw-key", "embedding_model": "Qwen3-Embedding-8B"},
	}
}

func TestQueryRawStrings(t *testing.T) {
	out, err := Query(".openai.api_base_urls[]", record(), Options{Raw: true})
	require.NoError(t, err)
	assert.Equal(t, "https://a.test/v1\nhttps://b.test/v1", out)
}

func TestQueryNormalizesTypedInput(t *testing.T) {
	out, err := Query(".models | length", cacheDoc{Models: []string{"a", "b"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

func TestQueryRedactsSecrets(t *testing.T) {
	out, err := Query("[.openai.api_keys, .rag.openai_api_key, .rag.embedding_model]", record(), Options{Compact: true, Redact: true})
	require.NoError(t, err)
	assert.Equal(t, `[["","***"],"***","Qwen3-Embedding-8B"]`, out)
}

func TestQueryDefaultsToIdentity(t *testing.T) {
	out, err := Query("", map[string]any{"a": 1}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", out)
}

func TestQueryErrors(t *testing.T) {
	_, err := Query(".[", record(), Options{})
	assert.ErrorContains(t, err, "invalid jq query")

	_, err = Query(".openai.api_keys + 1", record(), Options{})
	assert.ErrorContains(t, err, "jq error")
}

func TestQueryYAML(t *testing.T) {
	out, err := Query(".rag.embedding_model, .openai.api_base_urls", record(), Options{YAML: true})
	require.NoError(t, err)
	assert.Equal(t, "Qwen3-Embedding-8B\n---\n- https://a.test/v1\n- https://b.test/v1", out)
}
