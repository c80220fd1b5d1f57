package chatparams

import (
	"sort"
	"strings"

	"github.com/mittwald/owui-bootstrap/internal/config"
)

// HyperparamEntry is one model in hf-model-hyperparameters.json.
type HyperparamEntry struct {
	GenerationConfig Params
	Hyperparameters  Params
}

// HyperparamIndex is the scraped Hugging Face document keyed by model name.
type HyperparamIndex struct {
	models map[string]map[string]any
}

// LoadHyperparamIndex reads the scraper output at path. A missing or
// malformed file yields an empty index.
func LoadHyperparamIndex(path string) *HyperparamIndex {
	idx := &HyperparamIndex{models: map[string]map[string]any{}}
	if path == "" {
		return idx
	}
	doc, _ := config.ReadJSONObject(path)
	return NewHyperparamIndex(doc)
}

// NewHyperparamIndex wraps an already decoded document.
func NewHyperparamIndex(doc map[string]any) *HyperparamIndex {
	idx := &HyperparamIndex{models: map[string]map[string]any{}}
	models, ok := doc["models"].(map[string]any)
	if !ok {
		return idx
	}
	for name, raw := range models {
		if entry, ok := raw.(map[string]any); ok {
			idx.models[name] = entry
		}
	}
	return idx
}

// Len returns the number of models in the index.
func (h *HyperparamIndex) Len() int {
	return len(h.models)
}

// Lookup finds model by exact key first, then by normalised name.
func (h *HyperparamIndex) Lookup(model string) (HyperparamEntry, bool) {
	if model == "" || h == nil {
		return HyperparamEntry{}, false
	}
	raw, ok := h.models[model]
	if !ok {
		wanted := NormalizeModelName(model)
		keys := make([]string, 0, len(h.models))
		for key := range h.models {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if NormalizeModelName(key) == wanted {
				raw, ok = h.models[key], true
				break
			}
		}
	}
	if !ok {
		return HyperparamEntry{}, false
	}
	return HyperparamEntry{
		GenerationConfig: Extract(raw["generation_config"]),
		Hyperparameters:  Extract(raw["hyperparameters"]),
	}, true
}

// LoadDefaultChatModel returns classification.default_chat_model from the
// discovery cache, or "" when the cache is missing or has none.
func LoadDefaultChatModel(discoveryCachePath string) string {
	doc, ok := config.ReadJSONObject(discoveryCachePath)
	if !ok {
		return ""
	}
	classification, _ := doc["classification"].(map[string]any)
	model, _ := classification["default_chat_model"].(string)
	return strings.TrimSpace(model)
}
