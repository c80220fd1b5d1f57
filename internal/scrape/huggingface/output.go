package huggingface

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

type nameSet struct {
	seen  map[string]bool
	names []string
}

func (n *nameSet) add(v any) {
	s, ok := v.(string)
	if !ok {
		return
	}
	s = strings.TrimSpace(s)
	if s == "" || n.seen[s] {
		return
	}
	if n.seen == nil {
		n.seen = map[string]bool{}
	}
	n.seen[s] = true
	n.names = append(n.names, s)
}

// ExtractModelNames accepts a list of names, a list of objects carrying
// name, id or model_id, or an object with such a list under "models".
func ExtractModelNames(payload any) []string {
	var set nameSet
	switch v := payload.(type) {
	case []any:
		for _, item := range v {
			switch it := item.(type) {
			case string:
				set.add(it)
			case map[string]any:
				set.add(it["name"])
				set.add(it["id"])
				set.add(it["model_id"])
			}
		}
	case map[string]any:
		if models, ok := v["models"].([]any); ok {
			return ExtractModelNames(models)
		}
	}
	if set.names == nil {
		return []string{}
	}
	return set.names
}

// ReadModelsFile loads model names from a JSON file. Unreadable files yield
// no names.
func ReadModelsFile(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		L_debug("hf: failed to read models file", "path", path, "error", err)
		return []string{}
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		L_debug("hf: failed to parse models file", "path", path, "error", err)
		return []string{}
	}
	return ExtractModelNames(payload)
}

// CollectModelNames merges the names from the models file and the comma
// separated list, deduplicated in order. With no names at all, target (or
// DefaultTargetModel) is scraped alone.
func CollectModelNames(modelsFile, commaList, target string) []string {
	var set nameSet
	if modelsFile != "" {
		for _, name := range ReadModelsFile(modelsFile) {
			set.add(name)
		}
	}
	for _, part := range strings.Split(commaList, ",") {
		set.add(part)
	}
	if len(set.names) == 0 {
		if t := strings.TrimSpace(target); t != "" {
			return []string{t}
		}
		return []string{DefaultTargetModel}
	}
	return set.names
}

// PickSelected chooses the model whose values become the top-level output:
// the configured target (matched by normalised name), else the first
// scraped name, else DefaultTargetModel.
func PickSelected(names []string, target string) string {
	target = strings.TrimSpace(target)
	if target != "" {
		want := chatparams.NormalizeModelName(target)
		for _, name := range names {
			if chatparams.NormalizeModelName(name) == want {
				return name
			}
		}
		return target
	}
	if len(names) > 0 {
		return names[0]
	}
	return DefaultTargetModel
}

// Metadata describes a scrape run.
type Metadata struct {
	ModelCount      int  `json:"model_count"`
	TokenConfigured bool `json:"token_configured"`
}

// Output is the scraper document consumed at image build time.
type Output struct {
	Temperature       float64                 `json:"temperature"`
	TopP              float64                 `json:"top_p"`
	TopK              float64                 `json:"top_k"`
	RepetitionPenalty float64                 `json:"repetition_penalty"`
	MaxTokens         float64                 `json:"max_tokens"`
	Source            string                  `json:"source"`
	SelectedModel     string                  `json:"selected_model"`
	SelectedHFModelID *string                 `json:"selected_hf_model_id"`
	Models            map[string]*ModelResult `json:"models"`
	ScrapeMetadata    Metadata                `json:"scrape_metadata"`
}

// BuildOutput assembles the document from results (in scrape order). When
// the selected model wasn't scraped the first result stands in; core values
// it lacks come from defaults.
func BuildOutput(results []*ModelResult, selected string, defaults chatparams.Params, tokenConfigured bool) *Output {
	out := &Output{
		Source:         SourceFallback,
		SelectedModel:  selected,
		Models:         map[string]*ModelResult{},
		ScrapeMetadata: Metadata{TokenConfigured: tokenConfigured},
	}
	var pick *ModelResult
	for _, r := range results {
		if r == nil {
			continue
		}
		out.Models[r.ModelName] = r
		if pick == nil || (r.ModelName == selected && pick.ModelName != selected) {
			pick = r
		}
	}
	out.ScrapeMetadata.ModelCount = len(out.Models)

	values := defaults.Clone()
	if pick != nil {
		out.Source = pick.Source
		out.SelectedHFModelID = pick.HFModelID
		for _, key := range chatparams.CoreKeys {
			if v, ok := pick.Hyperparameters[key]; ok {
				values[key] = v
			}
		}
	}
	out.Temperature = values["temperature"]
	out.TopP = values["top_p"]
	out.TopK = values["top_k"]
	out.RepetitionPenalty = values["repetition_penalty"]
	out.MaxTokens = values["max_tokens"]
	return out
}
