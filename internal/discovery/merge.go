package discovery

import (
	"slices"
	"sort"
	"strconv"

	"github.com/mittwald/owui-bootstrap/internal/config"
)

// DefaultSTTContentTypes is written when the record has no list yet.
var DefaultSTTContentTypes = []string{"audio/mpeg", "audio/ogg", "audio/wav", "audio/flac"}

// AutoDiscoveredTag marks provider entries written by this tool.
const AutoDiscoveredTag = "auto-discovered"

// MergeOptions controls MergeProviderConfig.
type MergeOptions struct {
	BaseURL     string
	APIKey      string
	ProviderTag string
	ModelIDs    []string
	Selected    Classification

	ConfigureAudioSTT     bool
	SetDefaultModel       bool
	ConfigureRAGEmbedding bool
	SetRerankingModel     bool
}

// MergeProviderConfig registers the provider in record and returns it.
// An existing entry with the same base URL is updated in place; otherwise
// the provider is appended so existing providers keep their index.
func MergeProviderConfig(record config.Record, opts MergeOptions) config.Record {
	if record == nil {
		record = config.Record{}
	}
	baseURL := NormalizeBaseURL(opts.BaseURL)

	oa := config.EnsurePath(record, "openai")
	oa["enable"] = true

	baseURLs := config.AsStringList(oa["api_base_urls"])
	idx := slices.Index(baseURLs, baseURL)
	if idx < 0 {
		baseURLs = append(baseURLs, baseURL)
		idx = len(baseURLs) - 1
	}
	oa["api_base_urls"] = baseURLs

	keys := config.AsStringList(oa["api_keys"])
	for len(keys) < len(baseURLs) {
		keys = append(keys, "")
	}
	keys[idx] = opts.APIKey
	oa["api_keys"] = keys

	apiConfigs, ok := oa["api_configs"].(map[string]any)
	if !ok {
		apiConfigs = map[string]any{}
	}
	slot := strconv.Itoa(idx)
	target, ok := apiConfigs[slot].(map[string]any)
	if !ok {
		target = map[string]any{}
	}
	target["enable"] = true
	if _, has := target["connection_type"]; !has {
		target["connection_type"] = "external"
	}
	tags := config.AsStringList(target["tags"])
	for _, tag := range []string{opts.ProviderTag, AutoDiscoveredTag} {
		if tag != "" && !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	target["tags"] = tags
	if len(opts.ModelIDs) > 0 {
		target["model_ids"] = slices.Clone(opts.ModelIDs)
	}
	apiConfigs[slot] = target
	oa["api_configs"] = apiConfigs

	if opts.ConfigureAudioSTT {
		stt := config.EnsurePath(record, "audio", "stt")
		sttOpenAI := config.EnsurePath(record, "audio", "stt", "openai")
		stt["engine"] = "openai"
		sttOpenAI["api_base_url"] = baseURL
		sttOpenAI["api_key"] = opts.APIKey
		if opts.Selected.DefaultWhisper != "" {
			stt["model"] = opts.Selected.DefaultWhisper
		}
		if _, ok := stt["supported_content_types"].([]any); !ok {
			if _, ok := stt["supported_content_types"].([]string); !ok {
				stt["supported_content_types"] = slices.Clone(DefaultSTTContentTypes)
			}
		}
	}

	if opts.SetDefaultModel && opts.Selected.DefaultChat != "" {
		config.EnsurePath(record, "ui")["default_models"] = opts.Selected.DefaultChat
	}

	if opts.ConfigureRAGEmbedding && opts.Selected.DefaultEmbedding != "" {
		rag := config.EnsurePath(record, "rag")
		rag["embedding_engine"] = "openai"
		rag["embedding_model"] = opts.Selected.DefaultEmbedding
		rag["openai_api_base_url"] = baseURL
		rag["openai_api_key"] = opts.APIKey
	}

	if opts.SetRerankingModel && opts.Selected.DefaultReranking != "" {
		config.EnsurePath(record, "rag")["reranking_model"] = opts.Selected.DefaultReranking
	}

	if _, has := record["version"]; !has {
		record["version"] = 0
	}
	return record
}

// ModelDiff compares two model lists.
type ModelDiff struct {
	Changed bool     `json:"changed"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// DiffModels returns the sorted ids added to and removed from prev.
func DiffModels(prev, cur []string) ModelDiff {
	d := ModelDiff{Added: difference(cur, prev), Removed: difference(prev, cur)}
	d.Changed = len(d.Added) > 0 || len(d.Removed) > 0
	return d
}

func difference(a, b []string) []string {
	in := map[string]bool{}
	for _, s := range b {
		in[s] = true
	}
	seen := map[string]bool{}
	out := []string{}
	for _, s := range a {
		if !in[s] && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
