// Package huggingface scrapes recommended generation parameters for chat
// models from the Hugging Face Hub: model search, model cards, READMEs and
// generation configs.
package huggingface

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"dario.cat/mergo"
	"golang.org/x/sync/errgroup"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

const (
	DefaultAPIBase     = "https://huggingface.co/api"
	DefaultSiteBase    = "https://huggingface.co"
	DefaultTargetModel = "meta-llama/Llama-3.1-8B-Instruct"

	SourceScrape    = "huggingface_scrape"
	SourceFallback  = "fallback"
	SourceNoHFMatch = "fallback_no_hf_match"
)

// Options configures a Scraper.
type Options struct {
	APIBase  string
	SiteBase string
	Token    string
	Timeout  time.Duration

	CacheDir string
	Refresh  bool
	Offline  bool

	Concurrency int
	Profiles    *chatparams.ProfileSet
}

// ModelResult is what was found for one requested model name.
type ModelResult struct {
	ModelName                 string            `json:"model_name"`
	HFModelID                 *string           `json:"hf_model_id"`
	Source                    string            `json:"source"`
	Hyperparameters           chatparams.Params `json:"hyperparameters"`
	GenerationHyperparameters chatparams.Params `json:"generation_hyperparameters"`
	CardHyperparameters       chatparams.Params `json:"card_hyperparameters"`
	ReadmeHyperparameters     chatparams.Params `json:"readme_hyperparameters"`
	ChatTemplate              *string           `json:"chat_template"`
	GenerationConfig          map[string]any    `json:"generation_config"`
}

// Scraper resolves model names against the Hub and collects their
// parameters.
type Scraper struct {
	opts  Options
	fetch *fetcher
}

// New builds a Scraper, filling in default endpoints and profiles.
func New(opts Options) *Scraper {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.SiteBase == "" {
		opts.SiteBase = DefaultSiteBase
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	opts.SiteBase = strings.TrimRight(opts.SiteBase, "/")
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Profiles == nil {
		opts.Profiles = chatparams.DefaultProfiles()
	}
	return &Scraper{opts: opts, fetch: newFetcher(opts)}
}

func (s *Scraper) getJSON(ctx context.Context, rawURL string, query url.Values, into any) error {
	data, err := s.fetch.get(ctx, rawURL, query, true)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, into)
}

// searchCandidates returns the Hub search hits for name, or nil on failure.
func (s *Scraper) searchCandidates(ctx context.Context, name string) []any {
	query := url.Values{"search": {name}, "limit": {"20"}}
	var hits []any
	if err := s.getJSON(ctx, s.opts.APIBase+"/models", query, &hits); err != nil {
		L_debug("hf: model search failed", "model", name, "error", err)
		return nil
	}
	return hits
}

// PickBestID scores search hits against the requested name and returns the
// best repo id, or "" when there are no usable hits. Ties keep the earliest.
func PickBestID(name string, candidates []any) string {
	requested := chatparams.NormalizeModelName(name)
	bestScore, bestID := -1, ""
	for _, raw := range candidates {
		c, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := c["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		norm := chatparams.NormalizeModelName(id)
		modelID, _ := c["modelId"].(string)
		score := 0
		switch {
		case norm == requested:
			score = 100
		case requested != "" && strings.Contains(norm, requested):
			score = 80
		case norm != "" && strings.Contains(requested, norm):
			score = 60
		case requested != "" && chatparams.NormalizeModelName(modelID) == requested:
			score = 90
		}
		if score > bestScore {
			bestScore, bestID = score, id
		}
	}
	return bestID
}

// ResolveID maps a model name to a Hub repo id. Names that already look like
// "org/repo" are used as they are.
func (s *Scraper) ResolveID(ctx context.Context, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.Contains(name, "/") {
		return name
	}
	return PickBestID(name, s.searchCandidates(ctx, name))
}

func (s *Scraper) modelInfo(ctx context.Context, id string) map[string]any {
	var info map[string]any
	if err := s.getJSON(ctx, s.opts.APIBase+"/models/"+id, nil, &info); err != nil {
		L_debug("hf: error fetching model info", "id", id, "error", err)
		return map[string]any{}
	}
	if info == nil {
		return map[string]any{}
	}
	return info
}

func (s *Scraper) readme(ctx context.Context, id string) string {
	data, err := s.fetch.get(ctx, s.opts.SiteBase+"/"+id+"/raw/main/README.md", nil, false)
	if err != nil {
		L_debug("hf: error fetching README", "id", id, "error", err)
		return ""
	}
	return string(data)
}

// ScrapeModel collects parameters for one model name. Layers are merged
// lowest to highest: family fallback, generation_config, model card, README.
func (s *Scraper) ScrapeModel(ctx context.Context, name string) *ModelResult {
	fallback := s.opts.Profiles.FamilyParams(name)
	result := &ModelResult{
		ModelName:                 name,
		Hyperparameters:           fallback,
		GenerationHyperparameters: chatparams.Params{},
		CardHyperparameters:       chatparams.Params{},
		ReadmeHyperparameters:     chatparams.Params{},
		GenerationConfig:          map[string]any{},
	}

	id := s.ResolveID(ctx, name)
	if id == "" {
		result.Source = SourceNoHFMatch
		return result
	}
	result.HFModelID = &id

	info := s.modelInfo(ctx, id)
	result.CardHyperparameters = ExtractCard(info["cardData"])
	result.ReadmeHyperparameters = ExtractReadme(s.readme(ctx, id))

	modelConfig, _ := info["config"].(map[string]any)
	if gen, ok := modelConfig["generation_config"].(map[string]any); ok {
		result.GenerationConfig = gen
	}
	result.GenerationHyperparameters = ExtractGeneration(result.GenerationConfig)
	if tmpl, ok := modelConfig["chat_template"].(string); ok {
		result.ChatTemplate = &tmpl
	}

	merged := fallback.Clone()
	for _, layer := range []chatparams.Params{
		result.GenerationHyperparameters,
		result.CardHyperparameters,
		result.ReadmeHyperparameters,
	} {
		if err := mergo.Merge(&merged, layer, mergo.WithOverride); err != nil {
			L_warn("hf: merge failed", "model", name, "error", err)
		}
	}
	result.Hyperparameters = merged

	result.Source = SourceFallback
	if len(result.GenerationHyperparameters)+len(result.CardHyperparameters)+len(result.ReadmeHyperparameters) > 0 {
		result.Source = SourceScrape
	}
	L_debug("hf: scraped model", "model", name, "id", id, "source", result.Source)
	return result
}

// ScrapeAll scrapes names with bounded parallelism and returns the results
// in input order.
func (s *Scraper) ScrapeAll(ctx context.Context, names []string) []*ModelResult {
	results := make([]*ModelResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = s.ScrapeModel(gctx, name)
			return nil
		})
	}
	g.Wait()
	return results
}
