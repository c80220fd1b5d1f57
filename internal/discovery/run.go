package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mittwald/owui-bootstrap/internal/config"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// Options configures one discovery run.
type Options struct {
	Client      ClientOptions
	Hints       Hints
	ProviderTag string

	DBPath     string // Open WebUI database holding the current config record
	ConfigPath string // config.json written for the next Open WebUI start
	CachePath  string // discovery cache read by the chat param seeder

	ConfigureAudioSTT     bool
	SetDefaultModel       bool
	ConfigureRAGEmbedding bool
	SetRerankingModel     bool
}

// EmbeddingProbe records which embedding models were tried.
type EmbeddingProbe struct {
	Enabled bool                  `json:"enabled"`
	Checks  map[string]ProbeCheck `json:"checks"`
}

// Cache is the discovery cache document.
type Cache struct {
	GeneratedAt    string         `json:"generated_at"`
	BaseURL        string         `json:"base_url"`
	ModelCount     int            `json:"model_count"`
	Models         []string       `json:"models"`
	ModelDiff      ModelDiff      `json:"model_diff"`
	Classification Classification `json:"classification"`
	EmbeddingProbe EmbeddingProbe `json:"embedding_probe"`
}

// ErrNoAPIKey is returned when no provider key is configured.
var ErrNoAPIKey = errors.New("provider API key not set")

// Run discovers models, merges the provider into the config record and
// writes config.json plus the discovery cache. Discovery failures are
// logged; the provider is still registered with its existing model ids.
func Run(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Client.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	client := NewClient(opts.Client)
	baseURL := client.BaseURL()

	previous, _ := config.ReadJSONObject(opts.CachePath)
	previousModels := config.AsStringList(previous["models"])

	models := []string{}
	classification := Classify(nil, opts.Hints)
	checks := map[string]ProbeCheck{}

	discovered, err := client.ListModels(ctx)
	if err != nil {
		logDiscoveryFailure(err)
	} else {
		models = discovered
		classification = Classify(models, opts.Hints)
		var selected string
		selected, checks = SelectEmbeddingModel(ctx, client, classification.EmbeddingCandidates)
		classification.DefaultEmbedding = selected

		L_info(fmt.Sprintf("discovered %d model(s) from %s/models", len(models), baseURL))
		switch {
		case selected != "":
			L_info("selected embedding model with /embeddings support", "model", selected)
		case len(classification.EmbeddingCandidates) > 0:
			L_warn("no embedding candidate passed /embeddings probe; keeping existing embedding config")
		}
	}

	record := config.LoadRecordFromDB(opts.DBPath)
	merged := MergeProviderConfig(record, MergeOptions{
		BaseURL:               baseURL,
		APIKey:                opts.Client.APIKey,
		ProviderTag:           opts.ProviderTag,
		ModelIDs:              models,
		Selected:              classification,
		ConfigureAudioSTT:     opts.ConfigureAudioSTT,
		SetDefaultModel:       opts.SetDefaultModel,
		ConfigureRAGEmbedding: opts.ConfigureRAGEmbedding,
		SetRerankingModel:     opts.SetRerankingModel,
	})
	if err := config.BackupAndWriteJSON(opts.ConfigPath, merged, config.DefaultBackupCount); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	L_info("wrote merged Open WebUI config", "path", opts.ConfigPath)

	diff := DiffModels(previousModels, models)
	if diff.Changed {
		L_info(fmt.Sprintf("model list changed: +%d / -%d", len(diff.Added), len(diff.Removed)))
	}

	cache := &Cache{
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		BaseURL:        baseURL,
		ModelCount:     len(models),
		Models:         models,
		ModelDiff:      diff,
		Classification: classification,
		EmbeddingProbe: EmbeddingProbe{Enabled: client.ProbeEnabled(), Checks: checks},
	}
	if err := config.AtomicWriteJSON(opts.CachePath, cache, 0644); err != nil {
		return nil, fmt.Errorf("write discovery cache: %w", err)
	}
	L_info("wrote model discovery cache", "path", opts.CachePath)
	return cache, nil
}

func logDiscoveryFailure(err error) {
	var statusErr *StatusError
	var urlErr *url.Error
	switch {
	case errors.As(err, &statusErr):
		L_warn(fmt.Sprintf("model discovery failed with HTTP %d; keeping existing model_ids", statusErr.Code), "status", statusErr.Status)
	case errors.As(err, &urlErr):
		L_warn("model discovery failed due to network error; keeping existing model_ids", "error", urlErr.Err)
	default:
		L_warn("model discovery failed; keeping existing model_ids", "error", err)
	}
}
