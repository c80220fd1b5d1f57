package main

import (
	"context"
	"errors"
	"time"

	"github.com/mittwald/owui-bootstrap/internal/discovery"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// DiscoverCmd registers the provider in the Open WebUI config.
type DiscoverCmd struct {
	DBPath     string `help:"Open WebUI database (default: <data-dir>/webui.db)." env:"OWUI_DB_PATH"`
	ConfigPath string `help:"config.json to write (default: <data-dir>/config.json)." env:"OWUI_BOOTSTRAP_CONFIG_PATH"`
	CachePath  string `help:"Discovery cache to write (default: <data-dir>/mittwald-models-discovery.json)." env:"MITTWALD_DISCOVERY_CACHE_PATH"`

	BaseURL     string `help:"OpenAI compatible API base URL." env:"MITTWALD_OPENAI_BASE_URL" default:"https://llm.aihosting.mittwald.de/v1"`
	APIKey      string `help:"Provider API key." env:"MITTWALD_OPENAI_API_KEY"`
	TimeoutSec  int    `help:"HTTP timeout in seconds." env:"MITTWALD_DISCOVERY_TIMEOUT_SEC" default:"20"`
	ProviderTag string `help:"Tag attached to the provider connection." env:"MITTWALD_PROVIDER_TAG" default:"mittwald"`
	ProbeInput  string `help:"Input sent when probing embedding models." env:"MITTWALD_EMBEDDING_PROBE_INPUT" default:"mittwald endpoint capability probe"`

	ConfigureAudioSTT     bool `help:"Configure speech-to-text with the discovered whisper model." env:"MITTWALD_CONFIGURE_AUDIO_STT" default:"true" negatable:""`
	SetDefaultModel       bool `help:"Set the default chat model." env:"MITTWALD_SET_DEFAULT_MODEL" default:"true" negatable:""`
	ConfigureRAGEmbedding bool `help:"Configure RAG embeddings with the discovered embedding model." env:"MITTWALD_CONFIGURE_RAG_EMBEDDING" default:"true" negatable:""`
	VerifyEndpoints       bool `help:"Probe embedding candidates before selecting one." env:"MITTWALD_VERIFY_MODEL_ENDPOINTS" default:"true" negatable:""`
	SetRerankingModel     bool `help:"Configure the discovered reranking model." env:"MITTWALD_SET_RERANKING_MODEL" default:"false" negatable:""`

	ChatHint      string `help:"Substring preferred for the default chat model." env:"MITTWALD_CHAT_MODEL_HINT"`
	EmbeddingHint string `help:"Substring preferred for the embedding model." env:"MITTWALD_EMBEDDING_MODEL_HINT"`
	WhisperHint   string `help:"Substring preferred for the whisper model." env:"MITTWALD_WHISPER_MODEL_HINT"`
	RerankingHint string `help:"Substring preferred for the reranking model." env:"MITTWALD_RERANKING_MODEL_HINT"`
	ChatPriority  string `help:"Comma separated chat model preference." env:"MITTWALD_CHAT_MODEL_PRIORITY" default:"ministral,devstral,gpt-oss,qwen"`
}

func (c *DiscoverCmd) options(g *Globals) discovery.Options {
	return discovery.Options{
		Client: discovery.ClientOptions{
			BaseURL:    c.BaseURL,
			APIKey:     c.APIKey,
			Timeout:    time.Duration(c.TimeoutSec) * time.Second,
			Verify:     c.VerifyEndpoints,
			ProbeInput: c.ProbeInput,
		},
		Hints: discovery.Hints{
			Chat:         c.ChatHint,
			Embedding:    c.EmbeddingHint,
			Whisper:      c.WhisperHint,
			Reranking:    c.RerankingHint,
			ChatPriority: discovery.ParsePriority(c.ChatPriority),
		},
		ProviderTag:           c.ProviderTag,
		DBPath:                paths.Or(c.DBPath, g.DataDir, paths.DBFileName),
		ConfigPath:            paths.Or(c.ConfigPath, g.DataDir, paths.ConfigFileName),
		CachePath:             paths.Or(c.CachePath, g.DataDir, paths.DiscoveryCacheFileName),
		ConfigureAudioSTT:     c.ConfigureAudioSTT,
		SetDefaultModel:       c.SetDefaultModel,
		ConfigureRAGEmbedding: c.ConfigureRAGEmbedding,
		SetRerankingModel:     c.SetRerankingModel,
	}
}

// run performs one discovery. A missing key is not an error.
func (c *DiscoverCmd) run(ctx context.Context, g *Globals) error {
	cache, err := discovery.Run(ctx, c.options(g))
	if errors.Is(err, discovery.ErrNoAPIKey) {
		L_info("MITTWALD_OPENAI_API_KEY not set; skipping provider bootstrap")
		return nil
	}
	if err != nil {
		return err
	}
	L_info("provider bootstrap complete", "models", cache.ModelCount,
		"chat", cache.Classification.DefaultChat,
		"embedding", cache.Classification.DefaultEmbedding,
		"whisper", cache.Classification.DefaultWhisper)
	return nil
}

func (c *DiscoverCmd) Run(ctx context.Context, g *Globals) error {
	g.setupLogging("bootstrap-mittwald-config")
	return c.run(ctx, g)
}
