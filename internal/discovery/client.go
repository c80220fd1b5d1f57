// Package discovery lists the models of an OpenAI-compatible provider,
// classifies them and merges the provider into the Open WebUI config record.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sashabaranov/go-openai"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// DefaultBaseURL is the mittwald AI hosting endpoint.
const DefaultBaseURL = "https://llm.aihosting.mittwald.de/v1"

// DefaultProbeInput is the text embedded when probing an embedding model.
const DefaultProbeInput = "mittwald endpoint capability probe"

// NormalizeBaseURL trims whitespace and trailing slashes, falling back to
// DefaultBaseURL for an empty value.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(raw, "/")
}

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Verify     bool // probe embedding models before selecting one
	ProbeInput string
}

// Client talks to the provider: plain REST for the model list, the OpenAI
// SDK for the embeddings probe. Both share one http.Client.
type Client struct {
	baseURL    string
	verify     bool
	probeInput string
	http       *resty.Client
	ai         *openai.Client
}

// NewClient builds a Client from opts.
func NewClient(opts ClientOptions) *Client {
	baseURL := NormalizeBaseURL(opts.BaseURL)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	probeInput := opts.ProbeInput
	if probeInput == "" {
		probeInput = DefaultProbeInput
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(opts.APIKey).
		SetHeader("Content-Type", "application/json")

	aiCfg := openai.DefaultConfig(opts.APIKey)
	aiCfg.BaseURL = baseURL
	aiCfg.HTTPClient = rc.GetClient()

	return &Client{
		baseURL:    baseURL,
		verify:     opts.Verify,
		probeInput: probeInput,
		http:       rc,
		ai:         openai.NewClientWithConfig(aiCfg),
	}
}

// BaseURL returns the normalized provider URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ProbeEnabled reports whether embedding models are verified before use.
func (c *Client) ProbeEnabled() bool { return c.verify }

// ListModels fetches GET /models and returns the model ids in order.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/models")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}
	var payload map[string]any
	if body := resp.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode models: %w", err)
		}
	}
	return ExtractModelIDs(payload), nil
}

// ExtractModelIDs returns data[].id (or data[].name) trimmed and
// deduplicated, keeping the first occurrence.
func ExtractModelIDs(payload map[string]any) []string {
	ids := []string{}
	data, ok := payload["data"].([]any)
	if !ok {
		return ids
	}
	seen := map[string]bool{}
	for _, item := range data {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		raw := entry["id"]
		if s, _ := raw.(string); s == "" {
			raw = entry["name"]
		}
		id, ok := raw.(string)
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// ProbeEmbeddings asks the embeddings endpoint for one vector from model
// and reports whether it is usable, with a short reason.
func (c *Client) ProbeEmbeddings(ctx context.Context, model string) (bool, string) {
	if !c.verify {
		return true, "probe_disabled"
	}
	resp, err := c.ai.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: c.probeInput,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		reason := probeFailure(err)
		L_debug("embedding probe failed", "model", model, "reason", reason)
		return false, reason
	}
	if len(resp.Data) == 0 {
		return false, "missing_data"
	}
	if len(resp.Data[0].Embedding) == 0 {
		return true, "ok_no_embedding_field"
	}
	return true, "ok"
}

func probeFailure(err error) string {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var urlErr *url.Error
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("http_%d", apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		return fmt.Sprintf("http_%d", reqErr.HTTPStatusCode)
	case errors.As(err, &urlErr):
		return fmt.Sprintf("network_%v", urlErr.Err)
	default:
		return fmt.Sprintf("error_%T:%v", err, err)
	}
}
