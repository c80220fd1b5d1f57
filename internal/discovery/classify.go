package discovery

import (
	"context"
	"encoding/json"
	"strings"
)

// DefaultChatPriority orders chat model families when no hint matches.
var DefaultChatPriority = []string{"ministral", "devstral", "gpt-oss", "qwen"}

var rerankTokens = []string{"rerank", "reranker", "ranker", "colbert"}

// Hints steer the default model picks. Empty hints pick the first candidate.
type Hints struct {
	Chat         string
	Embedding    string
	Whisper      string
	Reranking    string
	ChatPriority []string
}

// Classification groups model ids by capability and names a default per group.
type Classification struct {
	ChatCandidates      []string
	EmbeddingCandidates []string
	WhisperCandidates   []string
	RerankingCandidates []string

	DefaultChat      string
	DefaultEmbedding string
	DefaultWhisper   string
	DefaultReranking string
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// MarshalJSON writes the cache layout, with null for missing defaults.
func (c Classification) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"chat_candidates":         nonNil(c.ChatCandidates),
		"embedding_candidates":    nonNil(c.EmbeddingCandidates),
		"whisper_candidates":      nonNil(c.WhisperCandidates),
		"reranking_candidates":    nonNil(c.RerankingCandidates),
		"default_chat_model":      nullable(c.DefaultChat),
		"default_embedding_model": nullable(c.DefaultEmbedding),
		"default_whisper_model":   nullable(c.DefaultWhisper),
		"default_reranking_model": nullable(c.DefaultReranking),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// pickByHint returns the candidate equal to hint (case-insensitive), else
// the first containing it, else the first candidate.
func pickByHint(candidates []string, hint string) string {
	if len(candidates) == 0 {
		return ""
	}
	if hint != "" {
		lowered := strings.ToLower(hint)
		for _, m := range candidates {
			if strings.ToLower(m) == lowered {
				return m
			}
		}
		for _, m := range candidates {
			if strings.Contains(strings.ToLower(m), lowered) {
				return m
			}
		}
	}
	return candidates[0]
}

// pickWithPriority honours a set hint first, then the priority tokens.
func pickWithPriority(candidates []string, hint string, priority []string) string {
	if len(candidates) == 0 {
		return ""
	}
	if hint != "" {
		return pickByHint(candidates, hint)
	}
	for _, token := range priority {
		lowered := strings.ToLower(token)
		for _, m := range candidates {
			if strings.Contains(strings.ToLower(m), lowered) {
				return m
			}
		}
	}
	return candidates[0]
}

// Classify sorts ids into whisper, embedding, reranking and chat models.
// A model matching several non-chat groups is listed in each of them.
func Classify(ids []string, hints Hints) Classification {
	var c Classification
	excluded := map[string]bool{}
	for _, id := range ids {
		lowered := strings.ToLower(id)
		if strings.Contains(lowered, "whisper") {
			c.WhisperCandidates = append(c.WhisperCandidates, id)
			excluded[id] = true
		}
		if strings.Contains(lowered, "embedding") {
			c.EmbeddingCandidates = append(c.EmbeddingCandidates, id)
			excluded[id] = true
		}
		if containsAny(lowered, rerankTokens) {
			c.RerankingCandidates = append(c.RerankingCandidates, id)
			excluded[id] = true
		}
	}
	for _, id := range ids {
		if !excluded[id] {
			c.ChatCandidates = append(c.ChatCandidates, id)
		}
	}

	priority := hints.ChatPriority
	if priority == nil {
		priority = DefaultChatPriority
	}
	c.DefaultChat = pickWithPriority(c.ChatCandidates, hints.Chat, priority)
	c.DefaultEmbedding = pickByHint(c.EmbeddingCandidates, hints.Embedding)
	c.DefaultWhisper = pickByHint(c.WhisperCandidates, hints.Whisper)
	c.DefaultReranking = pickByHint(c.RerankingCandidates, hints.Reranking)
	return c
}

// ParsePriority splits a comma separated priority list, lowercasing entries.
func ParsePriority(raw string) []string {
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Prober verifies that a model answers on the embeddings endpoint.
type Prober interface {
	ProbeEmbeddings(ctx context.Context, model string) (bool, string)
}

// ProbeCheck is the outcome of probing one model.
type ProbeCheck struct {
	Supported bool   `json:"supported"`
	Reason    string `json:"reason"`
}

// SelectEmbeddingModel probes candidates in order and returns the first one
// that works, along with every check made.
func SelectEmbeddingModel(ctx context.Context, p Prober, candidates []string) (string, map[string]ProbeCheck) {
	checks := map[string]ProbeCheck{}
	for _, model := range candidates {
		ok, reason := p.ProbeEmbeddings(ctx, model)
		checks[model] = ProbeCheck{Supported: ok, Reason: reason}
		if ok {
			return model, checks
		}
	}
	return "", checks
}
