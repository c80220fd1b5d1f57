package huggingface

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
)

// readmeAliases lists, per canonical key, the spellings looked for in
// README text. Order matters: the first alias with a match wins.
var readmeAliases = []struct {
	Key     string
	Aliases []string
}{
	{"temperature", []string{"temperature"}},
	{"top_p", []string{"top_p", "topp"}},
	{"top_k", []string{"top_k", "topk"}},
	{"repetition_penalty", []string{"repetition_penalty", "repeat_penalty"}},
	{"max_tokens", []string{"max_tokens", "max_new_tokens", "num_predict", "max_completion_tokens"}},
	{"min_p", []string{"min_p"}},
	{"frequency_penalty", []string{"frequency_penalty"}},
	{"presence_penalty", []string{"presence_penalty"}},
	{"mirostat", []string{"mirostat"}},
	{"mirostat_eta", []string{"mirostat_eta"}},
	{"mirostat_tau", []string{"mirostat_tau"}},
	{"repeat_last_n", []string{"repeat_last_n"}},
	{"tfs_z", []string{"tfs_z"}},
	{"seed", []string{"seed"}},
	{"num_ctx", []string{"num_ctx"}},
	{"num_batch", []string{"num_batch"}},
	{"num_thread", []string{"num_thread"}},
	{"num_gpu", []string{"num_gpu"}},
}

var aliasSeparators = regexp.MustCompile(`[_\-]`)

// aliasPattern quotes alias and lets '_' and '-' match any run of
// whitespace, underscores or hyphens, so "top_p", "top-p" and "top p" agree.
func aliasPattern(alias string) string {
	parts := aliasSeparators.Split(alias, -1)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `[\s_\-]*`)
}

const numberGroup = `(-?\d+(?:\.\d+)?)\b`

// readmePatterns holds the compiled patterns per alias: a "key: value" line
// (optionally bulleted or quoted), a JSON member, and an inline assignment.
var readmePatterns = func() map[string][]*regexp.Regexp {
	out := map[string][]*regexp.Regexp{}
	for _, entry := range readmeAliases {
		for _, alias := range entry.Aliases {
			ap := aliasPattern(alias)
			out[alias] = []*regexp.Regexp{
				regexp.MustCompile("(?im)^\\s*[\\-\\*>`\\s\"]*" + ap + `\s*[:=]\s*` + numberGroup),
				regexp.MustCompile(`(?i)"` + ap + `"\s*:\s*` + numberGroup),
				regexp.MustCompile(`(?i)` + ap + `\s*=\s*` + numberGroup),
			}
		}
	}
	return out
}()

// ExtractReadme pulls recommended sampling values out of free README text.
func ExtractReadme(text string) chatparams.Params {
	found := chatparams.Params{}
	if text == "" {
		return found
	}
	for _, entry := range readmeAliases {
	aliases:
		for _, alias := range entry.Aliases {
			for _, re := range readmePatterns[alias] {
				m := re.FindStringSubmatch(text)
				if m == nil {
					continue
				}
				if v, ok := chatparams.Coerce(m[1]); ok {
					found[entry.Key] = v
					break aliases
				}
			}
		}
	}
	return found
}

// ExtractGeneration keeps every numeric value of a generation_config
// object under its canonical key. When an alias and the canonical name are
// both present, the canonical name wins.
func ExtractGeneration(raw any) chatparams.Params {
	out := chatparams.Params{}
	m, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v, ok := chatparams.Coerce(m[key])
		if !ok {
			continue
		}
		canonical := chatparams.NormalizeKey(key)
		if _, has := out[canonical]; has && strings.ToLower(strings.TrimSpace(key)) != canonical {
			continue
		}
		out[canonical] = v
	}
	return out
}

// ExtractCard reads cardData.default_params, then fills gaps from
// cardData.generation_config.
func ExtractCard(cardData any) chatparams.Params {
	card, ok := cardData.(map[string]any)
	if !ok {
		return chatparams.Params{}
	}
	out := ExtractGeneration(card["default_params"])
	for key, v := range ExtractGeneration(card["generation_config"]) {
		if _, has := out[key]; !has {
			out[key] = v
		}
	}
	return out
}
