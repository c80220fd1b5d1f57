// Package chatparams defines the chat generation parameter vocabulary shared
// by every bootstrap step: which keys are allowed, how aliases collapse onto
// canonical names, how loosely typed values are coerced, and how the layered
// defaults for a model are resolved.
package chatparams

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Params maps canonical parameter names to numeric values.
type Params map[string]float64

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsMap converts p into a JSON-compatible map.
func (p Params) AsMap() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// AllowedKeyList is the ordered set of parameters Open WebUI forwards to the
// backend. Aliases that canonicalise onto an allowed key are accepted too.
var AllowedKeyList = []string{
	"temperature",
	"top_p",
	"top_k",
	"min_p",
	"repetition_penalty",
	"repeat_penalty",
	"presence_penalty",
	"frequency_penalty",
	"max_tokens",
	"seed",
	"mirostat",
	"mirostat_eta",
	"mirostat_tau",
	"repeat_last_n",
	"tfs_z",
	"num_ctx",
	"num_batch",
	"num_thread",
	"num_gpu",
}

// AllowedKeys indexes AllowedKeyList.
var AllowedKeys = func() map[string]bool {
	m := make(map[string]bool, len(AllowedKeyList))
	for _, k := range AllowedKeyList {
		m[k] = true
	}
	return m
}()

// Alias maps a vendor parameter name onto its canonical name.
type Alias struct {
	From string
	To   string
}

// CanonicalAliases folds vendor aliases onto one name.
var CanonicalAliases = []Alias{
	{"repeat_penalty", "repetition_penalty"},
	{"max_new_tokens", "max_tokens"},
	{"num_predict", "max_tokens"},
	{"max_completion_tokens", "max_tokens"},
	{"topp", "top_p"},
	{"topk", "top_k"},
}

var canonicalKeys = func() map[string]string {
	m := make(map[string]string, len(CanonicalAliases))
	for _, a := range CanonicalAliases {
		m[a.From] = a.To
	}
	return m
}()

// CoreKeys are the parameters every profile defines.
var CoreKeys = []string{"temperature", "top_p", "top_k", "repetition_penalty", "max_tokens"}

// CanonicalKey maps an alias to its canonical parameter name.
// Unknown keys are returned unchanged.
func CanonicalKey(key string) string {
	if c, ok := canonicalKeys[key]; ok {
		return c
	}
	return key
}

// NormalizeKey lowercases and trims key before canonicalising it.
func NormalizeKey(key string) string {
	return CanonicalKey(strings.ToLower(strings.TrimSpace(key)))
}

// Coerce converts a loosely typed value into a number. Strings accept a
// decimal comma; they parse as floats when they contain '.', 'e' or 'E'
// and as integers otherwise. nil, empty strings, booleans and anything
// unparseable are rejected.
func Coerce(v any) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case bool:
		return 0, false
	case float64:
		return val, !math.IsNaN(val) && !math.IsInf(val, 0)
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		return coerceString(val)
	}
	return 0, false
}

func coerceString(s string) (float64, bool) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if normalized == "" {
		return 0, false
	}
	if strings.ContainsAny(normalized, ".eE") {
		f, err := strconv.ParseFloat(normalized, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	i, err := strconv.ParseInt(normalized, 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(i), true
}

// Extract keeps the allowed, coercible parameters of raw under their
// canonical names. A nil or non-object input yields an empty result.
func Extract(raw any) Params {
	out := Params{}
	m, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	for key, value := range m {
		canonical := CanonicalKey(key)
		if !AllowedKeys[canonical] {
			continue
		}
		if f, ok := Coerce(value); ok {
			out[canonical] = f
		}
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeModelName lowercases name and removes everything outside [a-z0-9],
// so "Ministral-3-14B" and "ministral_3_14b" compare equal.
func NormalizeModelName(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "")
}

// Equal compares two JSON values, treating all numbers as float64.
func Equal(a, b any) bool {
	af, aNum := Number(a)
	bf, bNum := Number(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}

// Number reports whether v is a JSON number and returns its value.
// Booleans and numeric strings are not numbers.
func Number(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}
