// Package jsonq runs jq expressions over JSON documents for the inspect
// command.
package jsonq

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"

	"github.com/mittwald/owui-bootstrap/internal/config"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// Options controls how results are printed.
type Options struct {
	Raw     bool // print strings without quotes, like jq -r
	Compact bool
	YAML    bool // one YAML document per result
	Redact  bool // mask secrets before the query runs
}

// Mask replaces redacted values.
const Mask = "***"

// Normalize converts v into the plain JSON value types gojq understands
// (maps, slices, float64, string, bool, nil).
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func secretKey(key string) bool {
	k := strings.ToLower(key)
	return k == "api_key" || k == "api_keys" || strings.HasSuffix(k, "_api_key") ||
		strings.HasSuffix(k, "_token") || k == "token" || strings.Contains(k, "secret") || strings.Contains(k, "password")
}

// Redact masks every value stored under a secret-looking key. Lists of
// secrets keep their length so provider indexes stay readable.
func Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if !secretKey(k) {
				out[k] = Redact(item)
				continue
			}
			if list, ok := item.([]any); ok {
				masked := make([]any, len(list))
				for i, s := range list {
					if str, _ := s.(string); str == "" {
						masked[i] = s
					} else {
						masked[i] = Mask
					}
				}
				out[k] = masked
			} else if str, _ := item.(string); str == "" {
				out[k] = item
			} else {
				out[k] = Mask
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Redact(item)
		}
		return out
	}
	return v
}

// Run evaluates query against doc and returns every result.
func Run(query string, doc any) ([]any, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq query: %w", err)
	}
	input, err := Normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	var results []any
	iter := parsed.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq error: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

// Query runs query over doc and formats the results one per line.
func Query(query string, doc any, opts Options) (string, error) {
	if query == "" {
		query = "."
	}
	if opts.Redact {
		normalized, err := Normalize(doc)
		if err != nil {
			return "", fmt.Errorf("invalid input: %w", err)
		}
		doc = Redact(normalized)
	}
	results, err := Run(query, doc)
	if err != nil {
		return "", err
	}
	L_debug("jsonq: query completed", "query", query, "results", len(results))
	return format(results, opts)
}

func format(results []any, opts Options) (string, error) {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if s, ok := r.(string); ok && opts.Raw {
			lines = append(lines, s)
			continue
		}
		var b []byte
		var err error
		switch {
		case opts.YAML:
			b, err = yaml.Marshal(r)
			b = []byte(strings.TrimSuffix(string(b), "\n"))
		case opts.Compact:
			b, err = json.Marshal(r)
		default:
			b, err = config.MarshalJSON(r)
		}
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		lines = append(lines, string(b))
	}
	if opts.YAML {
		return strings.Join(lines, "\n---\n"), nil
	}
	return strings.Join(lines, "\n"), nil
}
