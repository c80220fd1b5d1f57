// Package config holds helpers for the Open WebUI persisted configuration
// record and for writing JSON documents to disk.
package config

import "strings"

// Record is the Open WebUI configuration document as stored in the
// config table and in config.json. It is kept as a generic map so keys
// this tool doesn't manage survive a round trip untouched.
type Record = map[string]any

// EnsurePath walks record along keys, replacing any non-object value on the
// way with an empty object, and returns the innermost object.
func EnsurePath(record Record, keys ...string) map[string]any {
	cur := record
	for _, key := range keys {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	return cur
}

// AsStringList converts a JSON value into a list of trimmed, non-empty
// strings. A bare string becomes a one-element list; anything else is empty.
func AsStringList(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				if cleaned := strings.TrimSpace(s); cleaned != "" {
					out = append(out, cleaned)
				}
			}
		}
	case []string:
		for _, s := range val {
			if cleaned := strings.TrimSpace(s); cleaned != "" {
				out = append(out, cleaned)
			}
		}
	case string:
		if cleaned := strings.TrimSpace(val); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// StringValue returns v as a trimmed string, or "" when v isn't a string.
func StringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
