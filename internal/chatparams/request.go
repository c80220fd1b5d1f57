package chatparams

import (
	"dario.cat/mergo"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// userParamPaths lists where Open WebUI versions keep per-user chat params,
// in lookup order.
var userParamPaths = [][]string{
	{"ui", "params"},
	{"ui", "chat", "params"},
	{"params"},
	{"chat", "params"},
}

func objectAt(root map[string]any, path []string) (map[string]any, bool) {
	cur := root
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// CollectUserParams gathers a user's chat params from every settings path.
// A key found on an earlier path wins.
func CollectUserParams(settings map[string]any) Params {
	out := Params{}
	if settings == nil {
		return out
	}
	for _, path := range userParamPaths {
		source, ok := objectAt(settings, path)
		if !ok {
			continue
		}
		for key, value := range Extract(source) {
			if _, seen := out[key]; !seen {
				out[key] = value
			}
		}
	}
	return out
}

// Applied records where each filled request parameter came from.
type Applied struct {
	FromUser     []string
	FromDefaults []string
}

// ApplyRequestDefaults fills parameters that are absent or null in payload,
// preferring the user's own settings over resolved defaults. Values already
// present in the request are never touched. payload is modified in place.
func ApplyRequestDefaults(payload map[string]any, settings map[string]any, r *Resolver) Applied {
	var applied Applied
	if payload == nil {
		return applied
	}
	model, _ := payload["model"].(string)
	defaults := r.Defaults(model).Params
	user := CollectUserParams(settings)

	keys := defaults.Clone()
	for k, v := range user {
		keys[k] = v
	}
	for _, key := range keys.Keys() {
		if v, ok := payload[key]; ok && v != nil {
			continue
		}
		if v, ok := user[key]; ok {
			payload[key] = v
			applied.FromUser = append(applied.FromUser, key)
			continue
		}
		if v, ok := defaults[key]; ok {
			payload[key] = v
			applied.FromDefaults = append(applied.FromDefaults, key)
		}
	}
	L_trace("defaults: request filled", "model", model, "user", applied.FromUser, "defaults", applied.FromDefaults)
	return applied
}

// InitialUserSettings returns the settings document a newly created user
// starts with: params on the current path and every legacy mirror.
func InitialUserSettings(params Params) map[string]any {
	return map[string]any{
		"ui": map[string]any{
			"params": params.AsMap(),
			"chat":   map[string]any{"params": params.AsMap()},
		},
		"params": params.AsMap(),
		"chat":   map[string]any{"params": params.AsMap()},
	}
}

// DeepMergeSettings merges updates into base recursively. Nested objects
// are merged key by key; any other value in updates replaces what base
// holds. base is modified and returned; a nil base starts empty.
func DeepMergeSettings(base, updates map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	if len(updates) == 0 {
		return base
	}
	if err := mergo.Merge(&base, updates, mergo.WithOverride); err != nil {
		L_warn("settings: deep merge failed", "error", err)
	}
	return base
}
