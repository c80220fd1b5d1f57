package chatparams

import (
	"os"

	"dario.cat/mergo"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// EnvPrefix is prepended to the upper-cased core key to form an override
// variable, e.g. OWUI_BOOTSTRAP_TOP_P.
const EnvPrefix = "OWUI_BOOTSTRAP_"

// envKeys maps core params to their override variables.
var envKeys = map[string]string{
	"temperature":        EnvPrefix + "TEMPERATURE",
	"top_p":              EnvPrefix + "TOP_P",
	"top_k":              EnvPrefix + "TOP_K",
	"repetition_penalty": EnvPrefix + "REPETITION_PENALTY",
	"max_tokens":         EnvPrefix + "MAX_TOKENS",
}

// EnvKey returns the override variable for a core param.
func EnvKey(key string) string {
	return envKeys[key]
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(string) (string, bool)

// EnvOverrides collects the OWUI_BOOTSTRAP_* overrides that coerce to a
// number. Unparseable values are ignored with a warning.
func EnvOverrides(lookup LookupFunc) Params {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := Params{}
	for _, key := range CoreKeys {
		name := EnvKey(key)
		raw, ok := lookup(name)
		if !ok || raw == "" {
			continue
		}
		v, ok := Coerce(raw)
		if !ok {
			L_warn("defaults: ignoring non-numeric override", "env", name, "value", raw)
			continue
		}
		out[key] = v
	}
	return out
}

// Resolution is the outcome of resolving defaults for one model.
type Resolution struct {
	Model      string
	ProfileKey string // "" means the fallback profile was used
	Params     Params

	// Layers that contributed on top of the profile.
	Generation      Params
	Hyperparameters Params
	Env             Params
}

// ProfileName returns the profile key or "fallback".
func (r Resolution) ProfileName() string {
	if r.ProfileKey == "" {
		return "fallback"
	}
	return r.ProfileKey
}

// Resolver builds effective defaults from the profile table, the scraped
// Hugging Face index and the environment.
type Resolver struct {
	Profiles *ProfileSet
	Index    *HyperparamIndex
	Lookup   LookupFunc
}

// NewResolver returns a resolver reading the process environment.
func NewResolver(profiles *ProfileSet, index *HyperparamIndex) *Resolver {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if index == nil {
		index = NewHyperparamIndex(nil)
	}
	return &Resolver{Profiles: profiles, Index: index, Lookup: os.LookupEnv}
}

// Defaults resolves the effective defaults for model. Layers apply lowest
// to highest: profile (or fallback), HF generation_config, HF
// hyperparameters, environment overrides.
func (r *Resolver) Defaults(model string) Resolution {
	res := Resolution{Model: model}

	profiles := r.Profiles
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if p, ok := profiles.Pick(model); ok {
		res.ProfileKey = p.Key
	}
	res.Params = profiles.ProfileParams(model)

	if entry, ok := r.Index.Lookup(model); ok {
		res.Generation = entry.GenerationConfig
		res.Hyperparameters = entry.Hyperparameters
	}
	res.Env = EnvOverrides(r.Lookup)

	for _, layer := range []Params{res.Generation, res.Hyperparameters, res.Env} {
		if len(layer) == 0 {
			continue
		}
		if err := mergo.Merge(&res.Params, layer, mergo.WithOverride); err != nil {
			L_error("defaults: merge failed", "model", model, "error", err)
		}
	}
	return res
}
