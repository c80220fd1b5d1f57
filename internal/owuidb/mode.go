package owuidb

import (
	"fmt"
	"math"
	"strings"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
)

// Mode decides when an existing value may be replaced.
type Mode string

const (
	// ModeAlways overwrites every managed key.
	ModeAlways Mode = "always"
	// ModeMissing only fills keys that are absent.
	ModeMissing Mode = "missing"
	// ModeStale also replaces known factory defaults and values this tool
	// wrote earlier that nobody changed since.
	ModeStale Mode = "stale"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAlways, ModeMissing, ModeStale:
		return m, nil
	}
	return "", fmt.Errorf("unknown overwrite mode %q (want always, missing or stale)", s)
}

// ResolveMode picks the overwrite mode: an explicit valid mode wins, then
// the legacy force flag (true means always, anything else missing), then
// stale.
func ResolveMode(mode string, force *string) Mode {
	if m, err := ParseMode(mode); err == nil {
		return m
	}
	if force != nil {
		if strings.ToLower(strings.TrimSpace(*force)) == "true" {
			return ModeAlways
		}
		return ModeMissing
	}
	return ModeStale
}

// staleDefaults are the values an unconfigured Open WebUI ships with.
var staleDefaults = map[string][]float64{
	"temperature": {0.8},
	"top_p":       {0.9},
	"top_k":       {40},
	"max_tokens":  {128},
}

const staleEpsilon = 1e-9

func isStale(key string, v any) bool {
	f, ok := chatparams.Number(v)
	if !ok {
		return false
	}
	for _, candidate := range staleDefaults[key] {
		if math.Abs(f-candidate) <= staleEpsilon {
			return true
		}
	}
	return false
}

// shouldSet reports whether key in container may be (re)written. managed
// holds the values this tool wrote last time and may be nil.
func shouldSet(container map[string]any, key string, mode Mode, managed map[string]any) bool {
	if mode == ModeAlways {
		return true
	}
	current, present := container[key]
	if !present {
		return true
	}
	if mode != ModeStale {
		return false
	}
	if managed != nil {
		if prev, ok := managed[key]; ok && chatparams.Equal(current, prev) {
			return true
		}
	}
	return isStale(key, current)
}
