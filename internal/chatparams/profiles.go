package chatparams

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

//go:embed profiles.toml
var embeddedProfiles []byte

// Profile is a set of defaults selected by a substring of the model name.
type Profile struct {
	Key    string `toml:"key"`
	Params Params `toml:"params"`
}

// Family groups the aliases the scraper uses to pick fallback values.
type Family struct {
	Name    string   `toml:"name"`
	Aliases []string `toml:"aliases"`
	Params  Params   `toml:"params"`
}

// ProfileSet is the root of profiles.toml.
type ProfileSet struct {
	Fallback Params    `toml:"fallback"`
	Profiles []Profile `toml:"profile"`
	Families []Family  `toml:"family"`
}

// DefaultProfiles returns the profile table compiled into the binary.
func DefaultProfiles() *ProfileSet {
	set, err := ParseProfiles(embeddedProfiles)
	if err != nil {
		panic(fmt.Sprintf("chatparams: embedded profiles.toml is invalid: %v", err))
	}
	return set
}

// ParseProfiles decodes a profiles document and validates it.
func ParseProfiles(data []byte) (*ProfileSet, error) {
	var set ProfileSet
	if _, err := toml.Decode(string(data), &set); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	if len(set.Fallback) == 0 {
		return nil, fmt.Errorf("profiles: [fallback] is empty")
	}
	for i, p := range set.Profiles {
		if strings.TrimSpace(p.Key) == "" {
			return nil, fmt.Errorf("profiles: profile %d has no key", i)
		}
		set.Profiles[i].Key = strings.ToLower(strings.TrimSpace(p.Key))
	}
	for i, f := range set.Families {
		if f.Name == "" || len(f.Aliases) == 0 {
			return nil, fmt.Errorf("profiles: family %d needs a name and aliases", i)
		}
	}
	return &set, nil
}

// LoadProfiles reads the profile table from path, falling back to the
// embedded table when path is empty or unusable.
func LoadProfiles(path string) *ProfileSet {
	if path == "" {
		return DefaultProfiles()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		L_warn("profiles: cannot read override, using embedded", "path", path, "error", err)
		return DefaultProfiles()
	}
	set, err := ParseProfiles(data)
	if err != nil {
		L_warn("profiles: invalid override, using embedded", "path", path, "error", err)
		return DefaultProfiles()
	}
	L_debug("profiles: loaded override", "path", path, "profiles", len(set.Profiles), "families", len(set.Families))
	return set
}

// Pick returns the first profile whose key occurs in the lowercased model
// name.
func (s *ProfileSet) Pick(model string) (Profile, bool) {
	if model == "" {
		return Profile{}, false
	}
	lowered := strings.ToLower(model)
	for _, p := range s.Profiles {
		if strings.Contains(lowered, p.Key) {
			return p, true
		}
	}
	return Profile{}, false
}

// ProfileParams returns a copy of the matching profile's params, or of the
// fallback when no profile matches.
func (s *ProfileSet) ProfileParams(model string) Params {
	if p, ok := s.Pick(model); ok {
		return p.Params.Clone()
	}
	return s.Fallback.Clone()
}

// Family returns the scraper family whose alias occurs in the lowercased
// model name.
func (s *ProfileSet) Family(model string) (Family, bool) {
	lowered := strings.ToLower(model)
	for _, f := range s.Families {
		for _, alias := range f.Aliases {
			if strings.Contains(lowered, strings.ToLower(alias)) {
				return f, true
			}
		}
	}
	return Family{}, false
}

// FamilyParams returns a copy of the family fallback for model, or the
// global fallback.
func (s *ProfileSet) FamilyParams(model string) Params {
	if f, ok := s.Family(model); ok {
		return f.Params.Clone()
	}
	return s.Fallback.Clone()
}
