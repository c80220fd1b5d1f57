package owuidb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	"github.com/mittwald/owui-bootstrap/internal/config"
)

// DefaultMarkerVersion is bumped when the seeding algorithm changes in a way
// that requires one more full pass over existing rows.
const DefaultMarkerVersion = "v2"

// Marker records the last successful seeding run.
type Marker struct {
	ChatsUpdated   int    `json:"chats_updated"`
	DesiredHash    string `json:"desired_hash"`
	OverwriteMode  Mode   `json:"overwrite_mode"`
	SyncChats      bool   `json:"sync_chats"`
	UpdatedAtEpoch int64  `json:"updated_at_epoch"`
	UsersUpdated   int    `json:"users_updated"`
	Version        string `json:"version"`
}

// MarkerState classifies what was found at the marker path.
type MarkerState int

const (
	MarkerMissing MarkerState = iota
	// MarkerLegacy is an empty or unparseable file from an older release.
	MarkerLegacy
	MarkerPresent
)

// ReadMarker loads the marker at path.
func ReadMarker(path string) (*Marker, MarkerState) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, MarkerMissing
		}
		return nil, MarkerLegacy
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, MarkerLegacy
	}
	var m Marker
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return nil, MarkerLegacy
	}
	return &m, MarkerPresent
}

// WriteMarker stores m at path, creating parent directories.
func WriteMarker(path string, m Marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return config.AtomicWrite(path, data, 0644)
}

// Fingerprint hashes the desired params as compact JSON with sorted keys.
func Fingerprint(desired chatparams.Params) string {
	encoded, err := json.Marshal(map[string]float64(desired))
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// NeedsFullSync reports whether a marker is absent, legacy or was written
// for a different version or set of defaults.
func NeedsFullSync(m *Marker, state MarkerState, version, hash string) bool {
	if state != MarkerPresent || m == nil {
		return true
	}
	return m.Version != version || m.DesiredHash != hash
}
