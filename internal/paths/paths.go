// Package paths provides centralized path resolution for owui-bootstrap.
// This package has NO internal imports (only stdlib) to avoid import cycles.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults for a stock Open WebUI container image.
const (
	DefaultDataDir          = "/app/backend/data"
	DefaultRouterSource     = "/app/backend/open_webui/routers/openai.py"
	DefaultUsersSource      = "/app/backend/open_webui/models/users.py"
	DefaultFrontendBundle   = "/app/build/_app/immutable"
	DefaultHyperparamsPath  = "/usr/local/share/openwebui/hf-model-hyperparameters.json"
	DBFileName              = "webui.db"
	ConfigFileName          = "config.json"
	DiscoveryCacheFileName  = "mittwald-models-discovery.json"
	BootstrapMarkerFileName = ".bootstrapped_chat_params"
)

// DataPath returns a path within the data directory.
func DataPath(dataDir, name string) string {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	if expanded, err := ExpandTilde(dataDir); err == nil {
		dataDir = expanded
	}
	return filepath.Join(dataDir, name)
}

// Or returns path when set, otherwise the fallback inside dataDir.
func Or(path, dataDir, name string) string {
	if path != "" {
		return path
	}
	return DataPath(dataDir, name)
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}

// NonEmptyFile reports whether path exists, is a regular file and has content.
func NonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}
