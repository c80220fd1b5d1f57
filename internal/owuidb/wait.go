package owuidb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// ErrDBTimeout is returned when the database file does not appear in time.
var ErrDBTimeout = errors.New("database not ready")

// WaitForDB blocks until path exists and is non-empty. Directory events
// wake it early; poll covers filesystems where fsnotify is unreliable.
func WaitForDB(ctx context.Context, path string, timeout, poll time.Duration) error {
	if paths.NonEmptyFile(path) {
		return nil
	}
	if poll <= 0 {
		poll = time.Second
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			events, errs = watcher.Events, watcher.Errors
		} else {
			L_debug("owuidb: cannot watch data dir, polling only", "dir", filepath.Dir(path), "error", err)
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	target := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s: %s", ErrDBTimeout, timeout, path)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			L_trace("owuidb: db file event", "op", ev.Op.String())
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			L_debug("owuidb: watcher error", "error", err)
			continue
		case <-ticker.C:
		}
		if paths.NonEmptyFile(path) {
			return nil
		}
	}
}
