package huggingface

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// StatusError is a non-2xx answer from the Hub.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Code)
}

// fetcher wraps the HTTP client with an optional on-disk response cache.
type fetcher struct {
	http     *resty.Client
	cacheDir string
	refresh  bool // ignore cached responses, but still refill the cache
	offline  bool // serve only from the cache
}

func newFetcher(opts Options) *fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().SetTimeout(timeout)
	if opts.Token != "" {
		rc.SetAuthToken(opts.Token)
	}
	return &fetcher{http: rc, cacheDir: opts.CacheDir, refresh: opts.Refresh, offline: opts.Offline}
}

func (f *fetcher) cachePath(fullURL string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(fullURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:12])+".cache")
}

func readCache(path string) ([]byte, bool) {
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	return data, err == nil
}

// get fetches rawURL with query, consulting the cache first unless refresh
// is set. On network or HTTP errors a cached copy is served when present.
func (f *fetcher) get(ctx context.Context, rawURL string, query url.Values, wantJSON bool) ([]byte, error) {
	fullURL := rawURL
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	cachePath := f.cachePath(fullURL)

	if f.offline {
		data, ok := readCache(cachePath)
		if !ok {
			return nil, fmt.Errorf("offline mode: cache miss for %s", fullURL)
		}
		return data, nil
	}
	if !f.refresh {
		if data, ok := readCache(cachePath); ok {
			L_trace("hf: cache hit", "url", fullURL)
			return data, nil
		}
	}

	req := f.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if wantJSON {
		req.SetHeader("Accept", "application/json")
	}
	resp, err := req.Get(rawURL)
	if err != nil {
		if data, ok := readCache(cachePath); ok {
			L_warn("hf: fetch failed, using cache", "url", fullURL, "error", err)
			return data, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", fullURL, err)
	}
	if !resp.IsSuccess() {
		if data, ok := readCache(cachePath); ok {
			L_warn("hf: non-2xx answer, using cache", "url", fullURL, "status", resp.StatusCode())
			return data, nil
		}
		return nil, &StatusError{URL: fullURL, Code: resp.StatusCode()}
	}

	data := resp.Body()
	if cachePath != "" {
		if err := writeCache(cachePath, data); err != nil {
			L_warn("hf: failed to cache response", "path", cachePath, "error", err)
		}
	}
	return data, nil
}

func writeCache(path string, data []byte) error {
	if err := paths.EnsureParentDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
