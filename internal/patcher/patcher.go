// Package patcher rewrites vendored Open WebUI sources at image build time so
// that chat requests and new users pick up the provider's generation
// defaults. Every stage is anchor based and idempotent: a target already
// carrying its marker is left alone, and a target missing any anchor is not
// written at all.
package patcher

import (
	"errors"
	"fmt"
	"os"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	"github.com/mittwald/owui-bootstrap/internal/config"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// Markers written into patched files.
const (
	RouterMarker = "MITTWALD_CHAT_DEFAULTS_PATCH_V1"
	UsersMarker  = "MITTWALD_USER_SETTINGS_PATCH_V1"
)

var (
	// ErrTargetMissing is returned when a required source file does not exist.
	ErrTargetMissing = errors.New("patch target does not exist")
	// ErrAnchorNotFound is returned when a source file lacks an expected anchor.
	ErrAnchorNotFound = errors.New("anchor not found")
)

// Options configures a patch run.
type Options struct {
	RouterPath         string
	UsersPath          string
	FrontendRoot       string
	HyperparamsPath    string
	DiscoveryCachePath string
	Profiles           *chatparams.ProfileSet
}

func (o *Options) withDefaults() {
	if o.RouterPath == "" {
		o.RouterPath = paths.DefaultRouterSource
	}
	if o.UsersPath == "" {
		o.UsersPath = paths.DefaultUsersSource
	}
	if o.FrontendRoot == "" {
		o.FrontendRoot = paths.DefaultFrontendBundle
	}
	if o.HyperparamsPath == "" {
		o.HyperparamsPath = paths.DefaultHyperparamsPath
	}
	if o.DiscoveryCachePath == "" {
		o.DiscoveryCachePath = paths.DataPath("", paths.DiscoveryCacheFileName)
	}
	if o.Profiles == nil {
		o.Profiles = chatparams.DefaultProfiles()
	}
}

// StageResult reports what a text stage did.
type StageResult struct {
	Applied        bool
	AlreadyPatched bool
}

// Result summarises a full run.
type Result struct {
	Router   StageResult
	Users    StageResult
	Frontend FrontendResult
}

// Run applies the router, users and frontend stages in order. The first
// hard failure stops the run.
func Run(opts Options) (Result, error) {
	opts.withDefaults()
	var res Result

	routerBlock, err := renderHelper("router_helpers.py.tmpl", helperData{
		Marker:          RouterMarker,
		Tables:          renderTables(opts.Profiles, true),
		HyperparamsPath: opts.HyperparamsPath,
	})
	if err != nil {
		return res, err
	}
	usersBlock, err := renderHelper("users_helpers.py.tmpl", helperData{
		Marker:             UsersMarker,
		Tables:             renderTables(opts.Profiles, false),
		HyperparamsPath:    opts.HyperparamsPath,
		DiscoveryCachePath: opts.DiscoveryCachePath,
	})
	if err != nil {
		return res, err
	}

	res.Router, err = patchFile(opts.RouterPath, RouterMarker, func(src string) (string, error) {
		return patchRouterSource(src, routerBlock)
	})
	if err != nil {
		return res, fmt.Errorf("openai router: %w", err)
	}
	logStage("openai router", res.Router)

	res.Users, err = patchFile(opts.UsersPath, UsersMarker, func(src string) (string, error) {
		return patchUsersSource(src, usersBlock)
	})
	if err != nil {
		return res, fmt.Errorf("users model: %w", err)
	}
	logStage("users model", res.Users)

	res.Frontend, err = PatchFrontend(opts.FrontendRoot, FrontendDefaults(opts.Profiles.Fallback))
	if err != nil {
		return res, fmt.Errorf("frontend: %w", err)
	}
	return res, nil
}

func logStage(name string, r StageResult) {
	if r.AlreadyPatched {
		L_info(name + " patch already applied")
		return
	}
	L_info(name + " patch applied")
}

// patchFile reads path, skips it when marker is present, and otherwise
// writes the result of edit atomically. Nothing is written on error.
func patchFile(path, marker string, edit func(string) (string, error)) (StageResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StageResult{}, fmt.Errorf("%w: %s", ErrTargetMissing, path)
		}
		return StageResult{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return StageResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	src := string(raw)
	if containsMarker(src, marker) {
		return StageResult{AlreadyPatched: true}, nil
	}

	out, err := edit(src)
	if err != nil {
		return StageResult{}, err
	}
	if err := config.AtomicWrite(path, []byte(out), info.Mode().Perm()); err != nil {
		return StageResult{}, fmt.Errorf("write %s: %w", path, err)
	}
	L_debug("patcher: wrote file", "path", path, "bytes", len(out))
	return StageResult{Applied: true}, nil
}
