package main

import (
	"context"
	"time"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/owuidb"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// SeedParamsCmd writes default chat params into existing users and chats.
type SeedParamsCmd struct {
	DBPath             string `help:"Open WebUI database (default: <data-dir>/webui.db)." env:"OWUI_DB_PATH"`
	MarkerPath         string `help:"Bootstrap marker file (default: <data-dir>/.bootstrapped_chat_params)." env:"OWUI_BOOTSTRAP_MARKER"`
	DiscoveryCachePath string `help:"Discovery cache naming the default chat model (default: <data-dir>/mittwald-models-discovery.json)." env:"MITTWALD_DISCOVERY_CACHE_PATH"`
	HyperparamsPath    string `help:"Hugging Face hyperparameter file." env:"HF_MODEL_HYPERPARAMS_PATH" default:"/usr/local/share/openwebui/hf-model-hyperparameters.json"`

	Mode  string  `help:"Overwrite mode: always, missing or stale." env:"OWUI_BOOTSTRAP_OVERWRITE_MODE"`
	Force *string `help:"Legacy switch: true means always, anything else missing." env:"OWUI_BOOTSTRAP_FORCE"`

	ReapplyOnStart        bool   `help:"Run a full sync even when the marker is current." env:"OWUI_BOOTSTRAP_REAPPLY_ON_START" default:"false"`
	MarkerVersion         string `help:"Marker version; changing it triggers a full sync." env:"OWUI_BOOTSTRAP_MARKER_VERSION" default:"v2"`
	SyncChatsOnEveryStart bool   `help:"Update chats on every start, not only on full syncs." env:"OWUI_BOOTSTRAP_SYNC_CHATS_ON_EVERY_START" default:"false"`
	PollIntervalSec       int    `help:"Seconds between attempts while waiting for users." env:"OWUI_BOOTSTRAP_POLL_INTERVAL_SEC" default:"2"`
	MaxWaitSec            int    `help:"Give up after this many seconds; 0 waits forever." env:"OWUI_BOOTSTRAP_MAX_WAIT_SECONDS" default:"86400"`
	DBWaitTimeoutSec      int    `help:"Seconds to wait for the database file to appear." env:"OWUI_BOOTSTRAP_DB_WAIT_TIMEOUT_SEC" default:"600"`
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// seederConfig resolves the desired defaults and builds the seeder input.
func (c *SeedParamsCmd) seederConfig(g *Globals) owuidb.SeederConfig {
	cachePath := paths.Or(c.DiscoveryCachePath, g.DataDir, paths.DiscoveryCacheFileName)
	resolver := chatparams.NewResolver(g.profiles(), chatparams.LoadHyperparamIndex(c.HyperparamsPath))
	desired := owuidb.DesiredDefaults(resolver, cachePath)

	return owuidb.SeederConfig{
		DBPath:                paths.Or(c.DBPath, g.DataDir, paths.DBFileName),
		MarkerPath:            paths.Or(c.MarkerPath, g.DataDir, paths.BootstrapMarkerFileName),
		Mode:                  owuidb.ResolveMode(c.Mode, c.Force),
		ReapplyOnStart:        c.ReapplyOnStart,
		MarkerVersion:         c.MarkerVersion,
		SyncChatsOnEveryStart: c.SyncChatsOnEveryStart,
		PollInterval:          seconds(c.PollIntervalSec),
		MaxWait:               seconds(c.MaxWaitSec),
		DBWaitTimeout:         seconds(c.DBWaitTimeoutSec),
		Desired:               desired.Params,
	}
}

func (c *SeedParamsCmd) run(ctx context.Context, g *Globals) error {
	report, err := owuidb.NewSeeder(c.seederConfig(g)).Run(ctx)
	if err != nil {
		return err
	}
	L_debug("seeding finished", "outcome", report.Outcome, "attempts", report.Attempts,
		"users", report.UsersUpdated, "chats", report.ChatsUpdated)
	return nil
}

func (c *SeedParamsCmd) Run(ctx context.Context, g *Globals) error {
	g.setupLogging("bootstrap-chat-params")
	return c.run(ctx, g)
}
