package main

import (
	"context"
	"fmt"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/schedule"
)

// ServeCmd keeps the provider config and chat defaults current while Open
// WebUI runs.
type ServeCmd struct {
	Schedule string `help:"Cron expression, @every descriptor or duration (e.g. 6h, 1d)." env:"OWUI_BOOTSTRAP_SCHEDULE" default:"@every 6h"`

	Discover DiscoverCmd   `embed:""`
	Seed     SeedParamsCmd `embed:"" prefix:"seed-"`
}

// refresh runs discovery, then seeding. A discovery failure does not stop
// seeding.
func (c *ServeCmd) refresh(g *Globals) schedule.Job {
	return func(ctx context.Context) error {
		defer SetPrefix("owui-bootstrap")

		SetPrefix("bootstrap-mittwald-config")
		if err := c.Discover.run(ctx, g); err != nil {
			L_warn("discovery failed", "error", err)
		}
		SetPrefix("bootstrap-chat-params")
		if err := c.Seed.run(ctx, g); err != nil {
			return fmt.Errorf("seed chat params: %w", err)
		}
		return nil
	}
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	g.setupLogging("owui-bootstrap")
	L_info("serving", "schedule", c.Schedule)

	return schedule.Run(ctx, c.Schedule, "refresh", c.refresh(g))
}
