package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mittwald/owui-bootstrap/internal/config"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/scrape/huggingface"
	"github.com/mittwald/owui-bootstrap/internal/scrape/portal"
)

// writeOutput prints doc as indented JSON to stdout, or writes it
// atomically to path.
func writeOutput(path string, doc any) error {
	if path == "" {
		data, err := config.MarshalJSON(doc)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := config.AtomicWriteJSON(path, doc, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	L_info("output written", "path", path)
	return nil
}

// ScrapeHFCmd collects generation parameters for models from Hugging Face.
type ScrapeHFCmd struct {
	ModelsFile  string        `help:"JSON file with model names (a list, or an object with a models list)." name:"models-file"`
	ModelNames  string        `help:"Comma separated model names." env:"HUGGINGFACE_MODEL_NAMES"`
	TargetModel string        `help:"Model whose values fill the top level of the output." env:"HUGGINGFACE_TARGET_MODEL"`
	HFToken     string        `help:"Hugging Face access token." env:"HF_TOKEN"`
	HubToken    string        `help:"Hugging Face access token (alternative name)." env:"HUGGINGFACE_TOKEN" hidden:""`
	Debug       string        `help:"Force debug logging (1, true or yes)." env:"HF_SCRAPER_DEBUG" hidden:""`
	Output      string        `help:"Output file (default: stdout)." short:"o"`
	CacheDir    string        `help:"Cache Hub responses in this directory."`
	Refresh     bool          `help:"Ignore cached responses."`
	Offline     bool          `help:"Only use cached responses."`
	Concurrency int           `help:"Models scraped in parallel." default:"4"`
	Timeout     time.Duration `help:"HTTP timeout per request." default:"30s"`
}

func (c *ScrapeHFCmd) token() string {
	if t := strings.TrimSpace(c.HFToken); t != "" {
		return t
	}
	return strings.TrimSpace(c.HubToken)
}

func debugRequested(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (c *ScrapeHFCmd) Run(ctx context.Context, g *Globals) error {
	g.setupLogging("scrape-huggingface")
	if debugRequested(c.Debug) {
		SetLevel(LevelDebug)
	}

	profiles := g.profiles()
	token := c.token()
	names := huggingface.CollectModelNames(c.ModelsFile, c.ModelNames, c.TargetModel)
	L_info("scraping models", "count", len(names), "token", token != "")

	scraper := huggingface.New(huggingface.Options{
		Token:       token,
		Timeout:     c.Timeout,
		CacheDir:    c.CacheDir,
		Refresh:     c.Refresh,
		Offline:     c.Offline,
		Concurrency: c.Concurrency,
		Profiles:    profiles,
	})
	results := scraper.ScrapeAll(ctx, names)
	if err := ctx.Err(); err != nil {
		return err
	}
	selected := huggingface.PickSelected(names, c.TargetModel)
	out := huggingface.BuildOutput(results, selected, profiles.Fallback, token != "")
	return writeOutput(c.Output, out)
}

// ScrapePortalCmd scrapes the portal catalogue and reports changes.
type ScrapePortalCmd struct {
	PortalURL    string        `arg:"" name:"portal_url" help:"Developer portal URL."`
	Output       string        `help:"Output file (default: stdout)." short:"o"`
	Token        string        `help:"Bearer token for the portal API." env:"MITTWALD_API_TOKEN"`
	Previous     string        `help:"Snapshot of the previous run." default:".cache/models.json"`
	SavePrevious bool          `help:"Replace the snapshot with this run's models."`
	Details      bool          `help:"Fetch per-model details from the API."`
	Timeout      time.Duration `help:"HTTP timeout per request." default:"30s"`
}

func (c *ScrapePortalCmd) Run(ctx context.Context, g *Globals) error {
	g.setupLogging("scrape-portal")

	scraper := portal.New(c.PortalURL, c.Token, c.Timeout)
	doc := scraper.Run(ctx, c.PortalURL, portal.LoadPrevious(c.Previous), c.Details)
	if doc.Changes.HasChanges {
		L_info("catalogue changed", "added", len(doc.Changes.Added),
			"removed", len(doc.Changes.Removed), "modified", len(doc.Changes.Modified))
	}
	if err := writeOutput(c.Output, doc); err != nil {
		return err
	}
	if c.SavePrevious {
		if err := portal.SavePrevious(c.Previous, doc.Models); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	return nil
}
