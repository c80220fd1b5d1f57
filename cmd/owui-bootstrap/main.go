// owui-bootstrap prepares an Open WebUI container for the mittwald AI
// hosting provider: it patches the bundled sources, registers the provider
// with discovered models, seeds chat defaults into existing rows and scrapes
// upstream model parameters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

const version = "0.3.0"

// Globals are shared by every command.
type Globals struct {
	LogLevel     string `help:"Log level (trace, debug, info, warn, error)." env:"OWUI_BOOTSTRAP_LOG_LEVEL" default:"info" enum:"trace,debug,info,warn,error"`
	DataDir      string `help:"Open WebUI data directory." env:"OWUI_DATA_DIR" default:"/app/backend/data"`
	ProfilesPath string `help:"TOML file replacing the built-in model profiles." env:"OWUI_BOOTSTRAP_PROFILES_PATH"`
}

// setupLogging initialises the logger with the tool name as prefix.
func (g *Globals) setupLogging(prefix string) {
	level, err := ParseLevel(g.LogLevel)
	if err != nil {
		level = LevelInfo
	}
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.Prefix = prefix
	Init(cfg)
}

func (g *Globals) profiles() *chatparams.ProfileSet {
	return chatparams.LoadProfiles(g.ProfilesPath)
}

// CLI is the command tree.
type CLI struct {
	Globals

	Patch        PatchCmd        `cmd:"" help:"Patch Open WebUI sources with provider chat defaults (image build time)."`
	Discover     DiscoverCmd     `cmd:"" help:"Discover provider models and merge them into the Open WebUI config."`
	SeedParams   SeedParamsCmd   `cmd:"" name:"seed-params" help:"Seed default chat params into existing users and chats."`
	ScrapeHF     ScrapeHFCmd     `cmd:"" name:"scrape-hf" help:"Scrape generation hyperparameters from Hugging Face."`
	ScrapePortal ScrapePortalCmd `cmd:"" name:"scrape-portal" help:"Scrape the model catalogue of the developer portal."`
	Inspect      InspectCmd      `cmd:"" help:"Print the persisted Open WebUI config, filtered by a jq expression."`
	Defaults     DefaultsCmd     `cmd:"" help:"Show effective chat defaults for a model and a filled request."`
	Serve        ServeCmd        `cmd:"" help:"Run discovery and seeding once, then on a schedule."`
	Version      VersionCmd      `cmd:"" help:"Print the version."`
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Printf("owui-bootstrap %s\n", version)
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("owui-bootstrap"),
		kong.Description("Bootstrap Open WebUI for the mittwald AI hosting provider."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&cli.Globals)
	stop()
	if err != nil {
		L_error("command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}
