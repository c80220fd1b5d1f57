package main

import (
	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/patcher"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// PatchCmd rewrites the bundled Open WebUI sources.
type PatchCmd struct {
	Router             string `help:"Path of the OpenAI router module." env:"OWUI_ROUTER_SOURCE" default:"/app/backend/open_webui/routers/openai.py"`
	Users              string `help:"Path of the users model module." env:"OWUI_USERS_SOURCE" default:"/app/backend/open_webui/models/users.py"`
	Frontend           string `help:"Directory of the compiled frontend bundle." env:"OWUI_FRONTEND_BUNDLE" default:"/app/build/_app/immutable"`
	HyperparamsPath    string `help:"Hugging Face hyperparameter file read by the patched code." env:"HF_MODEL_HYPERPARAMS_PATH" default:"/usr/local/share/openwebui/hf-model-hyperparameters.json"`
	DiscoveryCachePath string `help:"Discovery cache read by the patched code (default: <data-dir>/mittwald-models-discovery.json)." env:"MITTWALD_DISCOVERY_CACHE_PATH"`
}

func (c *PatchCmd) Run(g *Globals) error {
	g.setupLogging("patch-openwebui-source")

	res, err := patcher.Run(patcher.Options{
		RouterPath:         c.Router,
		UsersPath:          c.Users,
		FrontendRoot:       c.Frontend,
		HyperparamsPath:    c.HyperparamsPath,
		DiscoveryCachePath: paths.Or(c.DiscoveryCachePath, g.DataDir, paths.DiscoveryCacheFileName),
		Profiles:           g.profiles(),
	})
	if err != nil {
		return err
	}
	if !res.Frontend.Skipped {
		L_info("frontend bundle patched", "files", res.Frontend.Files, "replacements", res.Frontend.Replacements)
	}
	return nil
}
