package main

import (
	"fmt"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	"github.com/mittwald/owui-bootstrap/internal/config"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// DefaultsCmd previews what a chat request for a model would receive.
type DefaultsCmd struct {
	Model           string `help:"Model id (default: the discovered default chat model)."`
	UserSettings    string `help:"JSON file with a user's settings document." name:"user-settings"`
	Payload         string `help:"JSON file with a chat completion request."`
	HyperparamsPath string `help:"Hugging Face hyperparameter file." env:"HF_MODEL_HYPERPARAMS_PATH" default:"/usr/local/share/openwebui/hf-model-hyperparameters.json"`
	DiscoveryCache  string `help:"Discovery cache naming the default chat model (default: <data-dir>/mittwald-models-discovery.json)." env:"MITTWALD_DISCOVERY_CACHE_PATH"`
}

// Preview is printed by the defaults command.
type Preview struct {
	Model           string            `json:"model"`
	Profile         string            `json:"profile"`
	Defaults        chatparams.Params `json:"defaults"`
	Generation      chatparams.Params `json:"generation_config,omitempty"`
	Hyperparameters chatparams.Params `json:"hyperparameters,omitempty"`
	Env             chatparams.Params `json:"env,omitempty"`
	Request         map[string]any    `json:"request"`
	FromUser        []string          `json:"from_user"`
	FromDefaults    []string          `json:"from_defaults"`
}

func readObject(path, what string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	doc, ok := config.ReadJSONObject(path)
	if !ok {
		return nil, fmt.Errorf("%s %s: not a JSON object", what, path)
	}
	return doc, nil
}

func (c *DefaultsCmd) preview(g *Globals) (*Preview, error) {
	settings, err := readObject(c.UserSettings, "user settings")
	if err != nil {
		return nil, err
	}
	payload, err := readObject(c.Payload, "payload")
	if err != nil {
		return nil, err
	}

	model := c.Model
	if model == "" {
		model, _ = payload["model"].(string)
	}
	if model == "" {
		model = chatparams.LoadDefaultChatModel(paths.Or(c.DiscoveryCache, g.DataDir, paths.DiscoveryCacheFileName))
	}
	if model != "" {
		payload["model"] = model
	}

	resolver := chatparams.NewResolver(g.profiles(), chatparams.LoadHyperparamIndex(c.HyperparamsPath))
	res := resolver.Defaults(model)
	applied := chatparams.ApplyRequestDefaults(payload, settings, resolver)

	return &Preview{
		Model:           model,
		Profile:         res.ProfileName(),
		Defaults:        res.Params,
		Generation:      res.Generation,
		Hyperparameters: res.Hyperparameters,
		Env:             res.Env,
		Request:         payload,
		FromUser:        nonNil(applied.FromUser),
		FromDefaults:    nonNil(applied.FromDefaults),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (c *DefaultsCmd) Run(g *Globals) error {
	g.setupLogging("defaults")

	p, err := c.preview(g)
	if err != nil {
		return err
	}
	return writeOutput("", p)
}
