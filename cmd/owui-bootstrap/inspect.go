package main

import (
	"fmt"
	"os"

	"github.com/mittwald/owui-bootstrap/internal/config"
	"github.com/mittwald/owui-bootstrap/internal/jsonq"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// InspectCmd prints the persisted config record.
type InspectCmd struct {
	Query   string `arg:"" optional:"" help:"jq expression (default: .)."`
	DBPath  string `help:"Open WebUI database (default: <data-dir>/webui.db)." env:"OWUI_DB_PATH"`
	File    string `help:"Read a config.json instead of the database." short:"f"`
	Raw     bool   `help:"Print string results without quotes." short:"r"`
	Compact bool   `help:"One line per result." short:"c"`
	YAML    bool   `help:"Print results as YAML documents." name:"yaml" short:"y"`
	Redact  bool   `help:"Mask API keys and tokens." default:"true" negatable:""`
}

func (c *InspectCmd) record(g *Globals) (config.Record, error) {
	if c.File != "" {
		doc, ok := config.ReadJSONObject(c.File)
		if !ok {
			return nil, fmt.Errorf("%s: not a JSON object", c.File)
		}
		return doc, nil
	}
	return config.LoadRecordFromDB(paths.Or(c.DBPath, g.DataDir, paths.DBFileName)), nil
}

func (c *InspectCmd) Run(g *Globals) error {
	g.setupLogging("inspect")

	record, err := c.record(g)
	if err != nil {
		return err
	}
	out, err := jsonq.Query(c.Query, record, jsonq.Options{Raw: c.Raw, Compact: c.Compact, YAML: c.YAML, Redact: c.Redact})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, out)
	return err
}
