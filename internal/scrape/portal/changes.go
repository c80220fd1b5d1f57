package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"

	"github.com/mittwald/owui-bootstrap/internal/config"
)

// Modification pairs the previous and current state of one model.
type Modification struct {
	ID       string `json:"id"`
	Previous Model  `json:"previous"`
	Current  Model  `json:"current"`
}

// Changes is the difference between two catalogue snapshots.
type Changes struct {
	Added      []Model        `json:"added"`
	Removed    []Model        `json:"removed"`
	Modified   []Modification `json:"modified"`
	HasChanges bool           `json:"has_changes"`
	ScrapedAt  string         `json:"scraped_at"`
}

// modelID keys a model by its id, falling back to the name column of HTML
// rows. Models with neither are not compared.
func modelID(m Model) (string, bool) {
	for _, key := range []string{"id", "name"} {
		if v, ok := m[key]; ok && v != nil {
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

// sameModel compares two models, ignoring when they were scraped.
func sameModel(a, b Model) bool {
	strip := func(m Model) Model {
		out := make(Model, len(m))
		for k, v := range m {
			if k != "scraped_at" {
				out[k] = v
			}
		}
		return out
	}
	return reflect.DeepEqual(strip(a), strip(b))
}

// CheckForChanges reports models added, removed and modified between
// previous and current, matched by id.
func CheckForChanges(previous, current []Model, scrapedAt string) Changes {
	changes := Changes{Added: []Model{}, Removed: []Model{}, Modified: []Modification{}, ScrapedAt: scrapedAt}

	prevByID := map[string]Model{}
	for _, m := range previous {
		if id, ok := modelID(m); ok {
			prevByID[id] = m
		}
	}
	curIDs := map[string]bool{}
	for _, m := range current {
		id, ok := modelID(m)
		if !ok {
			continue
		}
		curIDs[id] = true
		prev, existed := prevByID[id]
		switch {
		case !existed:
			changes.Added = append(changes.Added, m)
		case !sameModel(prev, m):
			changes.Modified = append(changes.Modified, Modification{ID: id, Previous: prev, Current: m})
		}
	}
	for _, m := range previous {
		if id, ok := modelID(m); ok && !curIDs[id] {
			changes.Removed = append(changes.Removed, m)
		}
	}
	changes.HasChanges = len(changes.Added)+len(changes.Removed)+len(changes.Modified) > 0
	return changes
}

// LoadPrevious reads a saved snapshot: either a bare list of models or a
// full output document. Missing or unreadable files yield no models.
func LoadPrevious(path string) []Model {
	data, err := os.ReadFile(path)
	if err != nil {
		return []Model{}
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return []Model{}
	}
	if doc, ok := raw.(map[string]any); ok {
		raw = doc["models"]
	}
	list, _ := raw.([]any)
	out := []Model{}
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// SavePrevious writes models as the snapshot for the next run.
func SavePrevious(path string, models []Model) error {
	return config.AtomicWriteJSON(path, models, 0644)
}

// Metadata describes a scrape run.
type Metadata struct {
	ScrapedAt  string `json:"scraped_at"`
	PortalURL  string `json:"portal_url"`
	ModelCount int    `json:"model_count"`
}

// Document is the scraper output.
type Document struct {
	Models   []Model  `json:"models"`
	Changes  Changes  `json:"changes"`
	Metadata Metadata `json:"metadata"`
}

// Run scrapes the catalogue once and compares it to previous. With details
// set, each model gains a "details" object from /api/models/{id}.
func (s *Scraper) Run(ctx context.Context, portalURL string, previous []Model, details bool) *Document {
	models := s.ScrapeModels(ctx)
	if details {
		for _, m := range models {
			if id, ok := modelID(m); ok {
				m["details"] = s.ModelDetails(ctx, id)
			}
		}
	}
	now := s.timestamp()
	return &Document{
		Models:  models,
		Changes: CheckForChanges(previous, models, now),
		Metadata: Metadata{
			ScrapedAt:  now,
			PortalURL:  portalURL,
			ModelCount: len(models),
		},
	}
}
