// Package portal scrapes the model catalogue of the mittwald AI developer
// portal and reports what changed since the previous run.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// Model is one catalogue entry. API entries are normalised; HTML rows keep
// the table headers as keys.
type Model = map[string]any

// Scraper reads the portal, preferring its JSON API over the HTML page.
type Scraper struct {
	baseURL string
	http    *resty.Client
	now     func() time.Time
}

// New builds a Scraper for baseURL. token is sent as a bearer token when set.
func New(baseURL, token string, timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().SetTimeout(timeout)
	if token != "" {
		rc.SetAuthToken(token).SetHeader("Content-Type", "application/json")
	}
	return &Scraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		now:     time.Now,
	}
}

func (s *Scraper) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// ScrapeModels returns the catalogue from GET /api/models, or from the
// table on /models when the API isn't usable. Failures yield an empty list.
func (s *Scraper) ScrapeModels(ctx context.Context) []Model {
	models, err := s.fromAPI(ctx)
	if err == nil {
		return models
	}
	L_warn("API fetch failed, trying HTML scrape", "error", err)

	models, err = s.fromHTML(ctx)
	if err != nil {
		L_error("HTML scrape failed", "error", err)
		return []Model{}
	}
	return models
}

func (s *Scraper) fromAPI(ctx context.Context) ([]Model, error) {
	resp, err := s.http.R().SetContext(ctx).Get(s.baseURL + "/api/models")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("GET /api/models: HTTP %d", resp.StatusCode())
	}
	var raw []any
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("decode /api/models: %w", err)
	}
	return NormalizeModels(raw, s.timestamp()), nil
}

func (s *Scraper) fromHTML(ctx context.Context) ([]Model, error) {
	resp, err := s.http.R().SetContext(ctx).Get(s.baseURL + "/models")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("GET /models: HTTP %d", resp.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse /models: %w", err)
	}
	return ParseTable(doc, s.timestamp()), nil
}

// ParseTable reads the first table with class models-table, or else the
// first table on the page. Header cells name the columns; rows with fewer
// than two cells are skipped.
func ParseTable(doc *goquery.Document, scrapedAt string) []Model {
	models := []Model{}
	table := doc.Find("table.models-table").First()
	if table.Length() == 0 {
		table = doc.Find("table").First()
	}
	if table.Length() == 0 {
		return models
	}

	var headers []string
	table.Find("th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(th.Text()))
	})

	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		var cols []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) < 2 {
			return
		}
		m := Model{}
		for j := 0; j < len(cols) && j < len(headers); j++ {
			m[headers[j]] = cols[j]
		}
		m["scraped_at"] = scrapedAt
		models = append(models, m)
	})
	return models
}

func firstString(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func valueOr(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// NormalizeModels maps API entries onto a common shape: id, name, version,
// status, parameters (merged with params and recommended_settings) and
// scraped_at. Entries that aren't objects are dropped.
func NormalizeModels(raw []any, scrapedAt string) []Model {
	out := []Model{}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := firstString(m, "id", "model_id")
		if !ok {
			id = valueOr(m, "name", "unknown")
		}
		name, ok := firstString(m, "name")
		if !ok {
			name = valueOr(m, "display_name", "Unknown")
		}
		params := map[string]any{}
		if p, ok := m["parameters"].(map[string]any); ok {
			for k, v := range p {
				params[k] = v
			}
		}
		for _, extra := range []string{"params", "recommended_settings"} {
			if p, ok := m[extra].(map[string]any); ok {
				for k, v := range p {
					params[k] = v
				}
			}
		}
		out = append(out, Model{
			"id":         id,
			"name":       name,
			"version":    valueOr(m, "version", "latest"),
			"status":     valueOr(m, "status", "active"),
			"parameters": params,
			"scraped_at": scrapedAt,
		})
	}
	return out
}

// ModelDetails fetches GET /api/models/{id}. Errors yield an empty object.
func (s *Scraper) ModelDetails(ctx context.Context, id string) map[string]any {
	resp, err := s.http.R().SetContext(ctx).Get(s.baseURL + "/api/models/" + id)
	if err == nil && !resp.IsSuccess() {
		err = fmt.Errorf("HTTP %d", resp.StatusCode())
	}
	var details map[string]any
	if err == nil {
		err = json.Unmarshal(resp.Body(), &details)
	}
	if err != nil || details == nil {
		L_warn("error fetching model details", "id", id, "error", err)
		return map[string]any{}
	}
	return details
}
