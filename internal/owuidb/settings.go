package owuidb

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
)

// bootstrapMetaKey holds per-user bookkeeping inside settings.ui.
const bootstrapMetaKey = "_mittwald_bootstrap"

// decodeObject parses a JSON column. NULL, empty, invalid or non-object
// content yields an empty object. Numbers stay json.Number so integers of
// any size round-trip unchanged.
func decodeObject(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return map[string]any{}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw.String)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func encodeObject(v map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// child returns parent[key] as an object, replacing anything else with a
// new empty object. created reports the replacement.
func child(parent map[string]any, key string) (obj map[string]any, created bool) {
	if m, ok := parent[key].(map[string]any); ok {
		return m, false
	}
	m := map[string]any{}
	parent[key] = m
	return m, true
}

// UserSync carries the inputs of one settings update pass.
type UserSync struct {
	Desired chatparams.Params
	Mode    Mode
	Version string
	Hash    string
	Now     int64
}

// Apply updates one user's settings document in place and reports whether
// anything changed. The current Open WebUI path settings.ui.params is
// canonical; settings.ui.chat.params, settings.params and
// settings.chat.params are kept as mirrors.
func (s UserSync) Apply(base map[string]any) bool {
	changed := false
	mark := func(c bool) {
		if c {
			changed = true
		}
	}

	ui, c := child(base, "ui")
	mark(c)
	params, c := child(ui, "params")
	mark(c)
	uiChat, c := child(ui, "chat")
	mark(c)
	uiChatParams, c := child(uiChat, "params")
	mark(c)
	topParams, c := child(base, "params")
	mark(c)
	topChat, c := child(base, "chat")
	mark(c)
	topChatParams, c := child(topChat, "params")
	mark(c)
	mirrors := []map[string]any{uiChatParams, topParams, topChatParams}

	meta, c := child(ui, bootstrapMetaKey)
	mark(c)
	managed, c := child(meta, "managed_params")
	mark(c)

	// Carry values forward from the legacy paths.
	for _, source := range mirrors {
		for key, value := range source {
			current, present := params[key]
			switch {
			case !present:
				params[key] = value
				changed = true
			case s.Mode == ModeStale && isStale(key, current) && !isStale(key, value):
				params[key] = value
				changed = true
			}
		}
	}

	keys := s.Desired.Keys()
	for _, k := range keys {
		v := s.Desired[k]
		if shouldSet(params, k, s.Mode, managed) {
			if !chatparams.Equal(params[k], v) {
				params[k] = v
				changed = true
			}
			if !chatparams.Equal(managed[k], v) {
				managed[k] = v
				changed = true
			}
		} else if _, ok := managed[k]; ok && s.Mode != ModeAlways && !chatparams.Equal(params[k], managed[k]) {
			// The user changed it; stop managing the key.
			delete(managed, k)
			changed = true
		}

		for _, target := range mirrors {
			if shouldSet(target, k, s.Mode, nil) && !chatparams.Equal(target[k], params[k]) {
				target[k] = params[k]
				changed = true
			}
		}
	}

	for _, target := range mirrors {
		for key, value := range params {
			if shouldSet(target, key, s.Mode, nil) && !chatparams.Equal(target[key], value) {
				target[key] = value
				changed = true
			}
		}
	}

	for _, k := range keys {
		if _, ok := params[k]; !ok {
			params[k] = s.Desired[k]
			changed = true
		}
		for _, target := range mirrors {
			if _, ok := target[k]; !ok {
				target[k] = params[k]
				changed = true
			}
		}
	}

	metaChanged := false
	if !chatparams.Equal(meta["version"], s.Version) {
		meta["version"] = s.Version
		metaChanged = true
	}
	if !chatparams.Equal(meta["desired_hash"], s.Hash) {
		meta["desired_hash"] = s.Hash
		metaChanged = true
	}
	if changed || metaChanged {
		meta["updated_at_epoch"] = s.Now
		changed = true
	}
	return changed
}

type row struct {
	id  any
	doc sql.NullString
}

func loadRows(ctx context.Context, q Querier, table, idCol, docCol string) ([]row, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s, %s FROM %s",
		quoteIdent(idCol), quoteIdent(docCol), quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.doc); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func updateRow(ctx context.Context, q Querier, table, idCol, docCol string, id any, doc map[string]any) error {
	encoded, err := encodeObject(doc)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		quoteIdent(table), quoteIdent(docCol), quoteIdent(idCol)), encoded, id)
	return err
}

// UpdateUserSettings applies s to every row of the user table and returns
// the number of rows written.
func UpdateUserSettings(ctx context.Context, q Querier, table, idCol, settingsCol string, s UserSync) (int, error) {
	rows, err := loadRows(ctx, q, table, idCol, settingsCol)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", table, err)
	}
	updated := 0
	for _, r := range rows {
		settings := decodeObject(r.doc)
		if !s.Apply(settings) {
			continue
		}
		if err := updateRow(ctx, q, table, idCol, settingsCol, r.id, settings); err != nil {
			return updated, fmt.Errorf("update %s: %w", table, err)
		}
		updated++
	}
	return updated, nil
}
