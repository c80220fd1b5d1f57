package owuidb

import (
	"context"
	"fmt"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
)

// ChatSync carries the inputs of one chat update pass.
type ChatSync struct {
	Desired chatparams.Params
	Mode    Mode
}

// applyParams fills desired values into a params object, creating it when
// raw is not an object.
func (s ChatSync) applyParams(raw any) (map[string]any, bool) {
	params, ok := raw.(map[string]any)
	changed := !ok
	if !ok {
		params = map[string]any{}
	}
	for _, k := range s.Desired.Keys() {
		v := s.Desired[k]
		if shouldSet(params, k, s.Mode, nil) && !chatparams.Equal(params[k], v) {
			params[k] = v
			changed = true
		}
	}
	return params, changed
}

func (s ChatSync) applyMessage(msg any) bool {
	m, ok := msg.(map[string]any)
	if !ok {
		return false
	}
	if _, has := m["params"]; !has && s.Mode == ModeMissing {
		return false
	}
	params, changed := s.applyParams(m["params"])
	if changed {
		m["params"] = params
	}
	return changed
}

// Apply updates one chat document in place: the chat-level params and the
// per-message snapshots kept under history.messages and messages.
func (s ChatSync) Apply(payload map[string]any) bool {
	params, changed := s.applyParams(payload["params"])
	payload["params"] = params

	if history, ok := payload["history"].(map[string]any); ok {
		if messages, ok := history["messages"].(map[string]any); ok {
			for _, msg := range messages {
				if s.applyMessage(msg) {
					changed = true
				}
			}
		}
	}
	if messages, ok := payload["messages"].([]any); ok {
		for _, msg := range messages {
			if s.applyMessage(msg) {
				changed = true
			}
		}
	}
	return changed
}

// UpdateChatParams applies s to every chat row and returns the number of
// rows written.
func UpdateChatParams(ctx context.Context, q Querier, table, idCol, payloadCol string, s ChatSync) (int, error) {
	rows, err := loadRows(ctx, q, table, idCol, payloadCol)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", table, err)
	}
	updated := 0
	for _, r := range rows {
		payload := decodeObject(r.doc)
		if !s.Apply(payload) {
			continue
		}
		if err := updateRow(ctx, q, table, idCol, payloadCol, r.id, payload); err != nil {
			return updated, fmt.Errorf("update %s: %w", table, err)
		}
		updated++
	}
	return updated, nil
}
