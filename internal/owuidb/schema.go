// Package owuidb seeds chat generation defaults into an Open WebUI SQLite
// database. It does not depend on a particular Open WebUI schema version:
// the user, settings and chat tables are located heuristically.
package owuidb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open opens the database with a generous busy timeout; Open WebUI may be
// migrating the same file.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// quoteIdent quotes a table or column name for SQLite.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ListTables returns all table names.
func ListTables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableColumns returns the column names of table in declaration order.
func TableColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   sql.NullString
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func columnSet(cols []string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set
}

type scoredTable struct {
	score int
	name  string
}

// best picks the highest score; ties go to the lexically greatest name.
func best(candidates []scoredTable) string {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name > candidates[j].name
	})
	return candidates[0].name
}

// FindUsersTable locates the user table: one with an email column and a
// role or is_admin column, preferring tables with more user-like columns.
// Returns "" when nothing fits.
func FindUsersTable(ctx context.Context, q Querier) (string, error) {
	tables, err := ListTables(ctx, q)
	if err != nil {
		return "", err
	}
	var candidates []scoredTable
	for _, t := range tables {
		cols, err := TableColumns(ctx, q, t)
		if err != nil {
			return "", err
		}
		set := columnSet(cols)
		if !set["email"] || !(set["role"] || set["is_admin"]) {
			continue
		}
		score := 0
		for _, c := range []string{"name", "username", "created_at", "updated_at", "settings"} {
			if set[c] {
				score++
			}
		}
		candidates = append(candidates, scoredTable{score, t})
	}
	if len(candidates) > 0 {
		return best(candidates), nil
	}
	for _, t := range tables {
		switch strings.ToLower(t) {
		case "user", "users", "account", "accounts":
			return t, nil
		}
	}
	return "", nil
}

func firstColumn(ctx context.Context, q Querier, table string, names ...string) (string, error) {
	cols, err := TableColumns(ctx, q, table)
	if err != nil {
		return "", err
	}
	set := columnSet(cols)
	for _, n := range names {
		if set[n] {
			return n, nil
		}
	}
	return "", nil
}

// FindSettingsColumn returns the JSON settings column of the user table.
func FindSettingsColumn(ctx context.Context, q Querier, table string) (string, error) {
	return firstColumn(ctx, q, table, "settings", "preferences", "config", "data", "meta", "info")
}

// FindIDColumn returns the row identifier column, falling back to the first
// declared column.
func FindIDColumn(ctx context.Context, q Querier, table string) (string, error) {
	cols, err := TableColumns(ctx, q, table)
	if err != nil {
		return "", err
	}
	set := columnSet(cols)
	for _, n := range []string{"id", "user_id", "uuid"} {
		if set[n] {
			return n, nil
		}
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}
	return cols[0], nil
}

// UserCount counts rows in table.
func UserCount(ctx context.Context, q Querier, table string) (int, error) {
	rows, err := q.QueryContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table))
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// FindChatTable locates the table holding chat documents: a chat column plus
// user_id or id. Falls back to a table literally named chat.
func FindChatTable(ctx context.Context, q Querier) (string, error) {
	tables, err := ListTables(ctx, q)
	if err != nil {
		return "", err
	}
	var candidates []scoredTable
	for _, t := range tables {
		cols, err := TableColumns(ctx, q, t)
		if err != nil {
			return "", err
		}
		set := columnSet(cols)
		if !set["chat"] || !(set["user_id"] || set["id"]) {
			continue
		}
		score := 0
		for _, c := range []string{"created_at", "updated_at", "title"} {
			if set[c] {
				score++
			}
		}
		candidates = append(candidates, scoredTable{score, t})
	}
	if len(candidates) > 0 {
		return best(candidates), nil
	}
	for _, t := range tables {
		if t == "chat" {
			return t, nil
		}
	}
	return "", nil
}

// FindChatPayloadColumn returns the JSON document column of the chat table.
func FindChatPayloadColumn(ctx context.Context, q Querier, table string) (string, error) {
	return firstColumn(ctx, q, table, "chat", "payload", "data", "content")
}
