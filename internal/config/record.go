package config

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
	"github.com/mittwald/owui-bootstrap/internal/paths"
)

// LoadRecordFromDB returns the newest row of the config table in the Open
// WebUI database at path. A missing or empty database, a missing table or a
// row that isn't a JSON object all yield an empty record.
func LoadRecordFromDB(path string) Record {
	if !paths.NonEmptyFile(path) {
		return Record{}
	}
	record, err := loadRecord(path)
	if err != nil {
		L_warn("config: could not read existing config from DB", "path", path, "error", err)
		return Record{}
	}
	return record
}

func loadRecord(path string) (Record, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var exists int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='config'`).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup config table: %w", err)
	}
	if exists == 0 {
		return Record{}, nil
	}

	var raw any
	err = db.QueryRow(`SELECT data FROM config ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config row: %w", err)
	}

	var data []byte
	switch v := raw.(type) {
	case nil:
		return Record{}, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return Record{}, nil
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode config row: %w", err)
	}
	if record == nil {
		return Record{}, nil
	}
	return record, nil
}
