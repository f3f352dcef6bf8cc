// JSONL loading for Attach.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
)

// jsonlTableMapping maps each table to the columns read from its JSONL file.
var jsonlTableMapping = []struct {
	table   string
	columns []string
}{
	{tableObjectTypes, []string{"name", "countable", "created_at"}},
	{tableTaxonomies, []string{"name", "created_at"}},
	{tableTaxonomyTypes, []string{"taxonomy", "object_type", "position"}},
	{tableTerms, []string{"term_id", "taxonomy", "name", "count", "created_at"}},
	{tableTermMeta, []string{"term_id", "meta_key", "meta_value"}},
	{tableTermRelationships, []string{"object_id", "object_type", "term_id", "created_at"}},
}

// initJSONLFiles creates an empty JSONL file for every table that has none.
func initJSONLFiles(dataDir string) error {
	for _, mapping := range jsonlTableMapping {
		path := filepath.Join(dataDir, jsonlFile(mapping.table))
		_, err := os.Stat(path)
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// loadAllJSONL reads each JSONL file from dataDir and inserts its records
// into the matching table. Loading is transactional: all succeed or the
// database remains empty. Malformed lines, records that violate a
// constraint and unknown fields are skipped.
func loadAllJSONL(db *sql.DB, dataDir string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, mapping := range jsonlTableMapping {
		file := jsonlFile(mapping.table)
		records, err := readJSONL(filepath.Join(dataDir, file))
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		if len(records) == 0 {
			continue
		}

		loaded, err := insertRecords(tx, mapping.table, mapping.columns, records)
		if err != nil {
			return fmt.Errorf("loading %s into %s: %w", file, mapping.table, err)
		}
		log.WithFields(log.Fields{
			"table":   mapping.table,
			"records": len(records),
			"loaded":  loaded,
		}).Debug("loaded JSONL")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// insertRecords inserts parsed JSONL records into a table and returns how
// many were inserted. Only the listed columns are read; missing ones are
// NULL.
func insertRecords(tx *sql.Tx, table string, columns []string, records []json.RawMessage) (int, error) {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	loaded := 0
	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}

		args := make([]any, len(columns))
		for i, col := range columns {
			val, ok := obj[col]
			if !ok {
				continue
			}
			switch v := val.(type) {
			case map[string]any, []any:
				b, err := json.Marshal(v)
				if err != nil {
					continue
				}
				args[i] = string(b)
			case float64:
				// JSON numbers in these tables are always integers.
				args[i] = int64(v)
			case bool:
				if v {
					args[i] = int64(1)
				} else {
					args[i] = int64(0)
				}
			default:
				args[i] = val
			}
		}

		if _, err := stmt.Exec(args...); err != nil {
			continue
		}
		loaded++
	}

	return loaded, nil
}
