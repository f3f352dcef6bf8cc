// Term meta accessor for the SQLite backend.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
)

// Get implements types.TermMetaStore.
func (b *Backend) Get(termID, key string) (string, bool, error) {
	unlock, err := b.readLock()
	if err != nil {
		return "", false, err
	}
	defer unlock()

	var value string
	err = b.db.QueryRow(
		"SELECT meta_value FROM term_meta WHERE term_id = ? AND meta_key = ?",
		termID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading meta %s of term %s: %w", key, termID, err)
	}
	return value, true, nil
}

// Set implements types.TermMetaStore.
func (b *Backend) Set(termID, key, value string) error {
	unlock, err := b.writeLock()
	if err != nil {
		return err
	}
	defer unlock()

	_, err = b.db.Exec(
		`INSERT INTO term_meta (term_id, meta_key, meta_value) VALUES (?, ?, ?)
		 ON CONFLICT(term_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		termID, key, value,
	)
	if err != nil {
		return fmt.Errorf("writing meta %s of term %s: %w", key, termID, err)
	}
	return b.persist(tableTermMeta)
}

// Delete implements types.TermMetaStore.
func (b *Backend) Delete(termID, key string) error {
	unlock, err := b.writeLock()
	if err != nil {
		return err
	}
	defer unlock()

	res, err := b.db.Exec("DELETE FROM term_meta WHERE term_id = ? AND meta_key = ?", termID, key)
	if err != nil {
		return fmt.Errorf("deleting meta %s of term %s: %w", key, termID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	return b.persist(tableTermMeta)
}

// MetaKeys lists the meta keys stored for a term, sorted.
func (b *Backend) MetaKeys(termID string) ([]string, error) {
	unlock, err := b.readLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := b.db.Query("SELECT meta_key FROM term_meta WHERE term_id = ? ORDER BY meta_key", termID)
	if err != nil {
		return nil, fmt.Errorf("querying meta of term %s: %w", termID, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning meta key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
