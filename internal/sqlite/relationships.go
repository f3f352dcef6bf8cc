// Term relationship accessor for the SQLite backend.
package sqlite

import (
	"fmt"
	"time"

	"github.com/mesh-intelligence/tally/pkg/types"
)

// CountObjectsOfTypeForTerm implements types.RelationshipStore.
func (b *Backend) CountObjectsOfTypeForTerm(termID, objectType string) (int, error) {
	unlock, err := b.readLock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int
	err = b.db.QueryRow(
		"SELECT COUNT(*) FROM term_relationships WHERE term_id = ? AND object_type = ?",
		termID, objectType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s objects of term %s: %w", objectType, termID, err)
	}
	return n, nil
}

// AddRelationship implements types.RelationshipWriter. Adding an existing
// link reports false.
func (b *Backend) AddRelationship(objectID, objectType, termID string) (bool, error) {
	if objectID == "" || objectType == "" || termID == "" {
		return false, types.ErrInvalidID
	}
	unlock, err := b.writeLock()
	if err != nil {
		return false, err
	}
	defer unlock()

	res, err := b.db.Exec(
		`INSERT OR IGNORE INTO term_relationships (object_id, object_type, term_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		objectID, objectType, termID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("linking %s %s to term %s: %w", objectType, objectID, termID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, b.persist(tableTermRelationships)
}

// RemoveRelationship implements types.RelationshipWriter. Removing a
// missing link reports false.
func (b *Backend) RemoveRelationship(objectID, objectType, termID string) (bool, error) {
	unlock, err := b.writeLock()
	if err != nil {
		return false, err
	}
	defer unlock()

	res, err := b.db.Exec(
		"DELETE FROM term_relationships WHERE object_id = ? AND object_type = ? AND term_id = ?",
		objectID, objectType, termID,
	)
	if err != nil {
		return false, fmt.Errorf("unlinking %s %s from term %s: %w", objectType, objectID, termID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, b.persist(tableTermRelationships)
}

// ObjectTermIDs implements types.RelationshipWriter.
func (b *Backend) ObjectTermIDs(objectID, objectType string) ([]string, error) {
	unlock, err := b.readLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := b.db.Query(
		"SELECT term_id FROM term_relationships WHERE object_id = ? AND object_type = ? ORDER BY term_id",
		objectID, objectType,
	)
	if err != nil {
		return nil, fmt.Errorf("querying terms of %s %s: %w", objectType, objectID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning term ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
