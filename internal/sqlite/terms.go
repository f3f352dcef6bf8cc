// Term accessor for the SQLite backend.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/tally/pkg/types"
)

// CreateTerm adds a term with a UUID v7 ID to a registered taxonomy.
func (b *Backend) CreateTerm(taxonomy, name string) (*types.Term, error) {
	if name == "" {
		return nil, types.ErrInvalidName
	}
	unlock, err := b.writeLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var n int
	if err := b.db.QueryRow("SELECT COUNT(*) FROM taxonomies WHERE name = ?", taxonomy).Scan(&n); err != nil {
		return nil, fmt.Errorf("checking taxonomy %s: %w", taxonomy, err)
	}
	if n == 0 {
		return nil, types.ErrInvalidTaxonomy
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating UUID v7: %w", err)
	}
	term := &types.Term{
		TermID:    id.String(),
		Taxonomy:  taxonomy,
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err = b.db.Exec(
		"INSERT INTO terms (term_id, taxonomy, name, count, created_at) VALUES (?, ?, ?, 0, ?)",
		term.TermID, term.Taxonomy, term.Name, term.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting term: %w", err)
	}
	if err := b.persist(tableTerms); err != nil {
		return nil, err
	}
	return term, nil
}

// GetTerm returns the term or ErrNotFound.
func (b *Backend) GetTerm(termID string) (*types.Term, error) {
	if termID == "" {
		return nil, types.ErrInvalidID
	}
	unlock, err := b.readLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	row := b.db.QueryRow(
		"SELECT term_id, taxonomy, name, count, created_at FROM terms WHERE term_id = ?",
		termID,
	)
	term, err := hydrateTerm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting term %s: %w", termID, err)
	}
	return term, nil
}

// Terms lists the terms of a taxonomy ordered by ID, which is creation
// order for UUID v7.
func (b *Backend) Terms(taxonomy string) ([]*types.Term, error) {
	unlock, err := b.readLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := b.db.Query(
		"SELECT term_id, taxonomy, name, count, created_at FROM terms WHERE taxonomy = ? ORDER BY term_id",
		taxonomy,
	)
	if err != nil {
		return nil, fmt.Errorf("querying terms of %s: %w", taxonomy, err)
	}
	defer rows.Close()

	var result []*types.Term
	for rows.Next() {
		term, err := hydrateTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		result = append(result, term)
	}
	return result, rows.Err()
}

// Exists implements types.TermStore.
func (b *Backend) Exists(termID, taxonomy string) (bool, error) {
	unlock, err := b.readLock()
	if err != nil {
		return false, err
	}
	defer unlock()

	var n int
	err = b.db.QueryRow(
		"SELECT COUNT(*) FROM terms WHERE term_id = ? AND taxonomy = ?",
		termID, taxonomy,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking term %s: %w", termID, err)
	}
	return n > 0, nil
}

// GetCount implements types.TermStore.
func (b *Backend) GetCount(termID string) (int, error) {
	unlock, err := b.readLock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	var count int
	err = b.db.QueryRow("SELECT count FROM terms WHERE term_id = ?", termID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, types.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading count of term %s: %w", termID, err)
	}
	return count, nil
}

// SetCount implements types.TermStore.
func (b *Backend) SetCount(termID string, count int) error {
	unlock, err := b.writeLock()
	if err != nil {
		return err
	}
	defer unlock()

	res, err := b.db.Exec("UPDATE terms SET count = ? WHERE term_id = ?", count, termID)
	if err != nil {
		return fmt.Errorf("updating count of term %s: %w", termID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return b.persist(tableTerms)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func hydrateTerm(s scanner) (*types.Term, error) {
	var (
		term      types.Term
		createdAt string
	)
	if err := s.Scan(&term.TermID, &term.Taxonomy, &term.Name, &term.Count, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	term.CreatedAt = t
	return &term, nil
}
