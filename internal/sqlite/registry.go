// Object type and taxonomy registration for the SQLite backend.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/tally/pkg/types"
)

// RegisterObjectType adds or replaces an object type.
func (b *Backend) RegisterObjectType(ot types.ObjectType) error {
	if ot.Name == "" {
		return types.ErrInvalidName
	}
	unlock, err := b.writeLock()
	if err != nil {
		return err
	}
	defer unlock()

	countable := 0
	if ot.Countable {
		countable = 1
	}
	_, err = b.db.Exec(
		`INSERT INTO object_types (name, countable, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET countable = excluded.countable`,
		ot.Name, countable, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("registering object type %s: %w", ot.Name, err)
	}
	return b.persist(tableObjectTypes)
}

// RegisterTaxonomy adds a taxonomy or replaces its ordered object type list.
// Every object type must be registered first.
func (b *Backend) RegisterTaxonomy(name string, objectTypes ...string) error {
	if name == "" || len(objectTypes) == 0 {
		return types.ErrInvalidName
	}
	unlock, err := b.writeLock()
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool, len(objectTypes))
	for _, ot := range objectTypes {
		if seen[ot] {
			return fmt.Errorf("%w: %s", types.ErrDuplicateName, ot)
		}
		seen[ot] = true
		var n int
		if err := tx.QueryRow("SELECT COUNT(*) FROM object_types WHERE name = ?", ot).Scan(&n); err != nil {
			return fmt.Errorf("checking object type %s: %w", ot, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", types.ErrObjectTypeNotFound, ot)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO taxonomies (name, created_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting taxonomy %s: %w", name, err)
	}
	if _, err := tx.Exec("DELETE FROM taxonomy_object_types WHERE taxonomy = ?", name); err != nil {
		return fmt.Errorf("clearing object types of %s: %w", name, err)
	}
	for i, ot := range objectTypes {
		if _, err := tx.Exec(
			"INSERT INTO taxonomy_object_types (taxonomy, object_type, position) VALUES (?, ?, ?)",
			name, ot, i,
		); err != nil {
			return fmt.Errorf("linking %s to %s: %w", ot, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing taxonomy %s: %w", name, err)
	}

	if err := b.persist(tableTaxonomies); err != nil {
		return err
	}
	return b.persist(tableTaxonomyTypes)
}

// ObjectTypes lists the registered object types by name.
func (b *Backend) ObjectTypes() ([]types.ObjectType, error) {
	unlock, err := b.readLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := b.db.Query("SELECT name, countable FROM object_types ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying object types: %w", err)
	}
	defer rows.Close()

	var result []types.ObjectType
	for rows.Next() {
		var ot types.ObjectType
		if err := rows.Scan(&ot.Name, &ot.Countable); err != nil {
			return nil, fmt.Errorf("scanning object type: %w", err)
		}
		result = append(result, ot)
	}
	return result, rows.Err()
}

// Taxonomies lists the registered taxonomies by name, each with its object
// types in registration order.
func (b *Backend) Taxonomies() ([]types.Taxonomy, error) {
	unlock, err := b.readLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := b.db.Query(
		`SELECT t.name, tot.object_type
		 FROM taxonomies t
		 LEFT JOIN taxonomy_object_types tot ON tot.taxonomy = t.name
		 ORDER BY t.name, tot.position`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying taxonomies: %w", err)
	}
	defer rows.Close()

	var result []types.Taxonomy
	for rows.Next() {
		var name string
		var objectType sql.NullString
		if err := rows.Scan(&name, &objectType); err != nil {
			return nil, fmt.Errorf("scanning taxonomy: %w", err)
		}
		if len(result) == 0 || result[len(result)-1].Name != name {
			result = append(result, types.Taxonomy{Name: name})
		}
		if objectType.Valid {
			last := &result[len(result)-1]
			last.ObjectTypes = append(last.ObjectTypes, objectType.String)
		}
	}
	return result, rows.Err()
}

// IsRegistered implements types.TaxonomyRegistry.
func (b *Backend) IsRegistered(taxonomy string) (bool, error) {
	unlock, err := b.readLock()
	if err != nil {
		return false, err
	}
	defer unlock()

	var n int
	if err := b.db.QueryRow("SELECT COUNT(*) FROM taxonomies WHERE name = ?", taxonomy).Scan(&n); err != nil {
		return false, fmt.Errorf("checking taxonomy %s: %w", taxonomy, err)
	}
	return n > 0, nil
}

// ObjectTypesOf implements types.TaxonomyRegistry.
func (b *Backend) ObjectTypesOf(taxonomy string) ([]string, error) {
	unlock, err := b.readLock()
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

	rows, err := b.db.Query(
		"SELECT object_type FROM taxonomy_object_types WHERE taxonomy = ? ORDER BY position",
		taxonomy,
	)
	if err != nil {
		return nil, fmt.Errorf("querying object types of %s: %w", taxonomy, err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var ot string
		if err := rows.Scan(&ot); err != nil {
			return nil, fmt.Errorf("scanning object type of %s: %w", taxonomy, err)
		}
		result = append(result, ot)
	}
	return result, rows.Err()
}

// SupportsCounting implements types.TaxonomyRegistry.
func (b *Backend) SupportsCounting(objectType string) (bool, error) {
	unlock, err := b.readLock()
	if err != nil {
		return false, err
	}
	defer unlock()

	var countable bool
	err = b.db.QueryRow("SELECT countable FROM object_types WHERE name = ?", objectType).Scan(&countable)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading object type %s: %w", objectType, err)
	}
	return countable, nil
}
