// Package counts implements the per-term, per-object-type relationship count
// cache.
//
// For a term whose taxonomy spans several object types, the number of
// objects of each type holding the term is cached in the term's meta under
// ObjectCountKey(type), and the list of types counted at the last full
// recompute is kept under CountedTypesKey. The marker is what makes the
// per-type entries trustworthy: without it, or when it no longer matches
// the taxonomy's object types, every entry is recomputed from the
// relationship store. Zero counts are stored by deleting the entry.
//
// Single-type taxonomies never use the meta cache; the term's own count is
// authoritative for them.
//
// The Manager takes no lock unless built with WithTermLocking. Without it,
// two concurrent invalidations of the same term may race on the aggregate
// count and the last write wins.
package counts

import (
	"github.com/apex/log"

	"github.com/mesh-intelligence/tally/pkg/types"
)

// Invalidator is called by relationship mutation code once for every
// (term, object type) pair whose links changed.
type Invalidator interface {
	Invalidate(termID, taxonomy, objectType string) error
}

var _ Invalidator = (*Manager)(nil)

// Stores groups the collaborators of a Manager.
type Stores struct {
	Relationships types.RelationshipStore
	Meta          types.TermMetaStore
	Taxonomies    types.TaxonomyRegistry
	Terms         types.TermStore
}

// Option configures a Manager.
type Option func(*Manager)

// WithTermLocking serializes recomputes, invalidations and resets per term
// ID. Calls for different terms still run concurrently.
func WithTermLocking() Option {
	return func(m *Manager) {
		m.locks = newTermLocks()
	}
}

// Manager resolves per-type term counts and keeps the cache coherent.
type Manager struct {
	relationships types.RelationshipStore
	meta          types.TermMetaStore
	taxonomies    types.TaxonomyRegistry
	terms         types.TermStore
	locks         *termLocks
}

// NewManager returns a Manager over the given stores.
func NewManager(stores Stores, opts ...Option) *Manager {
	m := &Manager{
		relationships: stores.Relationships,
		meta:          stores.Meta,
		taxonomies:    stores.Taxonomies,
		terms:         stores.Terms,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetObjectCount returns how many objects of objectType hold the term.
//
// It fails with types.ErrInvalidTaxonomy, types.ErrObjectTypeNotInTaxonomy
// or types.ErrInvalidTerm, checked in that order, before touching the cache.
// Store errors are returned unmodified.
func (m *Manager) GetObjectCount(termID, taxonomy, objectType string) (int, error) {
	objectTypes, err := m.validateType(termID, taxonomy, objectType)
	if err != nil {
		return 0, err
	}

	if len(objectTypes) == 1 {
		return m.terms.GetCount(termID)
	}

	countable, err := m.taxonomies.SupportsCounting(objectType)
	if err != nil {
		return 0, err
	}
	if !countable {
		return 0, nil
	}

	trusted, err := m.markerMatches(termID, objectTypes)
	if err != nil {
		return 0, err
	}
	if trusted {
		n, ok, err := m.readEntry(termID, objectType)
		if err != nil {
			return 0, err
		}
		if ok {
			return n, nil
		}
	}

	unlock := m.lockTerm(termID)
	defer unlock()

	counts, err := m.recompute(termID, taxonomy, objectTypes)
	if err != nil {
		return 0, err
	}
	return counts[objectType], nil
}

// ObjectCounts returns the count of every object type of the taxonomy for
// the term, keyed by object type. Validation matches GetObjectCount.
func (m *Manager) ObjectCounts(termID, taxonomy string) (map[string]int, error) {
	objectTypes, err := m.validate(termID, taxonomy)
	if err != nil {
		return nil, err
	}

	if len(objectTypes) == 1 {
		n, err := m.terms.GetCount(termID)
		if err != nil {
			return nil, err
		}
		return map[string]int{objectTypes[0]: n}, nil
	}

	trusted, err := m.markerMatches(termID, objectTypes)
	if err != nil {
		return nil, err
	}
	if trusted {
		counts, ok, err := m.readEntries(termID, objectTypes)
		if err != nil {
			return nil, err
		}
		if ok {
			for _, ot := range objectTypes {
				countable, err := m.taxonomies.SupportsCounting(ot)
				if err != nil {
					return nil, err
				}
				if _, present := counts[ot]; !countable || !present {
					counts[ot] = 0
				}
			}
			return counts, nil
		}
	}

	unlock := m.lockTerm(termID)
	defer unlock()

	return m.recompute(termID, taxonomy, objectTypes)
}

// Invalidate refreshes the cached count of objectType for the term from the
// relationship store and recomputes the term's aggregate count from the
// entries present, whether or not the marker is. The counted types marker
// is left as is; without it the next read recomputes every entry and the
// aggregate with them.
func (m *Manager) Invalidate(termID, taxonomy, objectType string) error {
	objectTypes, err := m.validateType(termID, taxonomy, objectType)
	if err != nil {
		return err
	}

	unlock := m.lockTerm(termID)
	defer unlock()

	n, err := m.liveCount(termID, objectType)
	if err != nil {
		return err
	}

	logger := log.WithFields(log.Fields{
		"term":     termID,
		"taxonomy": taxonomy,
		"type":     objectType,
		"count":    n,
	})

	if len(objectTypes) == 1 {
		logger.Debug("updating single-type term count")
		return m.terms.SetCount(termID, n)
	}

	if err := m.storeEntry(termID, objectType, n); err != nil {
		return err
	}

	counts, _, err := m.readEntries(termID, objectTypes)
	if err != nil {
		return err
	}
	total := SumCounts(counts, objectTypes)
	logger.WithField("total", total).Debug("invalidated object count")
	return m.terms.SetCount(termID, total)
}

// Reset drops the counted types marker and every per-type entry of the
// term, leaving it in the legacy state. The next read recomputes.
func (m *Manager) Reset(termID, taxonomy string) error {
	objectTypes, err := m.validate(termID, taxonomy)
	if err != nil {
		return err
	}

	unlock := m.lockTerm(termID)
	defer unlock()

	return m.reset(termID, objectTypes)
}

// Recount resets the term and recomputes every per-type count from the
// relationship store. It returns the new aggregate count.
func (m *Manager) Recount(termID, taxonomy string) (int, error) {
	objectTypes, err := m.validate(termID, taxonomy)
	if err != nil {
		return 0, err
	}

	unlock := m.lockTerm(termID)
	defer unlock()

	if len(objectTypes) == 1 {
		n, err := m.liveCount(termID, objectTypes[0])
		if err != nil {
			return 0, err
		}
		return n, m.terms.SetCount(termID, n)
	}

	if err := m.reset(termID, objectTypes); err != nil {
		return 0, err
	}
	counts, err := m.recompute(termID, taxonomy, objectTypes)
	if err != nil {
		return 0, err
	}
	return SumCounts(counts, objectTypes), nil
}

// SumCounts adds the entries for objectTypes. Object types missing from
// entries contribute zero.
func SumCounts(entries map[string]int, objectTypes []string) int {
	total := 0
	for _, ot := range objectTypes {
		if n, ok := entries[ot]; ok {
			total += n
		}
	}
	return total
}

// validate checks the taxonomy and the term and returns the taxonomy's
// object types.
func (m *Manager) validate(termID, taxonomy string) ([]string, error) {
	return m.validateFor(termID, taxonomy, nil)
}

// validateType also checks objectType against the taxonomy, between the
// taxonomy and term checks.
func (m *Manager) validateType(termID, taxonomy, objectType string) ([]string, error) {
	return m.validateFor(termID, taxonomy, &objectType)
}

func (m *Manager) validateFor(termID, taxonomy string, objectType *string) ([]string, error) {
	registered, err := m.taxonomies.IsRegistered(taxonomy)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, types.ErrInvalidTaxonomy
	}

	objectTypes, err := m.taxonomies.ObjectTypesOf(taxonomy)
	if err != nil {
		return nil, err
	}
	if objectType != nil && !containsType(objectTypes, *objectType) {
		return nil, types.ErrObjectTypeNotInTaxonomy
	}

	if termID == "" {
		return nil, types.ErrInvalidTerm
	}
	exists, err := m.terms.Exists(termID, taxonomy)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, types.ErrInvalidTerm
	}
	return objectTypes, nil
}

// recompute counts every object type live, rewrites the cache and the
// term's aggregate count. A term with no relationships at all gets no
// marker and no entries.
func (m *Manager) recompute(termID, taxonomy string, objectTypes []string) (map[string]int, error) {
	counts := make(map[string]int, len(objectTypes))
	for _, ot := range objectTypes {
		n, err := m.liveCount(termID, ot)
		if err != nil {
			return nil, err
		}
		counts[ot] = n
	}
	total := SumCounts(counts, objectTypes)

	log.WithFields(log.Fields{
		"term":     termID,
		"taxonomy": taxonomy,
		"total":    total,
	}).Debug("recomputed object counts")

	for _, ot := range objectTypes {
		if err := m.storeEntry(termID, ot, counts[ot]); err != nil {
			return nil, err
		}
	}

	if total == 0 {
		if err := m.meta.Delete(termID, CountedTypesKey); err != nil {
			return nil, err
		}
	} else {
		marker, err := encodeCountedTypes(objectTypes)
		if err != nil {
			return nil, err
		}
		if err := m.meta.Set(termID, CountedTypesKey, marker); err != nil {
			return nil, err
		}
	}

	if err := m.terms.SetCount(termID, total); err != nil {
		return nil, err
	}
	return counts, nil
}

func (m *Manager) reset(termID string, objectTypes []string) error {
	value, ok, err := m.meta.Get(termID, CountedTypesKey)
	if err != nil {
		return err
	}
	stale := append([]string{}, objectTypes...)
	if counted, valid := decodeCountedTypes(value); ok && valid {
		for _, ot := range counted {
			if !containsType(stale, ot) {
				stale = append(stale, ot)
			}
		}
	}

	for _, ot := range stale {
		if err := m.meta.Delete(termID, ObjectCountKey(ot)); err != nil {
			return err
		}
	}
	log.WithField("term", termID).Debug("reset object count cache")
	return m.meta.Delete(termID, CountedTypesKey)
}

// liveCount queries the relationship store. Object types without counting
// support are never queried and count zero.
func (m *Manager) liveCount(termID, objectType string) (int, error) {
	countable, err := m.taxonomies.SupportsCounting(objectType)
	if err != nil {
		return 0, err
	}
	if !countable {
		return 0, nil
	}
	return m.relationships.CountObjectsOfTypeForTerm(termID, objectType)
}

// markerMatches reports whether the counted types marker is present and
// equal to the taxonomy's current object types.
func (m *Manager) markerMatches(termID string, objectTypes []string) (bool, error) {
	value, ok, err := m.meta.Get(termID, CountedTypesKey)
	if err != nil || !ok {
		return false, err
	}
	counted, ok := decodeCountedTypes(value)
	if !ok {
		return false, nil
	}
	return sameTypes(counted, objectTypes), nil
}

// readEntry returns the cached count for objectType. An absent entry is a
// count of zero; a malformed one reports false.
func (m *Manager) readEntry(termID, objectType string) (int, bool, error) {
	value, ok, err := m.meta.Get(termID, ObjectCountKey(objectType))
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, true, nil
	}
	n, ok := decodeCount(value)
	return n, ok, nil
}

// readEntries reads the present entries of every object type. Absent
// entries are left out of the map. The bool is false if any entry was
// malformed; malformed entries are left out too.
func (m *Manager) readEntries(termID string, objectTypes []string) (map[string]int, bool, error) {
	counts := make(map[string]int, len(objectTypes))
	valid := true
	for _, ot := range objectTypes {
		value, ok, err := m.meta.Get(termID, ObjectCountKey(ot))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		n, ok := decodeCount(value)
		if !ok {
			valid = false
			continue
		}
		counts[ot] = n
	}
	return counts, valid, nil
}

// storeEntry writes a non-zero count and deletes the entry for zero.
func (m *Manager) storeEntry(termID, objectType string, n int) error {
	key := ObjectCountKey(objectType)
	if n == 0 {
		return m.meta.Delete(termID, key)
	}
	return m.meta.Set(termID, key, encodeCount(n))
}

func (m *Manager) lockTerm(termID string) func() {
	if m.locks == nil {
		return func() {}
	}
	return m.locks.lock(termID)
}
