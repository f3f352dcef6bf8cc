// Package memory keeps taxonomies, terms, term meta and relationships in
// process memory. It implements every store interface of pkg/types and is
// the substitution point for tests of the count cache and the relationship
// mutation service.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/tally/pkg/types"
)

var (
	_ types.RelationshipWriter = (*Store)(nil)
	_ types.TermMetaStore      = (*Store)(nil)
	_ types.TaxonomyRegistry   = (*Store)(nil)
	_ types.TermStore          = (*Store)(nil)
)

type relKey struct {
	objectID   string
	objectType string
	termID     string
}

// Store is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	objectTypes   map[string]types.ObjectType
	taxonomies    map[string]types.Taxonomy
	terms         map[string]*types.Term
	meta          map[string]map[string]string
	relationships map[relKey]time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		objectTypes:   make(map[string]types.ObjectType),
		taxonomies:    make(map[string]types.Taxonomy),
		terms:         make(map[string]*types.Term),
		meta:          make(map[string]map[string]string),
		relationships: make(map[relKey]time.Time),
	}
}

// RegisterObjectType adds or replaces an object type.
func (s *Store) RegisterObjectType(ot types.ObjectType) error {
	if ot.Name == "" {
		return types.ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objectTypes[ot.Name] = ot
	return nil
}

// RegisterTaxonomy adds or replaces a taxonomy. Every object type must be
// registered first.
func (s *Store) RegisterTaxonomy(name string, objectTypes ...string) error {
	if name == "" || len(objectTypes) == 0 {
		return types.ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(objectTypes))
	for _, ot := range objectTypes {
		if _, ok := s.objectTypes[ot]; !ok {
			return fmt.Errorf("%w: %s", types.ErrObjectTypeNotFound, ot)
		}
		if seen[ot] {
			return fmt.Errorf("%w: %s", types.ErrDuplicateName, ot)
		}
		seen[ot] = true
	}
	s.taxonomies[name] = types.Taxonomy{
		Name:        name,
		ObjectTypes: append([]string(nil), objectTypes...),
	}
	return nil
}

// ObjectTypes lists the registered object types by name.
func (s *Store) ObjectTypes() []types.ObjectType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]types.ObjectType, 0, len(s.objectTypes))
	for _, ot := range s.objectTypes {
		result = append(result, ot)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Taxonomies lists the registered taxonomies by name.
func (s *Store) Taxonomies() []types.Taxonomy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]types.Taxonomy, 0, len(s.taxonomies))
	for _, tax := range s.taxonomies {
		tax.ObjectTypes = append([]string(nil), tax.ObjectTypes...)
		result = append(result, tax)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// IsRegistered implements types.TaxonomyRegistry.
func (s *Store) IsRegistered(taxonomy string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.taxonomies[taxonomy]
	return ok, nil
}

// ObjectTypesOf implements types.TaxonomyRegistry.
func (s *Store) ObjectTypesOf(taxonomy string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tax, ok := s.taxonomies[taxonomy]
	if !ok {
		return nil, types.ErrInvalidTaxonomy
	}
	return append([]string(nil), tax.ObjectTypes...), nil
}

// SupportsCounting implements types.TaxonomyRegistry.
func (s *Store) SupportsCounting(objectType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objectTypes[objectType].Countable, nil
}

// CreateTerm adds a term to a registered taxonomy.
func (s *Store) CreateTerm(taxonomy, name string) (*types.Term, error) {
	if name == "" {
		return nil, types.ErrInvalidName
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating UUID v7: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxonomies[taxonomy]; !ok {
		return nil, types.ErrInvalidTaxonomy
	}
	term := &types.Term{
		TermID:    id.String(),
		Taxonomy:  taxonomy,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.terms[term.TermID] = term
	cp := *term
	return &cp, nil
}

// GetTerm returns a copy of the term.
func (s *Store) GetTerm(termID string) (*types.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	term, ok := s.terms[termID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *term
	return &cp, nil
}

// Exists implements types.TermStore.
func (s *Store) Exists(termID, taxonomy string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	term, ok := s.terms[termID]
	return ok && term.Taxonomy == taxonomy, nil
}

// GetCount implements types.TermStore.
func (s *Store) GetCount(termID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	term, ok := s.terms[termID]
	if !ok {
		return 0, types.ErrNotFound
	}
	return term.Count, nil
}

// SetCount implements types.TermStore.
func (s *Store) SetCount(termID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	term, ok := s.terms[termID]
	if !ok {
		return types.ErrNotFound
	}
	term.Count = count
	return nil
}

// Get implements types.TermMetaStore.
func (s *Store) Get(termID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.meta[termID][key]
	return v, ok, nil
}

// Set implements types.TermMetaStore.
func (s *Store) Set(termID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[termID]
	if !ok {
		m = make(map[string]string)
		s.meta[termID] = m
	}
	m[key] = value
	return nil
}

// Delete implements types.TermMetaStore.
func (s *Store) Delete(termID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[termID]
	if !ok {
		return nil
	}
	delete(m, key)
	if len(m) == 0 {
		delete(s.meta, termID)
	}
	return nil
}

// MetaKeys lists the meta keys stored for a term, sorted.
func (s *Store) MetaKeys(termID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.meta[termID]))
	for k := range s.meta[termID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// CountObjectsOfTypeForTerm implements types.RelationshipStore.
func (s *Store) CountObjectsOfTypeForTerm(termID, objectType string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.relationships {
		if k.termID == termID && k.objectType == objectType {
			n++
		}
	}
	return n, nil
}

// AddRelationship implements types.RelationshipWriter.
func (s *Store) AddRelationship(objectID, objectType, termID string) (bool, error) {
	if objectID == "" || objectType == "" || termID == "" {
		return false, types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := relKey{objectID: objectID, objectType: objectType, termID: termID}
	if _, ok := s.relationships[k]; ok {
		return false, nil
	}
	s.relationships[k] = time.Now().UTC()
	return true, nil
}

// RemoveRelationship implements types.RelationshipWriter.
func (s *Store) RemoveRelationship(objectID, objectType, termID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := relKey{objectID: objectID, objectType: objectType, termID: termID}
	if _, ok := s.relationships[k]; !ok {
		return false, nil
	}
	delete(s.relationships, k)
	return true, nil
}

// ObjectTermIDs implements types.RelationshipWriter.
func (s *Store) ObjectTermIDs(objectID, objectType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for k := range s.relationships {
		if k.objectID == objectID && k.objectType == objectType {
			ids = append(ids, k.termID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
