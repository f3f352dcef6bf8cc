// Package relations adds and removes object to term links and keeps the
// term count cache coherent: every (term, object type) pair whose links
// actually changed is invalidated exactly once per call.
package relations

import (
	"errors"

	"github.com/apex/log"

	"github.com/mesh-intelligence/tally/internal/counts"
	"github.com/mesh-intelligence/tally/pkg/types"
)

// Service mutates relationships.
type Service struct {
	store      types.RelationshipWriter
	taxonomies types.TaxonomyRegistry
	terms      types.TermStore
	counts     counts.Invalidator
}

// NewService returns a Service that writes links to store and reports every
// change to inv.
func NewService(store types.RelationshipWriter, taxonomies types.TaxonomyRegistry, terms types.TermStore, inv counts.Invalidator) *Service {
	return &Service{
		store:      store,
		taxonomies: taxonomies,
		terms:      terms,
		counts:     inv,
	}
}

// AddObjectTerms links the object to each term. Existing links are left
// alone and cause no invalidation.
func (s *Service) AddObjectTerms(objectID, objectType, taxonomy string, termIDs ...string) error {
	termIDs, err := s.validate(objectID, objectType, taxonomy, termIDs)
	if err != nil {
		return err
	}

	var changed []string
	for _, termID := range termIDs {
		added, err := s.store.AddRelationship(objectID, objectType, termID)
		if err != nil {
			return s.finish(err, taxonomy, objectType, changed)
		}
		if added {
			changed = append(changed, termID)
		}
	}
	return s.finish(nil, taxonomy, objectType, changed)
}

// RemoveObjectTerms unlinks the object from each term. Missing links cause
// no invalidation.
func (s *Service) RemoveObjectTerms(objectID, objectType, taxonomy string, termIDs ...string) error {
	termIDs, err := s.validate(objectID, objectType, taxonomy, termIDs)
	if err != nil {
		return err
	}

	var changed []string
	for _, termID := range termIDs {
		removed, err := s.store.RemoveRelationship(objectID, objectType, termID)
		if err != nil {
			return s.finish(err, taxonomy, objectType, changed)
		}
		if removed {
			changed = append(changed, termID)
		}
	}
	return s.finish(nil, taxonomy, objectType, changed)
}

// SetObjectTerms makes termIDs the object's complete set of terms in the
// taxonomy. Terms of other taxonomies linked to the object are kept.
func (s *Service) SetObjectTerms(objectID, objectType, taxonomy string, termIDs ...string) error {
	termIDs, err := s.validate(objectID, objectType, taxonomy, termIDs)
	if err != nil {
		return err
	}

	current, err := s.store.ObjectTermIDs(objectID, objectType)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(termIDs))
	for _, id := range termIDs {
		wanted[id] = true
	}

	var changed []string
	for _, termID := range current {
		if wanted[termID] {
			delete(wanted, termID)
			continue
		}
		inTaxonomy, err := s.terms.Exists(termID, taxonomy)
		if err != nil {
			return s.finish(err, taxonomy, objectType, changed)
		}
		if !inTaxonomy {
			continue
		}
		removed, err := s.store.RemoveRelationship(objectID, objectType, termID)
		if err != nil {
			return s.finish(err, taxonomy, objectType, changed)
		}
		if removed {
			changed = append(changed, termID)
		}
	}

	for _, termID := range termIDs {
		if !wanted[termID] {
			continue
		}
		added, err := s.store.AddRelationship(objectID, objectType, termID)
		if err != nil {
			return s.finish(err, taxonomy, objectType, changed)
		}
		if added {
			changed = append(changed, termID)
		}
	}
	return s.finish(nil, taxonomy, objectType, changed)
}

// validate checks the taxonomy, the object type and every term, and returns
// termIDs without duplicates, in first-seen order.
func (s *Service) validate(objectID, objectType, taxonomy string, termIDs []string) ([]string, error) {
	if objectID == "" {
		return nil, types.ErrInvalidID
	}

	registered, err := s.taxonomies.IsRegistered(taxonomy)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, types.ErrInvalidTaxonomy
	}

	objectTypes, err := s.taxonomies.ObjectTypesOf(taxonomy)
	if err != nil {
		return nil, err
	}
	tax := types.Taxonomy{Name: taxonomy, ObjectTypes: objectTypes}
	if !tax.HasObjectType(objectType) {
		return nil, types.ErrObjectTypeNotInTaxonomy
	}

	seen := make(map[string]bool, len(termIDs))
	unique := make([]string, 0, len(termIDs))
	for _, termID := range termIDs {
		if seen[termID] {
			continue
		}
		seen[termID] = true
		exists, err := s.terms.Exists(termID, taxonomy)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, types.ErrInvalidTerm
		}
		unique = append(unique, termID)
	}
	return unique, nil
}

// finish invalidates every term whose links changed, including when err
// stopped the mutation partway, and returns err joined with any
// invalidation failures.
func (s *Service) finish(err error, taxonomy, objectType string, changed []string) error {
	return errors.Join(err, s.invalidate(taxonomy, objectType, changed))
}

// invalidate tries every term even after a failure.
func (s *Service) invalidate(taxonomy, objectType string, termIDs []string) error {
	var errs []error
	for _, termID := range termIDs {
		log.WithFields(log.Fields{
			"term":     termID,
			"taxonomy": taxonomy,
			"type":     objectType,
		}).Debug("relationship changed")
		if err := s.counts.Invalidate(termID, taxonomy, objectType); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
