// Package types defines the entities, store interfaces, configuration and
// standard error values shared by the Tally term count cache.
//
// The four store interfaces (RelationshipStore, TermMetaStore,
// TaxonomyRegistry, TermStore) are the collaborators of the count cache
// manager in internal/counts. The SQLite backend implements all four;
// internal/memory provides in-memory versions for tests.
package types
