package types

// RelationshipStore is the authoritative source of object to term links.
type RelationshipStore interface {
	// CountObjectsOfTypeForTerm returns the exact live number of objects of
	// objectType linked to the term. It runs a full query on every call.
	CountObjectsOfTypeForTerm(termID, objectType string) (int, error)
}

// RelationshipWriter mutates object to term links. Add and Remove report
// whether the link set actually changed.
type RelationshipWriter interface {
	RelationshipStore

	AddRelationship(objectID, objectType, termID string) (bool, error)
	RemoveRelationship(objectID, objectType, termID string) (bool, error)

	// ObjectTermIDs lists the terms linked to an object.
	ObjectTermIDs(objectID, objectType string) ([]string, error)
}

// TermMetaStore is durable per-term key/value storage.
type TermMetaStore interface {
	// Get returns the value and true, or "" and false when the key is absent.
	Get(termID, key string) (string, bool, error)

	Set(termID, key, value string) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(termID, key string) error
}

// TaxonomyRegistry maps taxonomy names to their object types.
type TaxonomyRegistry interface {
	IsRegistered(taxonomy string) (bool, error)

	// ObjectTypesOf returns the taxonomy's object types in registration
	// order. Returns ErrInvalidTaxonomy for unknown names.
	ObjectTypesOf(taxonomy string) ([]string, error)

	// SupportsCounting reports whether the object type has update-count
	// behaviour. Unknown object types do not.
	SupportsCounting(objectType string) (bool, error)
}

// TermStore exposes term existence and the term's aggregate count.
type TermStore interface {
	// Exists reports whether the term exists and belongs to taxonomy.
	Exists(termID, taxonomy string) (bool, error)

	GetCount(termID string) (int, error)
	SetCount(termID string, count int) error
}
