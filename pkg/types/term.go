package types

import "time"

// Term is a taxonomy value objects can be tagged with.
type Term struct {
	// TermID is a UUID v7, generated on creation.
	TermID string `json:"term_id"`

	// Taxonomy is the name of the taxonomy the term belongs to.
	Taxonomy string `json:"taxonomy"`

	Name string `json:"name"`

	// Count is the number of objects holding the term across all object
	// types of its taxonomy. Only the count cache manager writes it.
	Count int `json:"count"`

	CreatedAt time.Time `json:"created_at"`
}
