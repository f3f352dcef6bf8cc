package types

import "time"

// Relationship associates one object with one term.
type Relationship struct {
	ObjectID   string    `json:"object_id"`
	ObjectType string    `json:"object_type"`
	TermID     string    `json:"term_id"`
	CreatedAt  time.Time `json:"created_at"`
}
