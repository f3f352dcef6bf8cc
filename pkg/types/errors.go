package types

import "errors"

// Count lookup validation errors. Returned before any cache access.
var (
	ErrInvalidTaxonomy         = errors.New("invalid taxonomy")
	ErrObjectTypeNotInTaxonomy = errors.New("object type is not in taxonomy")
	ErrInvalidTerm             = errors.New("invalid term")
)

// Store operation errors.
var (
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidID          = errors.New("invalid entity ID")
	ErrInvalidName        = errors.New("invalid name")
	ErrObjectTypeNotFound = errors.New("object type not registered")
	ErrDuplicateName      = errors.New("duplicate name")
)

// Backend lifecycle errors.
var (
	ErrBackendDetached = errors.New("backend is detached")
	ErrAlreadyAttached = errors.New("backend is already attached")
)
