package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound          = errors.New("domain: not found")
	ErrConflict          = errors.New("domain: conflict")
	ErrUnknownEntityType = errors.New("domain: unknown entity type")
	ErrRunInProgress     = errors.New("domain: archival run already in progress")
)
