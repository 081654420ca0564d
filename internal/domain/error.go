package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrMissingEntity       = errors.New("no entity is bound for suggestions")
	ErrJobCreation         = errors.New("suggestion job could not be created")
	ErrUnexpectedJobStatus = errors.New("unexpected suggestion job status")
	ErrNoSuggestion        = errors.New("field has no suggestion to accept")
	ErrUnknownEntityType   = errors.New("unknown entity type")
	ErrJobStillRunning     = errors.New("a dismissed suggestion for this field is still being generated")
)
