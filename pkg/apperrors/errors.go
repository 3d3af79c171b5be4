package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrConnectionInactive     = errors.New("source connection is inactive")
	ErrConnectionReferenced   = errors.New("source connection is referenced by data sources")
	ErrInvalidSessionState    = errors.New("chat session is not in a valid state for this operation")
	ErrCredentialsKeyMismatch = errors.New("connection credentials were encrypted with a different key")
)
