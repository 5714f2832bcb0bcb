package orchestrator

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is the root of all request validation errors. They are
// returned before any collaborator or backend is called.
var ErrInvalidRequest = errors.New("invalid request")

var (
	ErrEmptyMessages = fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	ErrUnknownRole   = fmt.Errorf("%w: unknown message role", ErrInvalidRequest)
)

// ErrCanceled is returned when the caller goes away mid-request.
var ErrCanceled = errors.New("request canceled by caller")

// ProviderError is a model backend failure. It terminates the request.
type ProviderError struct {
	Backend string
	Model   string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (model %s): %v", e.Backend, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
