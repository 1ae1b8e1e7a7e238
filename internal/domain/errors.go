package domain

import "errors"

var (
	// ErrValidation signals a document that violates one of its own invariants.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing case or field.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a name collision, e.g. registering a reserved field.
	ErrConflict = errors.New("conflict")
	// ErrPrecondition signals an operation the configuration cannot satisfy.
	ErrPrecondition = errors.New("precondition unsatisfied")
	// ErrDependencyFailed signals an external collaborator failure
	// (geocoder, country-code lookup): the request input, not the data
	// model, is at fault.
	ErrDependencyFailed = errors.New("dependency failed")
	// ErrStoreUnavailable signals a connection or timeout fault at the
	// durable backend. Never folded into ErrNotFound or ErrValidation.
	ErrStoreUnavailable = errors.New("store unavailable")
)
