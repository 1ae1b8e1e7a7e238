package casestore

import "github.com/epiwatch/casestore/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation       = domain.ErrValidation
	ErrNotFound         = domain.ErrNotFound
	ErrConflict         = domain.ErrConflict
	ErrPrecondition     = domain.ErrPrecondition
	ErrDependencyFailed = domain.ErrDependencyFailed
	ErrStoreUnavailable = domain.ErrStoreUnavailable
)
