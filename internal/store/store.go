// Package store defines the polymorphic persistence contract for case
// documents. Two implementations exist: memory (dev/test) and mongo
// (production); both honor identical semantics and error taxonomy.
package store

import (
	"context"

	"github.com/epiwatch/casestore/internal/domain/caserecord"
	"github.com/epiwatch/casestore/internal/domain/caserecord/update"
	"github.com/epiwatch/casestore/internal/domain/filter"
)

// BatchEntry pairs a case with a caller-supplied key used to report
// per-item failures in the upsert outcome.
type BatchEntry struct {
	Key  string
	Case *caserecord.Case
}

// UpsertOutcome reports the result of a batch write; never partially
// silent — every entry lands in a counter or in Errors.
type UpsertOutcome struct {
	NumCreated int               `json:"numCreated"`
	NumUpdated int               `json:"numUpdated"`
	Errors     map[string]string `json:"errors"`
}

// NewUpsertOutcome creates an empty outcome.
func NewUpsertOutcome() UpsertOutcome {
	return UpsertOutcome{Errors: map[string]string{}}
}

// CasePage is one page of a stable-ordered listing. NextPage is present
// iff more pages exist.
type CasePage struct {
	Cases    []*caserecord.Case
	Total    int64
	NextPage *int64
}

// Store is the persistence capability consumed by the service layer.
type Store interface {
	// InsertCase validates and stores a new case, returning its id.
	InsertCase(ctx context.Context, c *caserecord.Case) (string, error)
	// CountCases counts documents matching the filter.
	CountCases(ctx context.Context, f filter.Filter) (int64, error)
	// ListCases returns one page in stable order (1-based page number).
	ListCases(ctx context.Context, f filter.Filter, page, pageSize int64) (CasePage, error)
	// UpdateCase applies sets and unsets atomically to one document.
	UpdateCase(ctx context.Context, id string, u *update.Update) error
	// BatchUpsert creates or replaces each case, matching existing
	// documents by case-reference identity. Individual failures are
	// captured per entry key and never abort the rest of the batch.
	BatchUpsert(ctx context.Context, entries []BatchEntry) (UpsertOutcome, error)
	// DeleteCase removes one document.
	DeleteCase(ctx context.Context, id string) error
}
