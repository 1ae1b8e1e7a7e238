// Package cases orchestrates the case lifecycle: construction from
// untrusted payloads, geocoding, validation and delegation to a store.
package cases

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/caserecord"
	"github.com/epiwatch/casestore/internal/domain/caserecord/update"
	"github.com/epiwatch/casestore/internal/domain/filter"
	"github.com/epiwatch/casestore/internal/domain/schema"
	"github.com/epiwatch/casestore/internal/store"
)

const exportPageSize = 500

// Service handles case operations on top of a store backend.
type Service struct {
	store           store.Store
	reg             *schema.Registry
	geocoder        Geocoder
	logger          *zap.Logger
	defaultPageSize int64
	maxPageSize     int64
}

// New creates a case service.
func New(st store.Store, reg *schema.Registry, geocoder Geocoder, logger *zap.Logger) *Service {
	return &Service{
		store:           st,
		reg:             reg,
		geocoder:        geocoder,
		logger:          logger,
		defaultPageSize: 20,
		maxPageSize:     100,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int64) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Create builds a case from an untrusted payload, resolves any location
// query through the geocoder and stores it. Validation happens before
// any persistence attempt.
func (s *Service) Create(ctx context.Context, raw map[string]any) (*caserecord.Case, error) {
	c, err := caserecord.FromMap(raw, s.reg)
	if err != nil {
		return nil, err
	}
	if err := s.resolveLocation(ctx, c); err != nil {
		return nil, err
	}

	id, err := s.store.InsertCase(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// resolveLocation replaces a free-text location query with the first
// geocoder candidate.
func (s *Service) resolveLocation(ctx context.Context, c *caserecord.Case) error {
	if c.LocationQuery == "" || c.Location != nil {
		return nil
	}
	feats, err := s.geocoder.Locate(ctx, c.LocationQuery)
	if err != nil {
		return fmt.Errorf("resolve location: %w", err)
	}
	if len(feats) == 0 {
		return fmt.Errorf("resolve location %q: no candidates: %w", c.LocationQuery, domain.ErrDependencyFailed)
	}
	c.Location = &feats[0]
	c.LocationQuery = ""
	return nil
}

// List returns one page of cases matching the filter.
func (s *Service) List(ctx context.Context, f filter.Filter, page, pageSize int64) (store.CasePage, error) {
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	out, err := s.store.ListCases(ctx, f, page, pageSize)
	if err != nil {
		return store.CasePage{}, fmt.Errorf("list cases: %w", err)
	}
	return out, nil
}

// Count returns the number of cases matching the filter.
func (s *Service) Count(ctx context.Context, f filter.Filter) (int64, error) {
	n, err := s.store.CountCases(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return n, nil
}

// Update derives a dotted-path diff from a partial payload, checks its
// paths and value types against the registry, and applies it. A payload
// producing zero operations is a no-op.
func (s *Service) Update(ctx context.Context, id string, raw map[string]any) error {
	u := update.FromMap(raw)
	if u.Len() == 0 {
		return nil
	}

	checked, err := s.checkUpdate(u)
	if err != nil {
		return err
	}
	if err := s.store.UpdateCase(ctx, id, checked); err != nil {
		return fmt.Errorf("update case %s: %w", id, err)
	}
	return nil
}

// Delete removes a case.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteCase(ctx, id); err != nil {
		return fmt.Errorf("delete case %s: %w", id, err)
	}
	return nil
}

// BatchUpsert builds cases from untrusted payloads and upserts them.
// Construction and geocoding failures land in the outcome's error map
// under the entry's sourceEntryId (or list index), never aborting the
// remaining entries.
func (s *Service) BatchUpsert(ctx context.Context, raws []map[string]any) (store.UpsertOutcome, error) {
	preErrors := map[string]string{}
	entries := make([]store.BatchEntry, 0, len(raws))

	for i, raw := range raws {
		key := entryKey(raw, i)
		c, err := caserecord.FromMap(raw, s.reg)
		if err != nil {
			preErrors[key] = err.Error()
			continue
		}
		if err := s.resolveLocation(ctx, c); err != nil {
			preErrors[key] = err.Error()
			continue
		}
		entries = append(entries, store.BatchEntry{Key: key, Case: c})
	}

	out, err := s.store.BatchUpsert(ctx, entries)
	if err != nil {
		return store.UpsertOutcome{}, fmt.Errorf("batch upsert: %w", err)
	}
	for k, msg := range preErrors {
		out.Errors[k] = msg
	}

	s.logger.Info("batch upsert finished",
		zap.Int("created", out.NumCreated),
		zap.Int("updated", out.NumUpdated),
		zap.Int("errors", len(out.Errors)),
	)
	return out, nil
}

// ExportCSV streams every non-excluded case matching the filter as CSV:
// the registry-derived header first, then one row per case.
func (s *Service) ExportCSV(ctx context.Context, f filter.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(caserecord.CSVHeader(s.reg)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	var page int64 = 1
	for {
		p, err := s.store.ListCases(ctx, f, page, exportPageSize)
		if err != nil {
			return fmt.Errorf("export page %d: %w", page, err)
		}
		for _, c := range p.Cases {
			if c.IsExcluded() {
				continue
			}
			if err := cw.Write(c.CSVRow(s.reg)); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
		if p.NextPage == nil {
			break
		}
		page = *p.NextPage
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ExportKey returns the deterministic fingerprint the CLI layer uses to
// name cached export artifacts for this filter.
func (s *Service) ExportKey(f filter.Filter) string {
	return filter.Fingerprint(f)
}

// RegisterField adds a custom field to the live schema.
func (s *Service) RegisterField(name string, ft schema.Type) (schema.Field, error) {
	f, err := s.reg.Register(name, ft)
	if err != nil {
		return schema.Field{}, err
	}
	s.logger.Info("registered custom field",
		zap.String("name", name),
		zap.String("type", string(ft)),
	)
	return f, nil
}

// Fields lists the registered custom fields in registration order.
func (s *Service) Fields() []schema.Field { return s.reg.Fields() }

// corePathKinds maps updatable core paths to their coercion kind. The
// identifier and whole-subtree location writes are handled separately.
var corePathKinds = map[string]schema.Type{
	"confirmationDate":            schema.Date,
	"caseReference.sourceId":      schema.String,
	"caseReference.sourceEntryId": schema.String,
	"caseReference.status":        schema.String,
	"caseExclusionMetadata.note":  schema.String,
	"caseExclusionMetadata.date":  schema.Date,
	"demographics.ageRange.lower": schema.Integer,
	"demographics.ageRange.upper": schema.Integer,
}

// checkUpdate validates every touched path against the schema and
// returns a copy with values coerced to their typed representation, so
// both backends persist the same shapes an insert would.
func (s *Service) checkUpdate(u *update.Update) (*update.Update, error) {
	checked := update.New()
	var firstErr error

	u.Sets(func(path string, value any) {
		if firstErr != nil {
			return
		}
		coerced, err := s.coerceSet(path, value)
		if err != nil {
			firstErr = err
			return
		}
		checked.Set(path, coerced)
	})
	if firstErr != nil {
		return nil, firstErr
	}

	u.Unsets(func(path string) {
		if firstErr != nil {
			return
		}
		if err := s.checkUnset(path); err != nil {
			firstErr = err
			return
		}
		checked.Unset(path)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return checked, nil
}

func (s *Service) coerceSet(path string, value any) (any, error) {
	if kind, core := corePathKinds[path]; core {
		coerced, err := caserecord.Coerce(path, kind, value)
		if err != nil {
			return nil, err
		}
		if path == "caseReference.status" {
			if err := checkStatus(coerced); err != nil {
				return nil, err
			}
		}
		return coerced, nil
	}
	root := rootSegment(path)
	if root == "location" {
		return value, nil
	}
	ft, err := s.reg.TypeOf(root)
	if err != nil {
		return nil, fmt.Errorf("unknown update path %q: %w", path, domain.ErrValidation)
	}
	if path != root {
		return nil, fmt.Errorf("field %q is not a nested structure: %w", root, domain.ErrValidation)
	}
	return caserecord.Coerce(root, ft, value)
}

func (s *Service) checkUnset(path string) error {
	switch path {
	case "_id", "confirmationDate":
		return fmt.Errorf("cannot unset %q: %w", path, domain.ErrValidation)
	}
	root := rootSegment(path)
	if _, core := corePathKinds[path]; core {
		return nil
	}
	switch root {
	case "caseReference", "location", "demographics", "caseExclusionMetadata":
		return nil
	}
	if !s.reg.Has(root) {
		return fmt.Errorf("unknown update path %q: %w", path, domain.ErrValidation)
	}
	return nil
}

func checkStatus(v any) error {
	status, _ := v.(string)
	switch caserecord.VerificationStatus(status) {
	case caserecord.StatusUnverified, caserecord.StatusVerified, caserecord.StatusExcluded:
		return nil
	}
	return fmt.Errorf("invalid caseReference.status %q: %w", status, domain.ErrValidation)
}

func rootSegment(path string) string {
	if i := strings.Index(path, "."); i >= 0 {
		return path[:i]
	}
	return path
}

func entryKey(raw map[string]any, i int) string {
	if ref, ok := raw["caseReference"].(map[string]any); ok {
		if entry, ok := ref["sourceEntryId"].(string); ok && entry != "" {
			return entry
		}
	}
	return strconv.Itoa(i)
}
