// Package memory is the in-memory store backend: single process, no
// external I/O, insertion-ordered listing. Reference and test use only.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/caserecord"
	"github.com/epiwatch/casestore/internal/domain/caserecord/update"
	"github.com/epiwatch/casestore/internal/domain/filter"
	"github.com/epiwatch/casestore/internal/domain/schema"
	"github.com/epiwatch/casestore/internal/store"
)

// Store keeps cases in insertion order behind a single RWMutex.
type Store struct {
	reg *schema.Registry

	mu    sync.RWMutex
	order []string
	docs  map[string]*caserecord.Case
	byRef map[string]string
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New(reg *schema.Registry) *Store {
	return &Store{
		reg:   reg,
		docs:  map[string]*caserecord.Case{},
		byRef: map[string]string{},
	}
}

// Ping always succeeds; the backend lives in process.
func (s *Store) Ping(_ context.Context) error { return nil }

// InsertCase validates and stores a new case.
func (s *Store) InsertCase(_ context.Context, c *caserecord.Case) (string, error) {
	if err := c.Validate(s.reg); err != nil {
		return "", err
	}

	id := uuid.NewString()
	stored := clone(id, c)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, id)
	s.docs[id] = stored
	if key := stored.ReferenceKey(); key != "" {
		s.byRef[key] = id
	}
	return id, nil
}

// CountCases counts documents matching the filter.
func (s *Store) CountCases(_ context.Context, f filter.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, id := range s.order {
		if f.Matches(s.docs[id]) {
			n++
		}
	}
	return n, nil
}

// ListCases pages through matching documents in insertion order.
func (s *Store) ListCases(_ context.Context, f filter.Filter, page, pageSize int64) (store.CasePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*caserecord.Case
	for _, id := range s.order {
		if f.Matches(s.docs[id]) {
			matched = append(matched, s.docs[id])
		}
	}

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	out := store.CasePage{Total: total}
	for _, c := range matched[start:end] {
		out.Cases = append(out.Cases, clone(c.ID, c))
	}
	if end < total {
		next := page + 1
		out.NextPage = &next
	}
	return out, nil
}

// UpdateCase applies the update atomically: the document is rebuilt
// from a mutated copy and swapped in under the write lock, so a reader
// never observes a partial application.
func (s *Store) UpdateCase(_ context.Context, id string, u *update.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("case %q: %w", id, domain.ErrNotFound)
	}

	doc := existing.ToMap()
	u.Sets(func(path string, value any) { setPath(doc, path, value) })
	u.Unsets(func(path string) { unsetPath(doc, path) })

	oldKey := existing.ReferenceKey()
	rebuilt := caserecord.FromStoredMap(id, doc)
	s.docs[id] = rebuilt
	if newKey := rebuilt.ReferenceKey(); newKey != oldKey {
		if oldKey != "" {
			delete(s.byRef, oldKey)
		}
		if newKey != "" {
			s.byRef[newKey] = id
		}
	}
	return nil
}

// BatchUpsert creates or replaces each case by reference identity.
func (s *Store) BatchUpsert(_ context.Context, entries []store.BatchEntry) (store.UpsertOutcome, error) {
	out := store.NewUpsertOutcome()

	for i, entry := range entries {
		key := entry.Key
		if key == "" {
			key = fmt.Sprintf("%d", i)
		}
		if err := entry.Case.Validate(s.reg); err != nil {
			out.Errors[key] = err.Error()
			continue
		}
		if s.upsertOne(entry.Case) {
			out.NumCreated++
		} else {
			out.NumUpdated++
		}
	}
	return out, nil
}

// upsertOne replaces the existing document with the same reference
// identity, keeping its id and position. Returns true when created.
func (s *Store) upsertOne(c *caserecord.Case) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	refKey := c.ReferenceKey()
	if refKey != "" {
		if id, exists := s.byRef[refKey]; exists {
			s.docs[id] = clone(id, c)
			return false
		}
	}

	id := uuid.NewString()
	s.order = append(s.order, id)
	s.docs[id] = clone(id, c)
	if refKey != "" {
		s.byRef[refKey] = id
	}
	return true
}

// DeleteCase removes one document.
func (s *Store) DeleteCase(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("case %q: %w", id, domain.ErrNotFound)
	}
	delete(s.docs, id)
	if key := c.ReferenceKey(); key != "" {
		delete(s.byRef, key)
	}
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// clone round-trips a case through its document shape so stored state
// never aliases caller-held maps.
func clone(id string, c *caserecord.Case) *caserecord.Case {
	return caserecord.FromStoredMap(id, c.ToMap())
}

func setPath(doc map[string]any, path string, value any) {
	segs := strings.Split(path, ".")
	m := doc
	for _, seg := range segs[:len(segs)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[seg] = child
		}
		m = child
	}
	m[segs[len(segs)-1]] = value
}

func unsetPath(doc map[string]any, path string) {
	segs := strings.Split(path, ".")
	m := doc
	for _, seg := range segs[:len(segs)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			return
		}
		m = child
	}
	delete(m, segs[len(segs)-1])
}
