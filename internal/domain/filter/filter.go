// Package filter is the storage-agnostic predicate algebra over case
// documents. Every backend evaluates the same filters with identical
// matching semantics: the memory store interprets them directly, the
// mongo store translates them into native queries.
package filter

import "time"

// Op is a comparison operator.
type Op string

// Comparison operators.
const (
	Less    Op = "<"
	Greater Op = ">"
	Equal   Op = "="
)

// Document is the evaluation target: anything addressable by dotted path.
type Document interface {
	Lookup(path string) (any, bool)
}

// Filter is a pure, immutable predicate, safe to share across
// concurrent evaluations.
type Filter interface {
	Matches(doc Document) bool
}

// Anything matches every document.
type Anything struct{}

// Matches always reports true.
func (Anything) Matches(Document) bool { return true }

// Property matches documents whose value at Path compares to Value.
// A missing path or a type mismatch is a non-match, not an error.
type Property struct {
	Path  string
	Op    Op
	Value any
}

// Matches evaluates the comparison against the document.
func (p Property) Matches(doc Document) bool {
	stored, ok := doc.Lookup(p.Path)
	if !ok {
		return false
	}
	cmp, comparable := compare(stored, p.Value)
	if !comparable {
		return false
	}
	switch p.Op {
	case Less:
		return cmp < 0
	case Greater:
		return cmp > 0
	case Equal:
		return cmp == 0
	}
	return false
}

// And matches iff every sub-filter matches. An empty conjunction
// matches everything.
type And struct {
	Filters []Filter
}

// Matches evaluates the conjunction.
func (a And) Matches(doc Document) bool {
	for _, f := range a.Filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

// compare orders two values of compatible types. The second return is
// false for cross-type or unordered comparisons.
func compare(a, b any) (int, bool) {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
