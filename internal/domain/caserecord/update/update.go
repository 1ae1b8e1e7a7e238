// Package update represents a partial, dotted-path case mutation: an
// ordered collection of sets and unsets applied atomically by a store.
package update

import "sort"

// Update is a normalized diff over a case document. The zero value is
// not usable; construct via New or FromMap.
type Update struct {
	sets     map[string]any
	unsets   map[string]bool
	setOrder []string
	unsOrder []string
}

// New creates an empty update.
func New() *Update {
	return &Update{sets: map[string]any{}, unsets: map[string]bool{}}
}

// FromMap flattens a nested payload into dotted-path operations.
// A nil leaf records an unset; every other leaf value — false, zero,
// the empty string — records a set.
func FromMap(raw map[string]any) *Update {
	u := New()
	u.flatten("", raw)
	return u
}

func (u *Update) flatten(prefix string, m map[string]any) {
	// Sorted keys keep flattening deterministic for map input.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := m[k].(type) {
		case nil:
			u.Unset(path)
		case map[string]any:
			u.flatten(path, v)
		default:
			u.Set(path, v)
		}
	}
}

// Set records a set operation; the most recent call for a path wins and
// cancels any pending unset of the same path.
func (u *Update) Set(path string, value any) {
	if u.unsets[path] {
		delete(u.unsets, path)
		u.unsOrder = remove(u.unsOrder, path)
	}
	if _, dup := u.sets[path]; !dup {
		u.setOrder = append(u.setOrder, path)
	}
	u.sets[path] = value
}

// Unset records an unset operation, cancelling any pending set.
func (u *Update) Unset(path string) {
	if _, had := u.sets[path]; had {
		delete(u.sets, path)
		u.setOrder = remove(u.setOrder, path)
	}
	if !u.unsets[path] {
		u.unsets[path] = true
		u.unsOrder = append(u.unsOrder, path)
	}
}

// Sets iterates the set operations in insertion order.
func (u *Update) Sets(fn func(path string, value any)) {
	for _, p := range u.setOrder {
		fn(p, u.sets[p])
	}
}

// Unsets iterates the unset paths in insertion order.
func (u *Update) Unsets(fn func(path string)) {
	for _, p := range u.unsOrder {
		fn(p)
	}
}

// Paths returns every touched path, sets first.
func (u *Update) Paths() []string {
	paths := make([]string, 0, u.Len())
	paths = append(paths, u.setOrder...)
	paths = append(paths, u.unsOrder...)
	return paths
}

// Len reports the total operation count. Callers use it to short-
// circuit no-op updates.
func (u *Update) Len() int { return len(u.sets) + len(u.unsets) }

func remove(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
