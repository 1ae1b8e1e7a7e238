package schema

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/epiwatch/casestore/internal/domain"
)

// reservedNames are the core case attributes; custom fields may never
// shadow them.
var reservedNames = map[string]bool{
	"_id":                   true,
	"confirmationDate":      true,
	"caseReference":         true,
	"location":              true,
	"demographics":          true,
	"ageRange":              true,
	"caseExclusionMetadata": true,
}

// Reserved reports whether name is a core case attribute.
func Reserved(name string) bool { return reservedNames[name] }

// Registry is the process-wide catalog of custom case fields.
//
// Lookups go through a concurrent map so the read path is never blocked
// by a registration in flight; a reader sees a field fully registered or
// not at all. Registration order is kept separately for CSV projection.
type Registry struct {
	fields *xsync.MapOf[string, Field]

	mu    sync.Mutex
	order []string
}

// NewRegistry creates an empty field registry.
func NewRegistry() *Registry {
	return &Registry{fields: xsync.NewMapOf[string, Field]()}
}

// Register validates and adds a custom field by name and type.
func (r *Registry) Register(name string, ft Type) (Field, error) {
	f, err := New(name, ft)
	if err != nil {
		return Field{}, err
	}
	if err := r.Put(f); err != nil {
		return Field{}, err
	}
	return f, nil
}

// Put adds a pre-built field (used for required/default fields).
// Fails when the name collides with a core attribute or an existing
// custom field.
func (r *Registry) Put(f Field) error {
	if reservedNames[f.Name()] {
		return fmt.Errorf("field %q is a reserved core field: %w", f.Name(), domain.ErrConflict)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.fields.Load(f.Name()); dup {
		return fmt.Errorf("field %q already registered: %w", f.Name(), domain.ErrConflict)
	}
	r.fields.Store(f.Name(), f)
	r.order = append(r.order, f.Name())
	return nil
}

// TypeOf returns the semantic type of a registered field.
func (r *Registry) TypeOf(name string) (Type, error) {
	f, ok := r.fields.Load(name)
	if !ok {
		return "", fmt.Errorf("field %q: %w", name, domain.ErrNotFound)
	}
	return f.FieldType(), nil
}

// Has reports whether name is a registered custom field.
func (r *Registry) Has(name string) bool {
	_, ok := r.fields.Load(name)
	return ok
}

// Names returns the custom field names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Fields returns the custom fields in registration order.
func (r *Registry) Fields() []Field {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := make([]Field, 0, len(r.order))
	for _, name := range r.order {
		if f, ok := r.fields.Load(name); ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// Reset drops every custom field. Core attributes are not registry
// entries and survive by construction. Used to isolate test runs.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields.Clear()
	r.order = r.order[:0]
}
