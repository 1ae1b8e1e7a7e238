package schema

import (
	"fmt"
	"strings"

	"github.com/epiwatch/casestore/internal/domain"
)

// Type is the semantic type of a case field.
type Type string

// Field type constants.
const (
	// String is a free-text field.
	String  Type = "string"
	Date    Type = "date"
	Integer Type = "integer"
)

// Field is an immutable value object describing a case document field.
type Field struct {
	name     string
	ftype    Type
	required bool
	def      any
}

// New validates and creates a Field.
// Name must be non-empty and must not contain dots (dotted paths address
// nested core structures only). Type must be string, date or integer.
func New(name string, ft Type) (Field, error) {
	if name == "" {
		return Field{}, fmt.Errorf("field name is required: %w", domain.ErrPrecondition)
	}
	if strings.Contains(name, ".") {
		return Field{}, fmt.Errorf("field name %q must not contain dots: %w", name, domain.ErrPrecondition)
	}
	if ft != String && ft != Date && ft != Integer {
		return Field{}, fmt.Errorf("unsupported field type %q for %q: %w", ft, name, domain.ErrPrecondition)
	}
	return Field{name: name, ftype: ft}, nil
}

// AsRequired returns a copy of the field marked mandatory at validation.
func (f Field) AsRequired() Field {
	f.required = true
	return f
}

// WithDefault returns a copy of the field carrying a default value,
// applied when the field is absent from an incoming document.
func (f Field) WithDefault(v any) Field {
	f.def = v
	return f
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// FieldType returns the field's semantic type.
func (f Field) FieldType() Type { return f.ftype }

// Required reports whether the field is mandatory.
func (f Field) Required() bool { return f.required }

// Default returns the field's default value, or nil.
func (f Field) Default() any { return f.def }
