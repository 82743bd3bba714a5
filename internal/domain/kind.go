package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType is the JSON shape a field value must have.
type FieldType string

// Supported field types.
const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldTime   FieldType = "time" // RFC 3339 string
	FieldArray  FieldType = "array"
	FieldObject FieldType = "object"
)

// IDStrategy selects how new record ids are assigned.
type IDStrategy string

const (
	// IDNumeric assigns max(existing ids) + 1.
	IDNumeric IDStrategy = "numeric"
	// IDOpaque assigns a time-ordered opaque string.
	IDOpaque IDStrategy = "opaque"
)

// Visibility controls who may read records of a kind.
type Visibility string

const (
	// VisibilityPublic records can be read by anyone, including anonymous callers.
	VisibilityPublic Visibility = "public"
	// VisibilityOwner records can only be read by their owner or an admin.
	VisibilityOwner Visibility = "owner"
)

// Field describes one business field of a kind.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	// Rules is a go-playground/validator tag applied to present values,
	// e.g. "max=100" or "oneof=low medium high".
	Rules string
	// Default is used when a create or replace leaves the field out.
	Default any
}

// Kind describes one resource collection: its schema, id strategy and who can
// read it.
type Kind struct {
	Name       string
	IDStrategy IDStrategy
	Visibility Visibility
	Fields     []Field
	// SearchField and RangeField are the defaults used by the search endpoint
	// when the request does not name a field.
	SearchField string
	RangeField  string
	// Seed records are written the first time a file-backed collection is created.
	Seed []Record
}

// Field returns the declared field called name.
func (k Kind) Field(name string) (Field, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Owned reports whether records of this kind are private to their owner.
func (k Kind) Owned() bool {
	return k.Visibility == VisibilityOwner
}

// CheckType verifies that v has the JSON shape declared for f.
func (f Field) CheckType(v any) error {
	if v == nil {
		return nil
	}
	ok := false
	switch f.Type {
	case FieldString, FieldTime:
		_, ok = v.(string)
	case FieldNumber:
		_, ok = Number(v)
	case FieldBool:
		_, ok = v.(bool)
	case FieldArray:
		_, ok = v.([]any)
	case FieldObject:
		_, ok = v.(map[string]any)
	default:
		ok = true
	}
	if !ok {
		return NewValidationError(f.Name, fmt.Sprintf("must be a %s", f.Type), ErrInvalidFormat)
	}
	return nil
}

// Registry holds the kinds served by the API, keyed by name.
type Registry struct {
	kinds map[string]Kind
	order []string
}

// NewRegistry builds a registry, rejecting duplicate or reserved names.
func NewRegistry(kinds ...Kind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		name := strings.TrimSpace(k.Name)
		if name == "" {
			return nil, fmt.Errorf("kind name cannot be empty")
		}
		if name == IdentityKind {
			return nil, fmt.Errorf("kind name %q is reserved", name)
		}
		if _, dup := r.kinds[name]; dup {
			return nil, fmt.Errorf("duplicate kind %q", name)
		}
		r.kinds[name] = k
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the kind registered under name.
func (r *Registry) Get(name string) (Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// All returns the registered kinds in registration order.
func (r *Registry) All() []Kind {
	out := make([]Kind, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.kinds[name])
	}
	return out
}

// seedNumber keeps seeded numeric values in the same representation the JSON
// decoder produces, so seeded and reloaded records compare equal.
func seedNumber(n int64) json.Number {
	return json.Number(fmt.Sprint(n))
}
