// Package rel provides the minimal in-memory relational algebra that the
// database layer in packages catalog, txn, store and dinsd is built on top
// of: headers, rows, relations and the scalar value types that populate
// them. It stands in for "an already-existing in-memory relational algebra
// kernel" — the rest of this module is what's actually specified.
package rel

import (
	"fmt"
	"sort"
	"strings"
)

// Type describes an attribute type: a stable tag plus the ability to
// validate and compare values claiming that type.
type Type interface {
	// Tag is a stable, serializable identifier for this type (e.g. "int",
	// "string", or a user-defined domain name like "CID").
	Tag() string

	// Equal reports whether two values of this type are equal.
	Equal(a, b Value) bool
}

// Value is any scalar that can populate a row attribute. Concrete value
// types (Int, String, Bool, and user-defined domain types such as the CID
// and SID scenarios in spec.md) implement this.
type Value interface {
	// Type returns the attribute type this value belongs to.
	Type() Type

	// String renders the value for diagnostics and CEL-free equality keys.
	String() string
}

// Header is an unordered mapping from attribute name to attribute type.
// Two headers are equal iff their name->type maps are equal.
type Header map[string]Type

// Names returns the header's attribute names in sorted order, for stable
// iteration and error messages.
func (h Header) Names() []string {
	names := make([]string, 0, len(h))
	for n := range h {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two headers declare the same attribute names with
// the same types.
func (h Header) Equal(o Header) bool {
	if len(h) != len(o) {
		return false
	}
	for name, typ := range h {
		otyp, ok := o[name]
		if !ok || otyp.Tag() != typ.Tag() {
			return false
		}
	}
	return true
}

// String renders the header as "{name type, name type}" sorted by name.
func (h Header) String() string {
	names := h.Names()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s %s", n, h[n].Tag())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// IsValidRelationName reports whether name is usable as a catalog relation
// name: a non-empty identifier that does not begin with an underscore.
func IsValidRelationName(name string) bool {
	if !IsIdentifier(name) {
		return false
	}
	return name[0] != '_'
}

// IsIdentifier reports whether name is a non-empty identifier: starts with a
// letter or underscore, followed by letters, digits or underscores.
func IsIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
