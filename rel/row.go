package rel

import (
	"sort"
	"strings"
)

// Row is a mapping whose keys equal some header's attribute names and whose
// values inhabit the corresponding types. Rows are value-typed: equality is
// structural, not pointer identity.
type Row map[string]Value

// Header returns the header implied by row's own attribute names and the
// dynamic types of its values. Used to validate a row against a declared
// Header before it is accepted into a relation.
func (r Row) Header() Header {
	h := make(Header, len(r))
	for name, v := range r {
		h[name] = v.Type()
	}
	return h
}

// Equal reports whether two rows have identical attribute names and
// pairwise-equal values.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for name, v := range r {
		ov, ok := o[name]
		if !ok {
			return false
		}
		if v.Type().Tag() != ov.Type().Tag() || !v.Type().Equal(v, ov) {
			return false
		}
	}
	return true
}

// CanonicalKey returns a canonical string encoding of the row, used as a
// map key so relations can be implemented as sets, and as the basis for a
// row's content-addressed storage identifier (see package txn). Two
// structurally equal rows always produce the same key, because Value.String
// is required to be stable and injective per type (the scalar types in this
// package guarantee that).
func (r Row) CanonicalKey() string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + r[n].String()
	}
	return strings.Join(parts, "\x1f")
}

func (r Row) key() string { return r.CanonicalKey() }

// Project returns a new row restricted to the named attributes. Used for
// key-projection uniqueness checks.
func (r Row) Project(names []string) Row {
	out := make(Row, len(names))
	for _, n := range names {
		out[n] = r[n]
	}
	return out
}

// With returns a copy of r with the named attributes replaced, used by
// update() to construct the post-image of a matching row.
func (r Row) With(changes Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range changes {
		out[k] = v
	}
	return out
}
