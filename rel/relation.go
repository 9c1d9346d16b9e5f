package rel

// Relation is a set of rows sharing one header: no duplicates, order
// insignificant. Relations are immutable values — every mutating-looking
// method returns a new Relation.
type Relation struct {
	header Header
	rows   map[string]Row
}

// New returns an empty relation with the given header.
func New(h Header) Relation {
	return Relation{header: h, rows: map[string]Row{}}
}

// FromRows builds a relation with the given header from a slice of rows.
// Every row's own header must equal h.
func FromRows(h Header, rows []Row) (Relation, error) {
	r := New(h)
	for _, row := range rows {
		if !row.Header().Equal(h) {
			return Relation{}, &HeaderMismatchError{Want: h, Got: row.Header()}
		}
		r.rows[row.key()] = row
	}
	return r, nil
}

// HeaderMismatchError reports a row, or relation, whose header does not
// match the one it was compared against.
type HeaderMismatchError struct {
	Want, Got Header
}

func (e *HeaderMismatchError) Error() string {
	return "header mismatch: want " + e.Want.String() + ", got " + e.Got.String()
}

// Header returns the relation's header.
func (r Relation) Header() Header { return r.header }

// Len returns the number of rows.
func (r Relation) Len() int { return len(r.rows) }

// Rows returns the relation's rows in no particular order.
func (r Relation) Rows() []Row {
	out := make([]Row, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out
}

// Has reports whether row is a member of r.
func (r Relation) Has(row Row) bool {
	_, ok := r.rows[row.key()]
	return ok
}

// Equal reports whether two relations have the same header and the same set
// of rows.
func (r Relation) Equal(o Relation) bool {
	if !r.header.Equal(o.header) {
		return false
	}
	if len(r.rows) != len(o.rows) {
		return false
	}
	for k, row := range r.rows {
		orow, ok := o.rows[k]
		if !ok || !row.Equal(orow) {
			return false
		}
	}
	return true
}

// Union returns the set union of r and o. Both must share a header.
func (r Relation) Union(o Relation) (Relation, error) {
	if !r.header.Equal(o.header) {
		return Relation{}, &HeaderMismatchError{Want: r.header, Got: o.header}
	}
	out := New(r.header)
	for k, row := range r.rows {
		out.rows[k] = row
	}
	for k, row := range o.rows {
		out.rows[k] = row
	}
	return out, nil
}

// Minus returns the set difference r - o. Both must share a header.
func (r Relation) Minus(o Relation) (Relation, error) {
	if !r.header.Equal(o.header) {
		return Relation{}, &HeaderMismatchError{Want: r.header, Got: o.header}
	}
	out := New(r.header)
	for k, row := range r.rows {
		if _, ok := o.rows[k]; !ok {
			out.rows[k] = row
		}
	}
	return out, nil
}

// Where returns the sub-relation of rows for which pred returns true.
// pred is supplied by the constraint engine / predicate package; this
// method just applies it — it is the "where" operator spec.md assumes the
// algebra kernel already provides.
func (r Relation) Where(pred func(Row) (bool, error)) (Relation, error) {
	out := New(r.header)
	for k, row := range r.rows {
		ok, err := pred(row)
		if err != nil {
			return Relation{}, err
		}
		if ok {
			out.rows[k] = row
		}
	}
	return out, nil
}

// Project returns the relation restricted to the named attributes. Used by
// the catalog's key-uniqueness check (§3: "the projection R onto K is
// injective").
func (r Relation) Project(names []string) Relation {
	h := make(Header, len(names))
	for _, n := range names {
		h[n] = r.header[n]
	}
	out := New(h)
	for _, row := range r.rows {
		p := row.Project(names)
		out.rows[p.key()] = p
	}
	return out
}

// IsKeyUnique reports whether the projection of r onto names is injective,
// i.e. no two distinct rows of r collide on their K-projection.
func (r Relation) IsKeyUnique(names []string) bool {
	seen := make(map[string]struct{}, len(r.rows))
	for _, row := range r.rows {
		k := row.Project(names).key()
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}

// DuplicateKeyRows returns the rows of extra whose K-projection collides
// with a row already present in base or with an earlier row of extra. Used
// to report the offending rows of a key violation.
func DuplicateKeyRows(base Relation, extra []Row, names []string) []Row {
	seen := make(map[string]struct{}, base.Len())
	for _, row := range base.rows {
		seen[row.Project(names).key()] = struct{}{}
	}
	var offenders []Row
	added := make(map[string]struct{})
	for _, row := range extra {
		k := row.Project(names).key()
		if _, dup := seen[k]; dup {
			offenders = append(offenders, row)
			continue
		}
		if _, dup := added[k]; dup {
			offenders = append(offenders, row)
			continue
		}
		seen[k] = struct{}{}
		added[k] = struct{}{}
	}
	return offenders
}
