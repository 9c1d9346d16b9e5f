package catalog

import (
	"context"
	"fmt"

	"github.com/bitdancer/dinsd/predicate"
	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/txn"
)

// Handle is the persistent relation handle from spec.md §3/§4.5: a named,
// mutable catalog cell exposing assign/insert/update/delete. A Handle
// obtained inside a transaction (frame != nil) routes mutations into that
// frame directly; a Handle obtained outside any transaction auto-wraps
// each call in an implicit single-statement transaction (spec.md §4.5: "if
// no transaction is open, the operation runs inside an implicit
// single-statement transaction that commits on success and rolls back on
// failure").
type Handle struct {
	cat   *Catalog
	name  string
	frame *txn.Frame
}

// Get returns a handle to name as seen through frame (nil for "outside any
// transaction"). Fails with unknown-relation if name isn't in the catalog.
func (c *Catalog) Get(name string, frame *txn.Frame) (*Handle, error) {
	if _, ok := c.view(name, frame); !ok {
		return nil, unknownRelationErr(name)
	}
	return &Handle{cat: c, name: name, frame: frame}, nil
}

// Name returns the relation name this handle refers to.
func (h *Handle) Name() string { return h.name }

// Header returns the relation's declared header.
func (h *Handle) Header() (rel.Header, error) {
	snap, ok := h.cat.view(h.name, h.frame)
	if !ok {
		return nil, unknownRelationErr(h.name)
	}
	return snap.Header, nil
}

// Value returns an independent, freshly built in-memory relation value
// holding the handle's current contents — spec.md §9: "Do not leak
// references into algebra results; instead, operations on a handle return
// freshly-built in-memory relation values that are independent of the
// database."
func (h *Handle) Value() (rel.Relation, error) {
	snap, ok := h.cat.view(h.name, h.frame)
	if !ok {
		return rel.Relation{}, unknownRelationErr(h.name)
	}
	rows := snap.R.Rows()
	for i, row := range rows {
		rows[i] = row.With(nil)
	}
	return rel.FromRows(snap.Header, rows)
}

// Key returns the handle's currently declared key.
func (h *Handle) Key() ([]string, error) {
	snap, ok := h.cat.view(h.name, h.frame)
	if !ok {
		return nil, unknownRelationErr(h.name)
	}
	return snap.Key, nil
}

func (c *Catalog) view(name string, frame *txn.Frame) (txn.Snapshot, bool) {
	if frame != nil {
		return frame.View(name)
	}
	return c.Committed(name)
}

// withFrame runs fn against h.frame if one is open, otherwise opens and
// finishes an implicit single-statement transaction around fn — the
// realization of spec.md §4.5's "runs inside an implicit single-statement
// transaction that commits on success and rolls back on failure."
func (h *Handle) withFrame(ctx context.Context, fn func(f *txn.Frame) error) error {
	if h.frame != nil {
		return fn(h.frame)
	}
	f := h.cat.mgr.Begin(nil)
	err := fn(f)
	if ferr := WrapFinishErr(h.cat.mgr.Finish(ctx, f, err == nil)); ferr != nil {
		return ferr
	}
	return err
}

// Assign performs the wholesale-replacement operation from spec.md §4.3:
// value must be a rel.Relation whose header equals the target's declared
// header and which satisfies every row constraint and the key invariant.
func (h *Handle) Assign(ctx context.Context, value any) error {
	return h.withFrame(ctx, func(f *txn.Frame) error {
		return h.cat.doAssign(f, h.name, value)
	})
}

func (c *Catalog) doAssign(f *txn.Frame, name string, value any) error {
	snap, ok := f.View(name)
	if !ok {
		return unknownRelationErr(name)
	}
	r, ok := value.(rel.Relation)
	if !ok {
		return typeMismatchErr(name, value)
	}
	if !r.Header().Equal(snap.Header) {
		return headerMismatchErr(name)
	}
	if err := checkAll(r, snap.Key, snap.Constraints, c.ns, name); err != nil {
		return err
	}
	f.Write(name, txn.Snapshot{Header: snap.Header, R: r, Key: snap.Key, Constraints: snap.Constraints})
	return nil
}

// Insert implements spec.md §4.5's insert(): value is either a single row
// or a relation value to union into the current contents.
func (h *Handle) Insert(ctx context.Context, value any) error {
	return h.withFrame(ctx, func(f *txn.Frame) error {
		return h.cat.doInsert(f, h.name, value)
	})
}

func (c *Catalog) doInsert(f *txn.Frame, name string, value any) error {
	snap, ok := f.View(name)
	if !ok {
		return unknownRelationErr(name)
	}

	var newRows []rel.Row
	switch v := value.(type) {
	case rel.Row:
		if !v.Header().Equal(snap.Header) {
			return headerMismatchErr(name)
		}
		newRows = []rel.Row{v}
	case rel.Relation:
		if !v.Header().Equal(snap.Header) {
			return headerMismatchErr(name)
		}
		newRows = v.Rows()
	default:
		return typeMismatchErr(name, value)
	}

	if len(snap.Key) > 0 {
		if offenders := rel.DuplicateKeyRows(snap.R, newRows, snap.Key); len(offenders) > 0 {
			return keyViolatedErr(name, snap.Key, rowsToStrings(offenders))
		}
	}

	added, err := rel.FromRows(snap.Header, newRows)
	if err != nil {
		return headerMismatchErr(name)
	}
	merged, err := snap.R.Union(added)
	if err != nil {
		return headerMismatchErr(name)
	}

	if err := checkConstraints(merged, snap.Constraints, c.ns, name); err != nil {
		return err
	}

	f.Write(name, txn.Snapshot{Header: snap.Header, R: merged, Key: snap.Key, Constraints: snap.Constraints})
	return nil
}

// Update implements spec.md §4.5's update(): rows matching whereSrc are
// replaced by themselves with each named attribute recomputed from its
// expression, evaluated with the row's own attributes and the namespace
// visible.
func (h *Handle) Update(ctx context.Context, whereSrc any, changes map[string]any) error {
	return h.withFrame(ctx, func(f *txn.Frame) error {
		return h.cat.doUpdate(f, h.name, whereSrc, changes)
	})
}

func (c *Catalog) doUpdate(f *txn.Frame, name string, whereSrc any, changes map[string]any) error {
	snap, ok := f.View(name)
	if !ok {
		return unknownRelationErr(name)
	}

	where, err := predicate.CompilePredicate(whereSrc, snap.Header, c.ns)
	if err != nil {
		return wrapPredicateErr(err)
	}

	type change struct {
		typ  rel.Type
		prog *predicate.Program
	}
	exprs := make(map[string]change, len(changes))
	for attr, src := range changes {
		typ, ok := snap.Header[attr]
		if !ok {
			return headerMismatchErr(name)
		}
		prog, err := predicate.CompileExpr(src, snap.Header, c.ns)
		if err != nil {
			return wrapPredicateErr(err)
		}
		exprs[attr] = change{typ: typ, prog: prog}
	}

	newRows := make([]rel.Row, 0, snap.R.Len())
	for _, row := range snap.R.Rows() {
		matched, err := where.Eval(row)
		if err != nil {
			matched = false
		}
		if !matched {
			newRows = append(newRows, row)
			continue
		}
		rowChanges := make(rel.Row, len(changes))
		for attr, ch := range exprs {
			v, err := ch.prog.EvalValue(row, ch.typ)
			if err != nil {
				violated := rowConstraintViolatedErr(name, attr, ch.prog.Source(), rowToStrings(row))
				violated.Message = fmt.Sprintf("%s (evaluation error: %v)", violated.Message, err)
				return violated
			}
			rowChanges[attr] = v
		}
		newRows = append(newRows, row.With(rowChanges))
	}

	updated, err := rel.FromRows(snap.Header, newRows)
	if err != nil {
		return headerMismatchErr(name)
	}

	if len(snap.Key) > 0 && !updated.IsKeyUnique(snap.Key) {
		return keyViolatedErr(name, snap.Key, nil)
	}
	if err := checkConstraints(updated, snap.Constraints, c.ns, name); err != nil {
		return err
	}

	f.Write(name, txn.Snapshot{Header: snap.Header, R: updated, Key: snap.Key, Constraints: snap.Constraints})
	return nil
}

// Delete implements spec.md §4.5's delete(): no predicate/key check is
// required, since removing rows can never introduce a constraint or key
// violation.
func (h *Handle) Delete(ctx context.Context, whereSrc any) error {
	return h.withFrame(ctx, func(f *txn.Frame) error {
		return h.cat.doDelete(f, h.name, whereSrc)
	})
}

func (c *Catalog) doDelete(f *txn.Frame, name string, whereSrc any) error {
	snap, ok := f.View(name)
	if !ok {
		return unknownRelationErr(name)
	}
	where, err := predicate.CompilePredicate(whereSrc, snap.Header, c.ns)
	if err != nil {
		return wrapPredicateErr(err)
	}
	kept, err := snap.R.Where(func(row rel.Row) (bool, error) {
		matched, err := where.Eval(row)
		if err != nil {
			return true, nil // evaluation error: leave the row in place, per §4.4's "treated as False" (false match for deletion means "not deleted")
		}
		return !matched, nil
	})
	if err != nil {
		return err
	}
	f.Write(name, txn.Snapshot{Header: snap.Header, R: kept, Key: snap.Key, Constraints: snap.Constraints})
	return nil
}

func rowToStrings(row rel.Row) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v.String()
	}
	return out
}

func rowsToStrings(rows []rel.Row) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i, r := range rows {
		out[i] = rowToStrings(r)
	}
	return out
}

func wrapPredicateErr(err error) error {
	if _, ok := err.(*predicate.NotSerializableError); ok {
		return &Error{Code: PredicateNotSerializableErr, Message: err.Error()}
	}
	return &Error{Code: InternalErr, Message: err.Error()}
}
