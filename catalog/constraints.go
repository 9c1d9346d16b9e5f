package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/bitdancer/dinsd/predicate"
	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/txn"
)

// ConstrainRows implements spec.md §4.4's constrain_rows(): compiles src
// against the relation's declared header, checks it against every row
// currently present (tightening a constraint on an existing relation that
// violates it must fail, not silently accept), and only then merges it into
// the constraint dictionary under cname.
func (h *Handle) ConstrainRows(ctx context.Context, cname string, src any) error {
	return h.withFrame(ctx, func(f *txn.Frame) error {
		return h.cat.doConstrainRows(f, h.name, cname, src)
	})
}

// RemoveRowConstraints implements spec.md §4.4's remove_row_constraints():
// drops the named constraints from the dictionary. Naming a constraint the
// relation doesn't have fails with unknown-constraint.
func (h *Handle) RemoveRowConstraints(ctx context.Context, names ...string) error {
	return h.withFrame(ctx, func(f *txn.Frame) error {
		return h.cat.doRemoveRowConstraints(f, h.name, names)
	})
}

// SetKey implements spec.md §4.4's set_key(): declares attrs (stored sorted
// by name) as the relation's key, failing with key-violated if the current
// contents are not already unique on that projection.
func (h *Handle) SetKey(ctx context.Context, attrs []string) error {
	return h.withFrame(ctx, func(f *txn.Frame) error {
		return h.cat.doSetKey(f, h.name, attrs)
	})
}

// RowConstraints returns a read-only snapshot of the relation's constraint
// dictionary (name -> source text), spec.md §4.4's "read-only view."
func (h *Handle) RowConstraints() (map[string]string, error) {
	snap, ok := h.cat.view(h.name, h.frame)
	if !ok {
		return nil, unknownRelationErr(h.name)
	}
	return cloneConstraints(snap.Constraints), nil
}

func (c *Catalog) doConstrainRows(f *txn.Frame, name, cname string, src any) error {
	snap, ok := f.View(name)
	if !ok {
		return unknownRelationErr(name)
	}
	prog, err := predicate.CompilePredicate(src, snap.Header, c.ns)
	if err != nil {
		return wrapPredicateErr(err)
	}
	if err := evalConstraint(snap.R, name, cname, prog); err != nil {
		return err
	}
	constraints := cloneConstraints(snap.Constraints)
	constraints[cname] = prog.Source()
	f.Write(name, txn.Snapshot{Header: snap.Header, R: snap.R, Key: snap.Key, Constraints: constraints})
	return nil
}

func (c *Catalog) doRemoveRowConstraints(f *txn.Frame, name string, names []string) error {
	snap, ok := f.View(name)
	if !ok {
		return unknownRelationErr(name)
	}
	constraints := cloneConstraints(snap.Constraints)
	for _, cname := range names {
		if _, ok := constraints[cname]; !ok {
			return unknownConstraintErr(name, cname)
		}
		delete(constraints, cname)
	}
	f.Write(name, txn.Snapshot{Header: snap.Header, R: snap.R, Key: snap.Key, Constraints: constraints})
	return nil
}

func (c *Catalog) doSetKey(f *txn.Frame, name string, attrs []string) error {
	snap, ok := f.View(name)
	if !ok {
		return unknownRelationErr(name)
	}
	for _, a := range attrs {
		if _, ok := snap.Header[a]; !ok {
			return headerMismatchErr(name)
		}
	}
	if !snap.R.IsKeyUnique(attrs) {
		return keyViolatedErr(name, attrs, nil)
	}
	key := append([]string(nil), attrs...)
	sort.Strings(key)
	f.Write(name, txn.Snapshot{Header: snap.Header, R: snap.R, Key: key, Constraints: snap.Constraints})
	return nil
}

// checkAll enforces both key uniqueness and every row constraint against r,
// used by assign() which replaces a relation's entire value in one step.
func checkAll(r rel.Relation, key []string, constraints map[string]string, ns *rel.Namespace, relName string) error {
	if len(key) > 0 && !r.IsKeyUnique(key) {
		return keyViolatedErr(relName, key, nil)
	}
	return checkConstraints(r, constraints, ns, relName)
}

// checkConstraints compiles and evaluates every constraint in constraints
// against every row of r, failing on the first row that violates the first
// constraint it fails. Predicates are recompiled from their stored source
// text on each check rather than cached across calls — dinsd's relations
// are small, in-memory working sets (spec.md's own examples top out at a
// handful of rows), so the simplicity of "the dictionary only ever stores
// source text" outweighs the cost of reparsing it.
func checkConstraints(r rel.Relation, constraints map[string]string, ns *rel.Namespace, relName string) error {
	for cname, src := range constraints {
		prog, err := predicate.CompilePredicate(src, r.Header(), ns)
		if err != nil {
			return wrapPredicateErr(err)
		}
		if err := evalConstraint(r, relName, cname, prog); err != nil {
			return err
		}
	}
	return nil
}

func evalConstraint(r rel.Relation, relName, cname string, prog *predicate.Program) error {
	for _, row := range r.Rows() {
		ok, err := prog.Eval(row)
		if err == nil && ok {
			continue
		}
		violated := rowConstraintViolatedErr(relName, cname, prog.Source(), rowToStrings(row))
		if err != nil {
			violated.Message = fmt.Sprintf("%s (evaluation error: %v)", violated.Message, err)
		}
		return violated
	}
	return nil
}
