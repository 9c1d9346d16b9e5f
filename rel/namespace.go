package rel

import "sync"

// Namespace is the expression namespace from spec.md §3: a mapping from
// identifier to value, shared across all constraint and algebra
// expressions evaluated against it. Clients register user-defined type
// constructors and helper values here (the CID, SID domain constructors in
// the scenarios).
//
// spec.md §9 notes that a systems-language reimplementation should localize
// this to a database-scoped registry rather than one process-wide instance,
// to avoid cross-database leakage; Namespace is built that way from the
// start (one instance per dinsd.DB), with DefaultNamespace offered as the
// documented global-default registry for callers that want the original
// process-wide behavior for user-defined types.
type Namespace struct {
	mu     sync.RWMutex
	consts map[string]Value
	funcs  map[string]func([]Value) (Value, error)
	types  map[string]Type
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{
		consts: map[string]Value{},
		funcs:  map[string]func([]Value) (Value, error){},
		types:  map[string]Type{},
	}
}

// DefaultNamespace is the documented global-default registry for
// user-defined types, mirroring the teacher's process-wide builtin
// environment while keeping per-database namespaces (constructed via
// NewNamespace) the normal case.
var DefaultNamespace = NewNamespace()

// DefineType registers a user-defined domain type constructor under name,
// e.g. ns.DefineType("CID", rel.NewScalarType("CID")).
func (ns *Namespace) DefineType(name string, typ Type) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.types[name] = typ
}

// LookupType returns the type registered under name, if any.
func (ns *Namespace) LookupType(name string) (Type, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	t, ok := ns.types[name]
	return t, ok
}

// Set binds name to a constant value visible to expressions evaluated
// against this namespace.
func (ns *Namespace) Set(name string, v Value) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.consts[name] = v
}

// Get resolves name against the namespace's constants.
func (ns *Namespace) Get(name string) (Value, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	v, ok := ns.consts[name]
	return v, ok
}

// RegisterFunc registers a callable visible to expressions evaluated
// against this namespace, e.g. domain constructors such as CID(x).
func (ns *Namespace) RegisterFunc(name string, fn func([]Value) (Value, error)) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.funcs[name] = fn
}

// LookupFunc resolves name against the namespace's registered functions.
func (ns *Namespace) LookupFunc(name string) (func([]Value) (Value, error), bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	fn, ok := ns.funcs[name]
	return fn, ok
}

// Names returns every constant and function name currently registered, for
// building a CEL declaration set.
func (ns *Namespace) Names() (consts, funcs []string) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	for n := range ns.consts {
		consts = append(consts, n)
	}
	for n := range ns.funcs {
		funcs = append(funcs, n)
	}
	return consts, funcs
}
