package catalog

import (
	"sync"

	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/txn"
)

// entry is the catalog's authoritative, last-committed state for one
// persistent relation — spec.md §3's "named, mutable cell in the catalog."
type entry struct {
	header      rel.Header
	r           rel.Relation
	key         []string
	constraints map[string]string // name -> predicate source text
}

// Catalog is the authoritative in-memory map from relation name to
// persistent relation, spec.md §3/§4.3. It implements txn.Source and
// txn.Applier so a txn.Manager can read committed state and apply
// outermost-committed changes back into it, guarded by the same
// reader/writer-lock discipline as the teacher's storage/inmem store
// (rmu/wmu generalized here to one RWMutex over the name->entry map,
// since — unlike the teacher's single JSON tree — each relation is its own
// independent map entry and doesn't need a separate writer-serialization
// lock beyond what txn.Manager's single-writer-per-flush already gives).
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ns      *rel.Namespace
	mgr     *txn.Manager // set once, after the manager is constructed with this catalog as its Source/Applier
}

// New returns an empty catalog using ns as its expression namespace.
func New(ns *rel.Namespace) *Catalog {
	return &Catalog{entries: map[string]*entry{}, ns: ns}
}

// Bind attaches the manager this catalog's handles route mutations
// through. Called once during dinsd.Open, after the manager is
// constructed with this catalog as Source/Applier.
func (c *Catalog) Bind(mgr *txn.Manager) { c.mgr = mgr }

// Namespace returns the catalog's expression namespace.
func (c *Catalog) Namespace() *rel.Namespace { return c.ns }

// Committed implements txn.Source.
func (c *Catalog) Committed(name string) (txn.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return txn.Snapshot{}, false
	}
	return txn.Snapshot{
		Header:      e.header,
		R:           e.r,
		Key:         append([]string(nil), e.key...),
		Constraints: cloneConstraints(e.constraints),
	}, true
}

// Apply implements txn.Applier: atomically replaces the committed entries
// for every changed relation after a successful outermost store flush.
func (c *Catalog) Apply(changes map[string]txn.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, snap := range changes {
		if snap.Removed {
			delete(c.entries, name)
			continue
		}
		c.entries[name] = &entry{
			header:      snap.Header,
			r:           snap.R,
			key:         snap.Key,
			constraints: snap.Constraints,
		}
	}
	return nil
}

// Load installs a relation's state directly into the catalog without going
// through a transaction — used only while reconstructing the catalog from
// the backing store on Open (spec.md §4.6's overlay/commit machinery
// exists to arbitrate between concurrent in-memory mutators, which doesn't
// apply while loading the one-time initial snapshot from disk).
func (c *Catalog) Load(name string, header rel.Header, r rel.Relation, key []string, constraints map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = &entry{header: header, r: r, key: key, constraints: constraints}
}

// List returns every relation name and its header currently in the
// catalog, spec.md §6's list_relations().
func (c *Catalog) List() map[string]rel.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]rel.Header, len(c.entries))
	for name, e := range c.entries {
		out[name] = e.header
	}
	return out
}

// Has reports whether name is a known relation.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

func cloneConstraints(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
