// Package txn implements spec.md §4.6: a per-client stack of frames, each a
// copy-on-write overlay over the touched persistent relations, that
// commits the outermost scope atomically to the catalog and backing store
// and rolls back on an explicit Rollback signal or any other error.
//
// spec.md §9 notes the frame stack can be "a thread-local (or explicit
// client handle)"; dinsd takes the explicit-client-handle option, the same
// way the teacher's own storage.Transaction is an opaque handle threaded
// explicitly through every Store call rather than looked up from
// goroutine-local state. Nesting falls directly out of Go's call stack: a
// nested transaction is a nested call to (*Manager).Begin, and Go's normal
// error propagation gives the "inner failure rolls back everything above
// it, inner Rollback only rolls back the inner frame" laws for free.
package txn

import (
	"context"
	"fmt"

	"github.com/bitdancer/dinsd/logging"
	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/store"
)

// Snapshot is the (R, K, C) triple spec.md §4.6 says a frame records for
// each relation it touches: the relation's current value, its declared
// key, and its row-constraint dictionary (name -> source text), alongside
// the header needed to decode/encode it. Removed marks a relation dropped
// within the frame.
type Snapshot struct {
	Header      rel.Header
	R           rel.Relation
	Key         []string
	Constraints map[string]string
	Removed     bool
}

// Source supplies the last-committed snapshot for a relation name, letting
// a frame lazily copy-on-write from the catalog the first time it touches
// a relation the transaction hasn't seen yet.
type Source interface {
	Committed(name string) (Snapshot, bool)
}

// Applier atomically updates the catalog's committed view after an
// outermost frame's changes have been durably flushed through the store.
type Applier interface {
	Apply(changes map[string]Snapshot) error
}

// Manager coordinates frames against a committed Source, an Applier, and
// the backing store that outermost commits flush through.
type Manager struct {
	source  Source
	applier Applier
	st      store.Store
	log     *logging.Logger
}

// NewManager returns a Manager. log may be nil, in which case a no-op
// logger is used.
func NewManager(source Source, applier Applier, st store.Store, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NoOp()
	}
	return &Manager{source: source, applier: applier, st: st, log: log}
}

// Frame is one level of the transaction stack.
type Frame struct {
	mgr      *Manager
	parent   *Frame
	overlays map[string]*Snapshot
	dirty    map[string]bool
	depth    int
}

// Begin pushes a new frame over parent (nil for the outermost frame).
func (m *Manager) Begin(parent *Frame) *Frame {
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	m.log.WithField("depth", depth).Trace("frame begin")
	return &Frame{
		mgr:      m,
		parent:   parent,
		overlays: map[string]*Snapshot{},
		dirty:    map[string]bool{},
		depth:    depth,
	}
}

// View returns the snapshot this frame currently sees for name: its own
// overlay if touched, else the parent frame's view, else the last
// committed state via Source.
func (f *Frame) View(name string) (Snapshot, bool) {
	if s, ok := f.overlays[name]; ok {
		return *s, true
	}
	if f.parent != nil {
		return f.parent.View(name)
	}
	return f.mgr.source.Committed(name)
}

// Write records a new snapshot for name in this frame's overlay, marking
// it dirty so it is included in the eventual flush.
func (f *Frame) Write(name string, snap Snapshot) {
	s := snap
	f.overlays[name] = &s
	f.dirty[name] = true
}

// Names returns every relation name present in this frame's own overlay
// chain (not the full catalog), i.e. every relation written so far in the
// transaction. It does not change any expression namespace.
func (f *Frame) Names() []string {
	seen := map[string]bool{}
	names := []string{}
	for cur := f; cur != nil; cur = cur.parent {
		for name := range cur.overlays {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// CommitFailedError wraps a store-adapter failure during an outermost
// flush, spec.md §7's commit-failed kind.
type CommitFailedError struct {
	Err error
}

func (e *CommitFailedError) Error() string { return fmt.Sprintf("commit-failed: %v", e.Err) }
func (e *CommitFailedError) Unwrap() error { return e.Err }

// Finish ends frame. If commit is false (explicit Rollback or any other
// error from the transaction body), the frame's overlays are simply
// discarded — there is nothing further to undo, because nothing below
// frame was ever mutated. If commit is true and frame has a parent, its
// overlays are merged into the parent (the parent now sees these changes,
// per spec.md §4.6). If commit is true and frame is outermost, every dirty
// relation is flushed atomically through the store, and only then applied
// to the catalog's committed view.
func (m *Manager) Finish(ctx context.Context, frame *Frame, commit bool) error {
	if !commit {
		m.log.WithField("depth", frame.depth).Trace("frame discarded")
		return nil
	}
	if frame.parent != nil {
		for name, snap := range frame.overlays {
			frame.parent.overlays[name] = snap
			if frame.dirty[name] {
				frame.parent.dirty[name] = true
			}
		}
		m.log.WithField("depth", frame.depth).Trace("frame merged into parent")
		return nil
	}
	return m.flushOutermost(ctx, frame)
}

func (m *Manager) flushOutermost(ctx context.Context, frame *Frame) error {
	if len(frame.dirty) == 0 {
		return nil
	}
	stx, err := m.st.Begin(ctx)
	if err != nil {
		return &CommitFailedError{Err: err}
	}
	changes := make(map[string]Snapshot, len(frame.dirty))
	for name := range frame.dirty {
		snap := *frame.overlays[name]
		changes[name] = snap
		if err := flushRelation(stx, name, snap); err != nil {
			stx.Rollback()
			return &CommitFailedError{Err: err}
		}
		traceFlush(m.log, name, snap)
	}
	if err := stx.Commit(); err != nil {
		return &CommitFailedError{Err: err}
	}
	if err := m.applier.Apply(changes); err != nil {
		return &CommitFailedError{Err: err}
	}
	m.log.WithField("relations", len(changes)).Debug("outermost transaction committed")
	return nil
}
