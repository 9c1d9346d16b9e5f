package dinsd

import (
	"context"
	"errors"

	"github.com/bitdancer/dinsd/catalog"
	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/txn"
)

// ErrRollback is the distinguished signal a transaction body returns to
// request an explicit rollback, spec.md §4.6: returning ErrRollback (or
// anything that errors.Is against it) discards the current frame's changes
// without propagating failure to the enclosing scope — the "explicit inner
// Rollback does not touch the outer transaction" law. Any other non-nil
// error also rolls back the current frame, but keeps propagating upward,
// which is what makes an inner failure unwind the entire nesting.
var ErrRollback = errors.New("dinsd: rollback")

// Tx is the explicit client handle for one open transaction frame, spec.md
// §4.6/§9. It is only ever received as the parameter to a function passed
// to DB.Transaction or (*Tx).Transaction; a Tx used outside the dynamic
// extent of that call is not meaningful.
type Tx struct {
	db    *DB
	frame *txn.Frame
}

// Get returns a handle to the named persistent relation as seen through
// tx's frame: reads see tx's own uncommitted writes and those of every
// enclosing transaction; writes land in tx's frame and become visible to
// the parent only when tx commits.
func (tx *Tx) Get(name string) (*catalog.Handle, error) {
	return tx.db.cat.Get(name, tx.frame)
}

// Create declares a new persistent relation within tx's frame.
func (tx *Tx) Create(name string, header rel.Header) error {
	return tx.db.cat.Create(tx.frame, name, header)
}

// Drop removes a persistent relation within tx's frame.
func (tx *Tx) Drop(name string) error {
	return tx.db.cat.Drop(tx.frame, name)
}

// Names returns every relation name written so far in tx's own frame chain
// (not the whole catalog). Relation names are not added to the expression
// namespace that predicates and update expressions are compiled against.
func (tx *Tx) Names() []string {
	return tx.frame.Names()
}

// Transaction opens a nested transaction frame as a child of tx's own
// frame. See DB.Transaction for the commit/rollback rules; nesting simply
// means the child's changes, on commit, become visible through tx's frame
// rather than being flushed straight to the store.
func (tx *Tx) Transaction(fn func(*Tx) error) error {
	return tx.db.transaction(context.Background(), tx.frame, fn)
}

// TransactionContext is Transaction with an explicit context, threaded
// through to the backing store if this happens to be the outermost frame.
func (tx *Tx) TransactionContext(ctx context.Context, fn func(*Tx) error) error {
	return tx.db.transaction(ctx, tx.frame, fn)
}

// Transaction opens a new outermost transaction and runs fn against it.
//
// If fn returns nil, the frame commits: if it has no parent (it doesn't,
// here — this is the outermost entry point), every relation it touched is
// flushed atomically to the backing store and only then becomes the
// catalog's new committed state.
//
// If fn returns ErrRollback, the frame's changes are discarded and
// Transaction itself returns nil — an explicit rollback is not a failure.
//
// If fn returns any other error, the frame's changes are still discarded,
// but the error propagates to the caller, the same as any other Go
// function — per spec.md §4.6, "an inner failure unwinds every frame above
// it," which for nested transactions falls directly out of fn's own error
// return reaching its enclosing (*Tx).Transaction call in turn.
func (db *DB) Transaction(fn func(*Tx) error) error {
	return db.transaction(context.Background(), nil, fn)
}

// TransactionContext is Transaction with an explicit context, threaded
// through to the backing store when the outermost frame commits.
func (db *DB) TransactionContext(ctx context.Context, fn func(*Tx) error) error {
	return db.transaction(ctx, nil, fn)
}

func (db *DB) transaction(ctx context.Context, parent *txn.Frame, fn func(*Tx) error) error {
	if parent == nil && db.closed.Load() {
		return catalog.Disconnected()
	}
	f := db.mgr.Begin(parent)
	child := &Tx{db: db, frame: f}
	err := fn(child)
	commit := err == nil
	if ferr := catalog.WrapFinishErr(db.mgr.Finish(ctx, f, commit)); ferr != nil {
		return ferr
	}
	if errors.Is(err, ErrRollback) {
		return nil
	}
	return err
}
