// Package dinsd is an embedded relational database engine: persistent,
// named relation values governed by declared keys and row constraints,
// mutated only through nested, single-writer transactions.
//
// A DB owns one backing store and one catalog of persistent relations. A
// Tx is the explicit client handle spec.md §9 offers as an alternative to
// thread-local transaction state: nesting falls out of Go's own call
// stack, with DB.Transaction opening the outermost frame and (*Tx).Transaction
// opening a nested one.
package dinsd

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bitdancer/dinsd/catalog"
	"github.com/bitdancer/dinsd/logging"
	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/store"
	"github.com/bitdancer/dinsd/txn"
)

// DB is an open database: one backing store, one catalog, and the
// transaction manager that arbitrates commits between them.
type DB struct {
	store      store.Store
	cat        *catalog.Catalog
	mgr        *txn.Manager
	ns         *rel.Namespace
	log        *logging.Logger
	traceCh    <-chan string
	traceClose func()
	closed     atomic.Bool
}

// Stats summarizes a database's current state, spec.md §4.7's facade-level
// observability accessor.
type Stats struct {
	// Relations is the number of persistent relations currently declared.
	Relations int
}

// Options configures Open.
type Options struct {
	// Store is the backing store to open the database against. Required.
	Store store.Store

	// Namespace is the expression namespace predicates and update
	// expressions evaluate against. Defaults to a fresh, empty namespace
	// (not rel.DefaultNamespace — see SPEC_FULL.md on per-database
	// namespace isolation).
	Namespace *rel.Namespace

	// Logger receives structured trace/debug output from the store and
	// transaction layers. Defaults to a logger at Info level.
	Logger *logging.Logger
}

// Open reconstructs a DB's catalog from opts.Store's persisted metadata and
// rows, spec.md §4.6's "on open, the engine loads every relation's header,
// key, constraints and current rows from the backing store."
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Namespace == nil {
		opts.Namespace = rel.NewNamespace()
	}
	log := opts.Logger
	if log == nil {
		log = logging.New()
	}

	id := uuid.NewString()
	log = log.WithField("db", id)

	if err := opts.Store.Open(ctx); err != nil {
		return nil, err
	}

	cat := catalog.New(opts.Namespace)
	db := &DB{store: opts.Store, cat: cat, ns: opts.Namespace, log: log}
	db.traceCh, db.traceClose = log.Subscribe()

	if err := loadCatalog(ctx, opts.Store, cat, opts.Namespace); err != nil {
		return nil, err
	}

	db.mgr = txn.NewManager(cat, cat, opts.Store, log)
	cat.Bind(db.mgr)

	log.Info("database opened")
	return db, nil
}

// Close releases the backing store. After Close, Get, Create, Drop,
// Transaction, TransactionContext and a second Close fail with a
// disconnected error. ListRelations, Stats, Namespace and RegisterMetrics
// do not check for a closed database. Handles obtained before Close are not
// invalidated: they still read the last committed state, and a mutation
// through one fails with commit-failed because the store is closed.
func (db *DB) Close(ctx context.Context) error {
	if !db.closed.CompareAndSwap(false, true) {
		return catalog.Disconnected()
	}
	db.log.Info("database closed")
	db.traceClose()
	return db.store.Close(ctx)
}

// Trace returns a channel of structured trace lines emitted by the store
// and transaction layers for every statement they execute, spec.md §4.2's
// optional trace stream. The channel is closed when db is closed.
func (db *DB) Trace() <-chan string {
	return db.traceCh
}

// Stats reports a snapshot of the database's current state.
func (db *DB) Stats() Stats {
	return Stats{Relations: len(db.cat.List())}
}

// metricsRegisterer is implemented by store.Store backends (BadgerStore)
// that expose prometheus collectors; checked via type assertion so
// store.Store itself stays free of a prometheus dependency.
type metricsRegisterer interface {
	RegisterMetrics(reg prometheus.Registerer) error
}

// RegisterMetrics exposes the backing store's prometheus collectors on reg,
// for embedding callers that want them on their own /metrics endpoint. It
// is a no-op if the store backend doesn't expose metrics.
func (db *DB) RegisterMetrics(reg prometheus.Registerer) error {
	mr, ok := db.store.(metricsRegisterer)
	if !ok {
		return nil
	}
	return mr.RegisterMetrics(reg)
}

// ListRelations returns every persistent relation's name and declared
// header, spec.md §6's list_relations().
func (db *DB) ListRelations() map[string]rel.Header {
	return db.cat.List()
}

// Namespace returns the database's expression namespace, for registering
// user-defined domain types and functions (spec.md §3, §4.4).
func (db *DB) Namespace() *rel.Namespace {
	return db.ns
}

// Get returns a handle to the named persistent relation, operating outside
// any transaction: every call auto-wraps in its own implicit
// single-statement transaction.
func (db *DB) Get(name string) (*catalog.Handle, error) {
	if db.closed.Load() {
		return nil, catalog.Disconnected()
	}
	return db.cat.Get(name, nil)
}

// Create declares a new persistent relation, spec.md §4.3, inside its own
// implicit single-statement transaction.
func (db *DB) Create(ctx context.Context, name string, header rel.Header) error {
	return db.runMutate(ctx, func(f *txn.Frame) error {
		return db.cat.Create(f, name, header)
	})
}

// Drop removes a persistent relation entirely, spec.md §4.3, inside its own
// implicit single-statement transaction.
func (db *DB) Drop(ctx context.Context, name string) error {
	return db.runMutate(ctx, func(f *txn.Frame) error {
		return db.cat.Drop(f, name)
	})
}

// runMutate opens and finishes an implicit single-statement transaction
// around fn, spec.md §4.5's "if no transaction is open, the operation runs
// inside an implicit single-statement transaction that commits on success
// and rolls back on failure."
func (db *DB) runMutate(ctx context.Context, fn func(*txn.Frame) error) error {
	if db.closed.Load() {
		return catalog.Disconnected()
	}
	f := db.mgr.Begin(nil)
	err := fn(f)
	if ferr := catalog.WrapFinishErr(db.mgr.Finish(ctx, f, err == nil)); ferr != nil {
		return ferr
	}
	return err
}
