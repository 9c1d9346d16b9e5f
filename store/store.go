// Package store provides the backing store adapter from spec.md §4.2: the
// contract the catalog uses to persist catalog entries, constraint and key
// metadata, and relation contents through a row-oriented embedded
// database, while the authoritative copy of everything lives in memory.
//
// The interface is deliberately narrow and row-oriented — no SQL surface is
// exposed upward, matching spec.md's requirement directly.
package store

import "context"

// Row is one stored relation row: a generated row identifier plus its
// column values, encoded by EncodeRow.
type Row struct {
	RID     string
	Columns map[string][]byte
}

// Store is the contract spec.md §4.2 describes. A single *badger.DB-backed
// implementation (BadgerStore) is provided; the interface exists so the
// catalog and transaction manager never depend on badger directly.
type Store interface {
	// Open is idempotent and creates the metadata keyspace if absent.
	Open(ctx context.Context) error

	// CreateRel creates the on-disk keyspace for a relation with the given
	// column names.
	CreateRel(ctx context.Context, name string, columns []string) error

	// DropRel removes a relation's on-disk keyspace entirely.
	DropRel(ctx context.Context, name string) error

	// BulkReplace atomically replaces every row of a relation.
	BulkReplace(ctx context.Context, name string, rows []Row) error

	// InsertRows adds the given rows to a relation's keyspace.
	InsertRows(ctx context.Context, name string, rows []Row) error

	// DeleteRows removes the given row identifiers from a relation.
	DeleteRows(ctx context.Context, name string, rids []string) error

	// SaveMeta persists an opaque metadata blob (header, constraint source,
	// key attribute list) under key.
	SaveMeta(ctx context.Context, key string, value []byte) error

	// LoadMeta retrieves a metadata blob previously saved under key.
	// Returns ErrMetaNotFound if key has no value.
	LoadMeta(ctx context.Context, key string) ([]byte, error)

	// DeleteMeta removes a metadata blob.
	DeleteMeta(ctx context.Context, key string) error

	// ListMeta returns every metadata key with the given prefix, along with
	// its value, for catalog reconstruction on open.
	ListMeta(ctx context.Context, prefix string) (map[string][]byte, error)

	// ListRows returns every row currently stored for a relation, for
	// catalog reconstruction on open.
	ListRows(ctx context.Context, name string) ([]Row, error)

	// Begin starts a single-writer store-level transaction; all writes made
	// through the returned handle are invisible until Commit.
	Begin(ctx context.Context) (Tx, error)

	// Close flushes and releases the store.
	Close(ctx context.Context) error
}

// Tx is a single store-level transaction, spanning possibly many
// relations' worth of writes — the unit that txn.Manager flushes an
// outermost committed frame through.
type Tx interface {
	CreateRel(name string, columns []string) error
	DropRel(name string) error
	BulkReplace(name string, rows []Row) error
	InsertRows(name string, rows []Row) error
	DeleteRows(name string, rids []string) error
	SaveMeta(key string, value []byte) error
	DeleteMeta(key string) error

	Commit() error
	Rollback()
}
