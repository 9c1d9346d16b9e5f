package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bitdancer/dinsd/logging"
)

// Key layout, mirroring the conceptual table layout spec.md §6 describes,
// mapped onto a single badger keyspace the way the teacher's storage/disk
// package maps a conceptual /data tree onto badger keys:
//
//	meta/relations/<name>                -> serialized header
//	meta/constraints/<name>/<cname>      -> serialized predicate source
//	meta/keys/<name>                     -> serialized key attribute tuple
//	rel/<name>/<rid>                     -> serialized row
const (
	metaRelationsPrefix   = "meta/relations/"
	metaConstraintsPrefix = "meta/constraints/"
	metaKeysPrefix        = "meta/keys/"
	relDataPrefix         = "rel/"
)

func relKey(name, rid string) string {
	return relDataPrefix + name + "/" + rid
}

func relPrefix(name string) string {
	return relDataPrefix + name + "/"
}

// RelationMetaPrefix returns the ListMeta prefix under which every
// relation's header is stored, for catalog reconstruction on open.
func RelationMetaPrefix() string { return metaRelationsPrefix }

// RelationMetaKey returns the metadata key a relation's serialized header
// is saved under.
func RelationMetaKey(name string) string { return metaRelationsPrefix + name }

// ConstraintMetaKey returns the metadata key one named row constraint's
// source text is saved under.
func ConstraintMetaKey(name, cname string) string {
	return metaConstraintsPrefix + name + "/" + cname
}

// ConstraintMetaPrefix returns the ListMeta prefix under which every row
// constraint belonging to name is stored.
func ConstraintMetaPrefix(name string) string {
	return metaConstraintsPrefix + name + "/"
}

// KeyMetaKey returns the metadata key a relation's declared key tuple is
// saved under.
func KeyMetaKey(name string) string { return metaKeysPrefix + name }

// RelationNameFromMetaKey strips the relation-header metadata prefix,
// recovering the relation name ListMeta(RelationMetaPrefix()) returned it
// for.
func RelationNameFromMetaKey(key string) string {
	return strings.TrimPrefix(key, metaRelationsPrefix)
}

// RegisterMetrics exposes the store's prometheus collectors on reg, for
// callers that want them on their own /metrics endpoint (dinsd itself has
// no HTTP surface).
func (s *BadgerStore) RegisterMetrics(reg prometheus.Registerer) error {
	return s.metric.Register(reg)
}

// Options configures a BadgerStore, mirroring the teacher's
// storage/disk.Options (directory plus engine tuning), minus the
// data-partitioning scheme the teacher needs and dinsd's fixed row-table
// layout does not.
type Options struct {
	// Dir is the directory badger persists its files under.
	Dir string
	// InMemory runs badger with no on-disk footprint, for tests and S1-style
	// fresh in-process databases.
	InMemory bool
	// Logger receives structured trace output for every statement the
	// adapter emits, per spec.md §4.2's optional trace-stream requirement.
	Logger *logging.Logger
}

// BadgerStore is the Store implementation backing dinsd.DB, wrapping
// github.com/dgraph-io/badger/v4 exactly as the teacher's storage/disk
// package wraps badger/v3: an embedded, ordered key-value store accessed
// only through single-writer transactions.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.Mutex // serializes Begin; badger already serializes writers
	log    *logging.Logger
	metric *metrics
	closed bool
}

// Open creates (or opens) a BadgerStore at the configured location.
func Open(ctx context.Context, opts Options) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil).WithDetectConflicts(false)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening backing store: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logging.New()
	}

	s := &BadgerStore{
		db:     db,
		log:    log,
		metric: newMetrics(),
	}
	if err := s.Open(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open is idempotent; badger.Open already created the on-disk structures,
// so this only logs, matching the teacher's documented contract that
// "open(URI) ... idempotent; creates a meta table if absent."
func (s *BadgerStore) Open(context.Context) error {
	s.log.WithField("component", "store").Debug("store opened")
	return nil
}

func (s *BadgerStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BadgerStore) CreateRel(ctx context.Context, name string, columns []string) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.CreateRel(name, columns); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *BadgerStore) DropRel(ctx context.Context, name string) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.DropRel(name); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *BadgerStore) BulkReplace(ctx context.Context, name string, rows []Row) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.BulkReplace(name, rows); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *BadgerStore) InsertRows(ctx context.Context, name string, rows []Row) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.InsertRows(name, rows); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *BadgerStore) DeleteRows(ctx context.Context, name string, rids []string) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.DeleteRows(name, rids); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *BadgerStore) SaveMeta(ctx context.Context, key string, value []byte) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.SaveMeta(key, value); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *BadgerStore) DeleteMeta(ctx context.Context, key string) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.DeleteMeta(key); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *BadgerStore) LoadMeta(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return ErrMetaNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	return value, err
}

func (s *BadgerStore) ListMeta(_ context.Context, prefix string) (map[string][]byte, error) {
	out := map[string][]byte{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		bprefix := []byte(prefix)
		for it.Seek(bprefix); it.ValidForPrefix(bprefix); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				out[key] = append([]byte(nil), v...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) ListRows(_ context.Context, name string) ([]Row, error) {
	var rows []Row
	prefix := []byte(relPrefix(name))
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			rid := strings.TrimPrefix(string(item.KeyCopy(nil)), string(prefix))
			var cols map[string][]byte
			err := item.Value(func(v []byte) error {
				return decodeColumns(v, &cols)
			})
			if err != nil {
				return err
			}
			rows = append(rows, Row{RID: rid, Columns: cols})
		}
		return nil
	})
	return rows, err
}

// Begin starts a store-level transaction backed by one badger.Txn, exactly
// as the teacher's storage/disk.(*Store).NewTransaction wraps
// db.db.NewTransaction(write).
func (s *BadgerStore) Begin(context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	timer := s.metric.startTimer()
	return &badgerTx{
		underlying: s.db.NewTransaction(true),
		log:        s.log,
		metric:     s.metric,
		timer:      timer,
	}, nil
}

type badgerTx struct {
	underlying  *badger.Txn
	log         *logging.Logger
	metric      *metrics
	timer       func()
	keysWritten int
	keysDeleted int
}

func (t *badgerTx) CreateRel(name string, columns []string) error {
	// The badger keyspace is lazily populated by rows; creating a relation
	// requires no write beyond what SaveMeta(meta/relations/<name>, ...)
	// already does, mirroring the teacher's own observation that disk
	// keyspaces are implicitly created by the first write under them.
	t.log.WithField("rel", name).WithField("columns", columns).Trace("create_rel")
	return nil
}

func (t *badgerTx) DropRel(name string) error {
	t.log.WithField("rel", name).Trace("drop_rel")
	return t.deleteRange(relPrefix(name))
}

func (t *badgerTx) BulkReplace(name string, rows []Row) error {
	t.log.WithField("rel", name).WithField("rows", len(rows)).Trace("bulk_replace")
	if err := t.deleteRange(relPrefix(name)); err != nil {
		return err
	}
	return t.InsertRows(name, rows)
}

func (t *badgerTx) InsertRows(name string, rows []Row) error {
	for _, row := range rows {
		buf, err := encodeColumns(row.Columns)
		if err != nil {
			return err
		}
		if err := t.underlying.Set([]byte(relKey(name, row.RID)), buf); err != nil {
			return err
		}
		t.keysWritten++
	}
	t.log.WithField("rel", name).WithField("rows", len(rows)).Trace("insert_rows")
	return nil
}

func (t *badgerTx) DeleteRows(name string, rids []string) error {
	for _, rid := range rids {
		if err := t.underlying.Delete([]byte(relKey(name, rid))); err != nil {
			return err
		}
		t.keysDeleted++
	}
	t.log.WithField("rel", name).WithField("rows", len(rids)).Trace("delete_rows")
	return nil
}

func (t *badgerTx) SaveMeta(key string, value []byte) error {
	t.keysWritten++
	return t.underlying.Set([]byte(key), value)
}

func (t *badgerTx) DeleteMeta(key string) error {
	t.keysDeleted++
	return t.underlying.Delete([]byte(key))
}

func (t *badgerTx) deleteRange(prefix string) error {
	var keys [][]byte
	it := t.underlying.NewIterator(badger.DefaultIteratorOptions)
	bprefix := []byte(prefix)
	for it.Seek(bprefix); it.ValidForPrefix(bprefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := t.underlying.Delete(k); err != nil {
			return err
		}
		t.keysDeleted++
	}
	return nil
}

func (t *badgerTx) Commit() error {
	defer t.timer()
	err := t.underlying.Commit()
	if err != nil {
		return fmt.Errorf("commit-failed: %w", err)
	}
	t.metric.keysWritten.Observe(float64(t.keysWritten))
	t.metric.keysDeleted.Observe(float64(t.keysDeleted))
	return nil
}

func (t *badgerTx) Rollback() {
	defer t.timer()
	t.underlying.Discard()
}
