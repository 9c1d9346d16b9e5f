package dinsd

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bitdancer/dinsd/catalog"
	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/store"
)

func openTestDB(t *testing.T) (*DB, context.Context) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	db, err := Open(ctx, Options{Store: st})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close(ctx) })
	return db, ctx
}

func isCalledHeader() rel.Header {
	return rel.Header{"sid": rel.StringType, "name": rel.StringType}
}

func calledRow(sid, name string) rel.Row {
	return rel.Row{"sid": rel.String(sid), "name": rel.String(name)}
}

func examMarksHeader() rel.Header {
	return rel.Header{"student": rel.StringType, "course": rel.StringType, "mark": rel.IntType}
}

func examRow(student, course string, mark int64) rel.Row {
	return rel.Row{"student": rel.String(student), "course": rel.String(course), "mark": rel.Int(mark)}
}

func isEnrolledHeader() rel.Header {
	return rel.Header{"student": rel.StringType, "course": rel.StringType}
}

func enrolledRow(student, course string) rel.Row {
	return rel.Row{"student": rel.String(student), "course": rel.String(course)}
}

// TestCreateAndPersist mirrors spec.md S1: a freshly opened database gets
// a relation set from a 5-row literal value; closing and reopening it
// against the same backing store yields the same 5 rows back.
func TestCreateAndPersist(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := store.Open(ctx, store.Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}

	db, err := Open(ctx, Options{Store: st})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Create(ctx, "is_called", isCalledHeader()); err != nil {
		t.Fatalf("create: %v", err)
	}
	h, err := db.Get("is_called")
	if err != nil {
		t.Fatal(err)
	}
	input, err := rel.FromRows(isCalledHeader(), []rel.Row{
		calledRow("S1", "Anne"),
		calledRow("S2", "Boris"),
		calledRow("S3", "Cindy"),
		calledRow("S4", "Devinder"),
		calledRow("S5", "Boris"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Assign(ctx, input); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if err := db.Close(ctx); err != nil {
		t.Fatal(err)
	}

	// Reopen a fresh store handle against the same on-disk directory,
	// exercising bootstrap.go's loadCatalog exactly as a real process
	// restart would.
	st2, err := store.Open(ctx, store.Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	db2, err := Open(ctx, Options{Store: st2})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close(ctx)

	h2, err := db2.Get("is_called")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	got, err := h2.Value()
	if err != nil {
		t.Fatal(err)
	}
	// rel.Relation implements Equal, so cmp uses it instead of comparing
	// the type's unexported fields directly.
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("reopened relation differs from the original (-want +got):\n%s", diff)
	}
}

// TestTransactionCommitsThreeRelations mirrors spec.md S4: inside one
// transaction, inserting into three different relations all becomes
// visible together once the transaction commits. Survival across a
// close/reopen is checked by TestCreateAndPersist, not here.
func TestTransactionCommitsThreeRelations(t *testing.T) {
	db, ctx := openTestDB(t)
	if err := db.Create(ctx, "exam_marks", examMarksHeader()); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(ctx, "is_called", isCalledHeader()); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(ctx, "is_enrolled_on", isEnrolledHeader()); err != nil {
		t.Fatal(err)
	}

	err := db.TransactionContext(ctx, func(tx *Tx) error {
		marks, err := tx.Get("exam_marks")
		if err != nil {
			return err
		}
		if err := marks.Insert(ctx, examRow("S9", "C3", 87)); err != nil {
			return err
		}
		called, err := tx.Get("is_called")
		if err != nil {
			return err
		}
		if err := called.Insert(ctx, calledRow("S9", "Foo")); err != nil {
			return err
		}
		enrolled, err := tx.Get("is_enrolled_on")
		if err != nil {
			return err
		}
		return enrolled.Insert(ctx, enrolledRow("S9", "C3"))
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	for name, want := range map[string]int{"exam_marks": 1, "is_called": 1, "is_enrolled_on": 1} {
		h, err := db.Get(name)
		if err != nil {
			t.Fatal(err)
		}
		v, err := h.Value()
		if err != nil {
			t.Fatal(err)
		}
		if v.Len() != want {
			t.Fatalf("%s: want %d rows after commit, got %d", name, want, v.Len())
		}
	}
}

// TestTransactionRollsBackOnError mirrors spec.md S5: a non-Rollback error
// returned from the transaction body surfaces to the caller, and none of
// the inserts it made persist.
func TestTransactionRollsBackOnError(t *testing.T) {
	db, ctx := openTestDB(t)
	if err := db.Create(ctx, "is_called", isCalledHeader()); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := db.TransactionContext(ctx, func(tx *Tx) error {
		called, err := tx.Get("is_called")
		if err != nil {
			return err
		}
		if err := called.Insert(ctx, calledRow("S8", "Foo")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want the transaction's own error to surface, got %v", err)
	}

	h, err := db.Get("is_called")
	if err != nil {
		t.Fatal(err)
	}
	v, err := h.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 0 {
		t.Fatalf("want no rows persisted after a rolled-back transaction, got %v", v.Rows())
	}
}

// TestExplicitRollbackSignalDoesNotPropagate mirrors spec.md S8's shape at
// the single-frame level: returning ErrRollback discards the frame's own
// changes but Transaction itself reports success, not an error.
func TestExplicitRollbackSignalDoesNotPropagate(t *testing.T) {
	db, ctx := openTestDB(t)
	if err := db.Create(ctx, "exam_marks", examMarksHeader()); err != nil {
		t.Fatal(err)
	}

	err := db.TransactionContext(ctx, func(tx *Tx) error {
		marks, err := tx.Get("exam_marks")
		if err != nil {
			return err
		}
		if err := marks.Insert(ctx, examRow("S7", "C3", 87)); err != nil {
			return err
		}
		return ErrRollback
	})
	if err != nil {
		t.Fatalf("want an explicit Rollback signal to report success, got %v", err)
	}

	h, err := db.Get("exam_marks")
	if err != nil {
		t.Fatal(err)
	}
	v, err := h.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 0 {
		t.Fatalf("want no rows persisted: the only insert was in the rolled-back frame, got %v", v.Rows())
	}
}

// TestNestedRollbackDoesNotTouchOuter mirrors spec.md S8 in full: the outer
// frame inserts into is_called, a nested frame inserts into exam_marks and
// then signals Rollback, the outer inserts into is_enrolled_on and
// commits. Only the outer's two inserts survive.
func TestNestedRollbackDoesNotTouchOuter(t *testing.T) {
	db, ctx := openTestDB(t)
	if err := db.Create(ctx, "is_called", isCalledHeader()); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(ctx, "exam_marks", examMarksHeader()); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(ctx, "is_enrolled_on", isEnrolledHeader()); err != nil {
		t.Fatal(err)
	}

	err := db.TransactionContext(ctx, func(tx *Tx) error {
		called, err := tx.Get("is_called")
		if err != nil {
			return err
		}
		if err := called.Insert(ctx, calledRow("S7", "Foo")); err != nil {
			return err
		}

		err = tx.TransactionContext(ctx, func(inner *Tx) error {
			marks, err := inner.Get("exam_marks")
			if err != nil {
				return err
			}
			if err := marks.Insert(ctx, examRow("S7", "C3", 87)); err != nil {
				return err
			}
			return ErrRollback
		})
		if err != nil {
			return err
		}

		enrolled, err := tx.Get("is_enrolled_on")
		if err != nil {
			return err
		}
		return enrolled.Insert(ctx, enrolledRow("S7", "C3"))
	})
	if err != nil {
		t.Fatalf("outer transaction: %v", err)
	}

	called, err := db.Get("is_called")
	if err != nil {
		t.Fatal(err)
	}
	calledV, err := called.Value()
	if err != nil {
		t.Fatal(err)
	}
	if !calledV.Has(calledRow("S7", "Foo")) {
		t.Fatalf("want is_called to contain Foo/S7, got %v", calledV.Rows())
	}

	enrolled, err := db.Get("is_enrolled_on")
	if err != nil {
		t.Fatal(err)
	}
	enrolledV, err := enrolled.Value()
	if err != nil {
		t.Fatal(err)
	}
	if !enrolledV.Has(enrolledRow("S7", "C3")) {
		t.Fatalf("want is_enrolled_on to contain S7/C3, got %v", enrolledV.Rows())
	}

	marks, err := db.Get("exam_marks")
	if err != nil {
		t.Fatal(err)
	}
	marksV, err := marks.Value()
	if err != nil {
		t.Fatal(err)
	}
	if marksV.Has(examRow("S7", "C3", 87)) {
		t.Fatal("want exam_marks to NOT contain the S7/C3 row: its insert was in the rolled-back inner frame")
	}
}

func TestDisconnectedAfterClose(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	db, err := Open(ctx, Options{Store: st})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Create(ctx, "x", rel.Header{"a": rel.StringType}); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(ctx); err != nil {
		t.Fatal(err)
	}

	_, err = db.Get("x")
	if cerr, ok := err.(*catalog.Error); !ok || cerr.Code != catalog.DisconnectedErr {
		t.Fatalf("want DisconnectedErr after Close, got %v", err)
	}

	if err := db.Create(ctx, "y", rel.Header{"a": rel.StringType}); err == nil {
		t.Fatal("want Create on a closed database to fail")
	} else if cerr, ok := err.(*catalog.Error); !ok || cerr.Code != catalog.DisconnectedErr {
		t.Fatalf("want DisconnectedErr, got %v", err)
	}
}

func TestListRelationsAndStats(t *testing.T) {
	db, ctx := openTestDB(t)
	if err := db.Create(ctx, "a", rel.Header{"x": rel.IntType}); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(ctx, "b", rel.Header{"y": rel.StringType}); err != nil {
		t.Fatal(err)
	}
	rels := db.ListRelations()
	if len(rels) != 2 {
		t.Fatalf("want 2 relations listed, got %d", len(rels))
	}
	if db.Stats().Relations != 2 {
		t.Fatalf("want Stats().Relations == 2, got %d", db.Stats().Relations)
	}

	if err := db.Drop(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if db.Stats().Relations != 1 {
		t.Fatalf("want Stats().Relations == 1 after drop, got %d", db.Stats().Relations)
	}
}
