package store

import (
	"context"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) (*BadgerStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	st, err := Open(ctx, Options{InMemory: true})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close(ctx) })
	return st, ctx
}

func TestBulkReplaceAndListRows(t *testing.T) {
	st, ctx := openTestStore(t)
	if err := st.CreateRel(ctx, "exam_marks", []string{"student", "course", "mark"}); err != nil {
		t.Fatal(err)
	}
	rows := []Row{
		{RID: "1", Columns: map[string][]byte{"student": []byte(`{"tag":"string","val":"S1"}`)}},
	}
	if err := st.BulkReplace(ctx, "exam_marks", rows); err != nil {
		t.Fatal(err)
	}
	got, err := st.ListRows(ctx, "exam_marks")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RID != "1" {
		t.Fatalf("want 1 row with rid 1, got %v", got)
	}

	// a second BulkReplace must wholly replace the first, not merge with it.
	if err := st.BulkReplace(ctx, "exam_marks", nil); err != nil {
		t.Fatal(err)
	}
	got, err = st.ListRows(ctx, "exam_marks")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("want 0 rows after replacing with an empty set, got %d", len(got))
	}
}

func TestMetaSaveLoadDeleteList(t *testing.T) {
	st, ctx := openTestStore(t)
	if err := st.SaveMeta(ctx, "meta/relations/exam_marks", []byte("header-blob")); err != nil {
		t.Fatal(err)
	}
	got, err := st.LoadMeta(ctx, "meta/relations/exam_marks")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "header-blob" {
		t.Fatalf("want %q, got %q", "header-blob", got)
	}

	all, err := st.ListMeta(ctx, "meta/relations/")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("want 1 meta entry under prefix, got %d", len(all))
	}

	if err := st.DeleteMeta(ctx, "meta/relations/exam_marks"); err != nil {
		t.Fatal(err)
	}
	_, err = st.LoadMeta(ctx, "meta/relations/exam_marks")
	if !errors.Is(err, ErrMetaNotFound) {
		t.Fatalf("want ErrMetaNotFound after delete, got %v", err)
	}
}

func TestDropRelRemovesAllRows(t *testing.T) {
	st, ctx := openTestStore(t)
	if err := st.CreateRel(ctx, "r", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := st.InsertRows(ctx, "r", []Row{
		{RID: "1", Columns: map[string][]byte{"a": []byte("x")}},
		{RID: "2", Columns: map[string][]byte{"a": []byte("y")}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.DropRel(ctx, "r"); err != nil {
		t.Fatal(err)
	}
	rows, err := st.ListRows(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("want 0 rows after DropRel, got %d", len(rows))
	}
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	st, ctx := openTestStore(t)
	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.SaveMeta("meta/keys/exam_marks", []byte(`["student"]`)); err != nil {
		t.Fatal(err)
	}
	tx.Rollback()

	_, err = st.LoadMeta(ctx, "meta/keys/exam_marks")
	if !errors.Is(err, ErrMetaNotFound) {
		t.Fatalf("want discarded write to leave no trace, got err=%v", err)
	}
}

func TestBeginAfterCloseFails(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Begin(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed beginning a transaction on a closed store, got %v", err)
	}
}
