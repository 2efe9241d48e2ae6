package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPaths(t *testing.T) {
	tests := []struct {
		path string
		doc  bool
		coll bool
	}{
		{"owner/u1/trades", false, true},
		{"owner/u1/trades/t1", true, false},
		{"owner", false, true},
		{"", false, false},
		{"owner//trades", false, false},
		{"owner/u1/../x", false, false},
	}
	for _, tt := range tests {
		if got := IsDocPath(tt.path); got != tt.doc {
			t.Errorf("IsDocPath(%q) = %v, want %v", tt.path, got, tt.doc)
		}
		if got := IsCollectionPath(tt.path); got != tt.coll {
			t.Errorf("IsCollectionPath(%q) = %v, want %v", tt.path, got, tt.coll)
		}
	}

	if got := Parent("owner/u1/trades/t1"); got != "owner/u1/trades" {
		t.Errorf("Parent = %q", got)
	}
	if got := Base("owner/u1/trades/t1"); got != "t1" {
		t.Errorf("Base = %q", got)
	}
	if got := Join("owner", "u1", "tags"); got != "owner/u1/tags" {
		t.Errorf("Join = %q", got)
	}
}

func TestSortDocuments(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []Document{
		{Path: "c/a", Seq: 1, Data: Doc{"createdAt": t0}},
		{Path: "c/b", Seq: 2, Data: Doc{"createdAt": t0.Add(time.Hour)}},
		{Path: "c/c", Seq: 3, Data: Doc{}},
		{Path: "c/d", Seq: 4, Data: Doc{"createdAt": t0}},
	}

	SortDocuments(docs, Query{Collection: "c", OrderBy: "createdAt", Descending: true})

	var got []string
	for _, d := range docs {
		got = append(got, Base(d.Path))
	}
	want := "[b a d c]"
	if fmt.Sprint(got) != want {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestCompareValuesMixedTypes(t *testing.T) {
	if CompareValues(nil, 1.0) >= 0 {
		t.Error("null should sort before numbers")
	}
	if CompareValues(int64(2), 1.5) <= 0 {
		t.Error("int64(2) should sort after 1.5")
	}
	if CompareValues("a", time.Now()) <= 0 {
		t.Error("strings should sort after timestamps")
	}
}

func TestErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("database is locked")
	err := fmt.Errorf("save: %w", NewError("set", "owner/u1/trades/t1", CodeUnavailable, cause))

	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected error to match ErrUnavailable")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("error should not match ErrNotFound")
	}
	if !errors.Is(err, cause) {
		t.Error("expected error to wrap its cause")
	}
	if !IsTransient(err) {
		t.Error("expected unavailable error to be transient")
	}
	if IsTransient(NewError("update", "c/d", CodeNotFound, nil)) {
		t.Error("not found should not be transient")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Error("deadline should be transient")
	}
}

func TestBatchCommit(t *testing.T) {
	var committed []Write
	b := NewBatch(func(_ context.Context, writes []Write) error {
		committed = writes
		return nil
	})

	if err := b.Commit(context.Background()); err != nil {
		t.Fatalf("empty Commit failed: %v", err)
	}
	if committed != nil {
		t.Fatal("empty batch should not reach the store")
	}

	b.Set("c/1", Doc{"a": 1}, MergeAll).Update("c/2", Doc{"b": 2}).Delete("c/3")
	if err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(committed) != 3 || !committed[0].Merge || committed[2].Op != OpDelete {
		t.Errorf("unexpected writes: %+v", committed)
	}
}

func TestBatchLimits(t *testing.T) {
	b := NewBatch(func(context.Context, []Write) error { return nil })
	for i := 0; i <= MaxBatchSize; i++ {
		b.Delete(fmt.Sprintf("c/%d", i))
	}
	if err := b.Commit(context.Background()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for oversized batch, got %v", err)
	}

	b = NewBatch(func(context.Context, []Write) error { return nil })
	b.Set("owner/u1/trades", Doc{})
	if err := b.Commit(context.Background()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for collection path, got %v", err)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	cancelled := 0
	sub := NewSubscription(func() { cancelled++ })
	if !sub.Active() {
		t.Fatal("new subscription should be active")
	}

	sub.Cancel()
	sub.Cancel()
	if sub.Active() {
		t.Error("cancelled subscription should not be active")
	}

	sub.Finish(errors.New("late failure"))
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed after Finish")
	}
	if sub.Err() != nil {
		t.Errorf("cancelled subscription should report nil error, got %v", sub.Err())
	}

	failed := NewSubscription(nil)
	failed.Finish(ErrUnavailable)
	if !errors.Is(failed.Err(), ErrUnavailable) {
		t.Errorf("Err() = %v, want ErrUnavailable", failed.Err())
	}
}
