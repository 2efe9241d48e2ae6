package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

const waitTimeout = 5 * time.Second

// nextQuery waits for the next snapshot on ch.
func nextQuery(t *testing.T, ch <-chan docstore.QuerySnapshot) docstore.QuerySnapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for snapshot")
		return docstore.QuerySnapshot{}
	}
}

func TestWatchQuery_InitialAndChanges(t *testing.T) {
	store := openTestStore(t, commitTime)
	ctx := context.Background()

	if err := store.Set(ctx, "owner/u1/trades/t1", docstore.Doc{"symbol": "EURUSD"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	ch := make(chan docstore.QuerySnapshot, 10)
	sub, err := store.WatchQuery(ctx, docstore.Query{Collection: "owner/u1/trades"}, func(s docstore.QuerySnapshot) {
		ch <- s
	})
	if err != nil {
		t.Fatalf("WatchQuery() failed: %v", err)
	}
	defer sub.Cancel()

	snap := nextQuery(t, ch)
	if len(snap.Docs) != 1 || snap.Metadata.HasPendingWrites || snap.Metadata.FromCache {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	if err := store.Set(ctx, "owner/u1/trades/t2", docstore.Doc{"symbol": "GBPUSD"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if snap = nextQuery(t, ch); len(snap.Docs) != 2 {
		t.Fatalf("got %d documents after insert, want 2", len(snap.Docs))
	}

	if err := store.Delete(ctx, "owner/u1/trades/t1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if snap = nextQuery(t, ch); len(snap.Docs) != 1 || snap.Docs[0].ID != "t2" {
		t.Fatalf("unexpected snapshot after delete: %+v", snap.Docs)
	}
}

func TestWatchQuery_IgnoresOtherCollections(t *testing.T) {
	store := openTestStore(t, commitTime)
	ctx := context.Background()

	ch := make(chan docstore.QuerySnapshot, 10)
	sub, err := store.WatchQuery(ctx, docstore.Query{Collection: "owner/u1/tags"}, func(s docstore.QuerySnapshot) {
		ch <- s
	})
	if err != nil {
		t.Fatalf("WatchQuery() failed: %v", err)
	}
	defer sub.Cancel()
	nextQuery(t, ch)

	if err := store.Set(ctx, "owner/u2/tags/x", docstore.Doc{"label": "other owner"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := store.Set(ctx, "owner/u1/tags/y", docstore.Doc{"label": "mine"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	snap := nextQuery(t, ch)
	if len(snap.Docs) != 1 || snap.Docs[0].ID != "y" {
		t.Fatalf("unexpected snapshot: %+v", snap.Docs)
	}
}

func TestWatchDoc(t *testing.T) {
	store := openTestStore(t, commitTime)
	ctx := context.Background()
	path := "owner/u1/settings/default"

	ch := make(chan docstore.DocSnapshot, 10)
	sub, err := store.WatchDoc(ctx, path, func(s docstore.DocSnapshot) { ch <- s })
	if err != nil {
		t.Fatalf("WatchDoc() failed: %v", err)
	}
	defer sub.Cancel()

	next := func() docstore.DocSnapshot {
		t.Helper()
		select {
		case s := <-ch:
			return s
		case <-time.After(waitTimeout):
			t.Fatal("timed out waiting for document snapshot")
			return docstore.DocSnapshot{}
		}
	}

	if snap := next(); snap.Exists() {
		t.Fatalf("expected absent document, got %+v", snap.Doc)
	}

	if err := store.Set(ctx, path, docstore.Doc{"theme": "dark"}, docstore.MergeAll); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	snap := next()
	if !snap.Exists() || snap.Doc.Data["theme"] != "dark" {
		t.Fatalf("unexpected snapshot: %+v", snap.Doc)
	}
}

func TestWatch_CancelStopsDelivery(t *testing.T) {
	store := openTestStore(t, commitTime)
	ctx := context.Background()

	ch := make(chan docstore.QuerySnapshot, 10)
	sub, err := store.WatchQuery(ctx, docstore.Query{Collection: "owner/u1/trades"}, func(s docstore.QuerySnapshot) {
		ch <- s
	})
	if err != nil {
		t.Fatalf("WatchQuery() failed: %v", err)
	}
	nextQuery(t, ch)

	sub.Cancel()
	select {
	case <-sub.Done():
	case <-time.After(waitTimeout):
		t.Fatal("subscription did not stop")
	}
	if sub.Err() != nil {
		t.Errorf("Err() = %v, want nil after Cancel", sub.Err())
	}
	if n := store.hub.count(); n != 0 {
		t.Errorf("hub still has %d clients", n)
	}

	if err := store.Set(ctx, "owner/u1/trades/t1", docstore.Doc{"symbol": "EURUSD"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	select {
	case s := <-ch:
		t.Fatalf("received snapshot after Cancel: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_CrossProcessChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open() reader failed: %v", err)
	}
	defer reader.Close()
	writer, err := Open(path)
	if err != nil {
		t.Fatalf("Open() writer failed: %v", err)
	}
	defer writer.Close()

	ctx := context.Background()
	ch := make(chan docstore.QuerySnapshot, 10)
	sub, err := reader.WatchQuery(ctx, docstore.Query{Collection: "owner/u1/accounts"}, func(s docstore.QuerySnapshot) {
		ch <- s
	})
	if err != nil {
		t.Fatalf("WatchQuery() failed: %v", err)
	}
	defer sub.Cancel()
	nextQuery(t, ch)

	if err := writer.Set(ctx, "owner/u1/accounts/a1", docstore.Doc{"label": "Main"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if snap := nextQuery(t, ch); len(snap.Docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(snap.Docs))
	}
}

func TestWatch_CloseEndsSubscription(t *testing.T) {
	config := DefaultConfig()
	store, err := OpenWithConfig(filepath.Join(t.TempDir(), "journal.db"), config)
	if err != nil {
		t.Fatalf("OpenWithConfig() failed: %v", err)
	}

	sub, err := store.WatchQuery(context.Background(), docstore.Query{Collection: "owner/u1/trades"}, func(docstore.QuerySnapshot) {})
	if err != nil {
		t.Fatalf("WatchQuery() failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	select {
	case <-sub.Done():
	case <-time.After(waitTimeout):
		t.Fatal("subscription still running after Close")
	}

	if _, err := store.WatchQuery(context.Background(), docstore.Query{Collection: "owner/u1/trades"}, func(docstore.QuerySnapshot) {}); err == nil {
		t.Error("WatchQuery() on closed store succeeded")
	}
}
