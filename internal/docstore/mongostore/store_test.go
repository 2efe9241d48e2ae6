package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

func TestBuildUpdate_Merge(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	update := buildUpdate(docstore.Doc{
		"symbol":    "EURUSD",
		"prefs":     map[string]any{"theme": "dark"},
		"notes":     docstore.DeleteField,
		"updatedAt": docstore.ServerTimestamp,
		"createdAt": docstore.DefaultServerTimestamp,
		"tags":      []string{"a"},
	}, true, now)

	want := bson.M{
		"$set": bson.M{
			"data.symbol":      "EURUSD",
			"data.prefs.theme": "dark",
			"data.tags":        []any{"a"},
		},
		"$unset":       bson.M{"data.notes": ""},
		"$currentDate": bson.M{"updateTime": true, "data.updatedAt": true},
		"$setOnInsert": bson.M{"data.createdAt": now},
	}
	if diff := cmp.Diff(want, update); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildUpdate_FieldsReplaceNestedMaps(t *testing.T) {
	update := buildUpdate(docstore.Doc{"prefs": map[string]any{"theme": "dark"}}, false, time.Now())
	set, _ := update["$set"].(bson.M)
	if _, ok := set["data.prefs"]; !ok {
		t.Errorf("expected whole-field replacement, got %v", set)
	}
}

func TestFromBSON(t *testing.T) {
	ts := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	got := fromBSON(bson.M{
		"at":    primitive.NewDateTimeFromTime(ts),
		"count": int32(3),
		"list":  bson.A{"x", bson.D{{Key: "k", Value: "v"}}},
	})
	want := map[string]any{
		"at":    ts,
		"count": int64(3),
		"list":  []any{"x", map[string]any{"k": "v"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fromBSON mismatch (-want +got):\n%s", diff)
	}
}

// openTestStore connects to the replica set named by TJ_TEST_MONGO_URI.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TJ_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TJ_TEST_MONGO_URI not set")
	}
	config := DefaultConfig()
	config.Database = fmt.Sprintf("tradejournal_test_%d", time.Now().UnixNano())
	store, err := Open(context.Background(), uri, config)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.coll.Database().Drop(context.Background())
		store.Close()
	})
	return store
}

func TestIntegration_WritesAndWatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ch := make(chan docstore.QuerySnapshot, 10)
	sub, err := store.WatchQuery(ctx, docstore.Query{Collection: "owner/u1/trades"}, func(s docstore.QuerySnapshot) {
		ch <- s
	})
	if err != nil {
		t.Fatalf("WatchQuery() failed: %v", err)
	}
	defer sub.Cancel()

	next := func() docstore.QuerySnapshot {
		t.Helper()
		select {
		case s := <-ch:
			return s
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for snapshot")
			return docstore.QuerySnapshot{}
		}
	}
	if s := next(); len(s.Docs) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d docs", len(s.Docs))
	}

	b := store.Batch()
	b.Set("owner/u1/trades/t1", docstore.Doc{"symbol": "EURUSD", "createdAt": docstore.DefaultServerTimestamp}, docstore.MergeAll)
	b.Set("owner/u1/trades/t2", docstore.Doc{"symbol": "GBPUSD"}, docstore.MergeAll)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	for {
		if s := next(); len(s.Docs) == 2 {
			break
		}
	}

	if err := store.Update(ctx, "owner/u1/trades/missing", docstore.Doc{"pnl": 1.0}); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Update() of missing document = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "owner/u1/trades/missing"); err != nil {
		t.Errorf("Delete() of missing document failed: %v", err)
	}

	doc, err := store.Get(ctx, "owner/u1/trades/t1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if _, ok := doc.Data["createdAt"].(time.Time); !ok {
		t.Errorf("createdAt = %T, want time.Time", doc.Data["createdAt"])
	}
}
