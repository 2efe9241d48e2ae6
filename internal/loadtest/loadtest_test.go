package loadtest

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/docstore/sqlite"
	"github.com/mschirtzinger/tradejournal/internal/journal"
	"github.com/mschirtzinger/tradejournal/internal/journal/paths"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

func TestRun_Small(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "load.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()
	svc := journal.New(store, journal.WithBatchSize(25))

	ctx := context.Background()
	report, err := Run(ctx, svc, Options{Owners: 4, Backlog: 60, Writes: 5, Seed: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Errors > 0 {
		t.Fatalf("Run() had %d errors, first: %v", report.Errors, report.FirstErr)
	}
	if report.Save.Count != 20 || report.Update.Count != 20 || report.Upload.Count != 4 {
		t.Errorf("counts = save %d, update %d, upload %d; want 20, 20, 4",
			report.Save.Count, report.Update.Count, report.Upload.Count)
	}

	docs, err := store.Query(ctx, docstore.Query{Collection: paths.Collection("loadtest-002", schema.KindTrade)})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(docs) != 65 {
		t.Errorf("owner 2 has %d trades, want 65", len(docs))
	}
}

func TestGenerateTrade_Valid(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		trade := generateTrade(rng, i)
		if err := trade.Validate(); err != nil {
			t.Fatalf("generateTrade(%d) invalid: %v", i, err)
		}
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}
	stats := computeLatencyStats(durations)

	if stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", stats.Min, stats.Max)
	}
	if stats.P50 != 51*time.Millisecond || stats.P95 != 96*time.Millisecond || stats.P99 != 100*time.Millisecond {
		t.Errorf("P50/P95/P99 = %v/%v/%v", stats.P50, stats.P95, stats.P99)
	}
	if stats.Mean != 50500*time.Microsecond {
		t.Errorf("Mean = %v", stats.Mean)
	}
	if durations[0] != 100*time.Millisecond {
		t.Error("input should not be reordered")
	}
	if empty := computeLatencyStats(nil); empty.Count != 0 {
		t.Errorf("empty Count = %d", empty.Count)
	}
}
