// Package loadtest measures journal write latency under concurrent owners.
//
// Each simulated owner uploads a backlog of local trades through the bulk
// migration path and then saves and updates trades one at a time, the way a
// device replays a trading session. Latencies of the single-record writes
// are aggregated across owners.
package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mschirtzinger/tradejournal/internal/journal"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

// Options configures a load test run.
type Options struct {
	// Owners is the number of concurrent simulated owners (default: 10).
	Owners int

	// Backlog is the number of local trades each owner uploads first.
	Backlog int

	// Writes is the number of save+update pairs each owner performs
	// (default: 20).
	Writes int

	// OwnerPrefix prefixes generated owner ids (default: "loadtest").
	OwnerPrefix string

	// Seed makes generated trades reproducible.
	Seed int64
}

func (o *Options) setDefaults() {
	if o.Owners <= 0 {
		o.Owners = 10
	}
	if o.Writes <= 0 {
		o.Writes = 20
	}
	if o.OwnerPrefix == "" {
		o.OwnerPrefix = "loadtest"
	}
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	P99   time.Duration
	Count int
}

// Report is the result of a run.
type Report struct {
	Owners  int
	Save    *LatencyStats
	Update  *LatencyStats
	Upload  *LatencyStats // one sample per owner
	Errors  int
	Elapsed time.Duration

	// FirstErr is the first failure seen, if any.
	FirstErr error
}

type ownerResult struct {
	save, update []time.Duration
	upload       time.Duration
	err          error
}

// Run simulates opts.Owners owners writing to svc concurrently. Individual
// write failures are counted, not returned; Run fails only if no write
// succeeded at all.
func Run(ctx context.Context, svc *journal.Service, opts Options) (*Report, error) {
	opts.setDefaults()

	start := time.Now()
	results := make([]ownerResult, opts.Owners)

	var wg sync.WaitGroup
	for i := 0; i < opts.Owners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
			ownerID := fmt.Sprintf("%s-%03d", opts.OwnerPrefix, i)
			results[i] = runOwner(ctx, svc, ownerID, rng, opts)
		}(i)
	}
	wg.Wait()

	report := &Report{Owners: opts.Owners, Elapsed: time.Since(start)}
	var saves, updates, uploads []time.Duration
	for _, r := range results {
		saves = append(saves, r.save...)
		updates = append(updates, r.update...)
		if r.upload > 0 {
			uploads = append(uploads, r.upload)
		}
		if r.err != nil {
			report.Errors++
			if report.FirstErr == nil {
				report.FirstErr = r.err
			}
		}
	}
	if len(saves) == 0 && len(uploads) == 0 {
		if report.FirstErr != nil {
			return nil, fmt.Errorf("no write succeeded: %w", report.FirstErr)
		}
		return nil, fmt.Errorf("no write succeeded")
	}

	report.Save = computeLatencyStats(saves)
	report.Update = computeLatencyStats(updates)
	report.Upload = computeLatencyStats(uploads)
	return report, nil
}

// runOwner stops at the first failure of an owner.
func runOwner(ctx context.Context, svc *journal.Service, ownerID string, rng *rand.Rand, opts Options) ownerResult {
	var r ownerResult

	if opts.Backlog > 0 {
		backlog := make([]schema.Trade, opts.Backlog)
		for i := range backlog {
			backlog[i] = generateTrade(rng, i)
		}
		start := time.Now()
		if _, err := svc.UploadLocalTrades(ctx, ownerID, backlog); err != nil {
			r.err = err
			return r
		}
		r.upload = time.Since(start)
	}

	for i := 0; i < opts.Writes; i++ {
		start := time.Now()
		saved, err := svc.SaveTrade(ctx, ownerID, generateTrade(rng, opts.Backlog+i))
		if err != nil {
			r.err = err
			return r
		}
		r.save = append(r.save, time.Since(start))

		start = time.Now()
		err = svc.UpdateTrade(ctx, ownerID, saved.ID, map[string]any{
			"exitPrice": saved.EntryPrice.Decimal.Add(decimal.New(int64(rng.Intn(200)-100), -4)).String(),
			"rating":    1 + rng.Intn(5),
		})
		if err != nil {
			r.err = err
			return r
		}
		r.update = append(r.update, time.Since(start))
	}
	return r
}

var symbols = []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD", "US30"}

// generateTrade creates a plausible open trade.
func generateTrade(rng *rand.Rand, n int) schema.Trade {
	side := schema.SideBuy
	if rng.Intn(2) == 1 {
		side = schema.SideSell
	}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n/10)
	return schema.Trade{
		Symbol:     symbols[rng.Intn(len(symbols))],
		Side:       side,
		EntryPrice: decimal.NewNullDecimal(decimal.New(10000+int64(rng.Intn(5000)), -4)),
		Lots:       decimal.NewNullDecimal(decimal.New(int64(1+rng.Intn(100)), -2)),
		Date:       day.Format(time.DateOnly),
		Time:       fmt.Sprintf("%02d:%02d", 7+rng.Intn(10), rng.Intn(60)),
		Session:    "london",
		Tags:       []string{"loadtest"},
	}
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(durations)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Count: len(durations),
	}
}
