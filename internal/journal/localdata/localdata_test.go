package localdata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trades.jsonl", strings.Join([]string{
		`{"id":"trade_1","symbol":"EURUSD","side":"buy","entryPrice":1.0850,"pnl":42.5,"tags":["tag_1"],"createdAt":1705311000000}`,
		`{"symbol":"GBPUSD","rating":3,"mood":"calm"}`,
		``,
	}, "\n"))
	writeFile(t, dir, "tags.jsonl", `{"id":"tag_1","label":"Breakout","category":"custom"}`+"\n")
	writeFile(t, dir, "settings.json", `{"theme":"dark","riskPerTrade":1}`)

	data, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(data.Trades) != 2 {
		t.Fatalf("loaded %d trades, want 2", len(data.Trades))
	}
	first := data.Trades[0]
	if first.ID != "trade_1" || first.Side != schema.SideBuy {
		t.Errorf("first trade = %+v", first)
	}
	if !first.EntryPrice.Decimal.Equal(decimal.RequireFromString("1.085")) {
		t.Errorf("EntryPrice = %v, want 1.085", first.EntryPrice)
	}
	if !first.CreatedAt.Equal(time.UnixMilli(1705311000000)) {
		t.Errorf("CreatedAt = %v", first.CreatedAt)
	}
	second := data.Trades[1]
	if second.ID != "" || second.Rating != 3 {
		t.Errorf("second trade = %+v", second)
	}
	if second.Extra["mood"] != "calm" {
		t.Errorf("unknown field dropped: %v", second.Extra)
	}

	if len(data.Tags) != 1 || data.Tags[0].Label != "Breakout" {
		t.Errorf("Tags = %+v", data.Tags)
	}
	if data.Settings == nil || data.Settings.Values["theme"] != "dark" {
		t.Errorf("Settings = %+v", data.Settings)
	}
	if data.Profile != nil {
		t.Errorf("Profile = %+v, want nil", data.Profile)
	}

	want := map[schema.Kind]int{
		schema.KindTrade: 2, schema.KindAccount: 0, schema.KindStrategy: 0,
		schema.KindTag: 1, schema.KindSettings: 1,
	}
	if diff := cmp.Diff(want, data.Counts()); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	data, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !data.Empty() {
		t.Errorf("Empty() = false for %+v", data)
	}
}

func TestLoad_InvalidLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "accounts.jsonl", `{"label":"Main"}`+"\n"+`{"label":`+"\n")

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Load() = %v, want error naming line 2", err)
	}
}

func TestMarker(t *testing.T) {
	dir := t.TempDir()

	m, err := ReadMarker(dir)
	if err != nil || m != nil {
		t.Fatalf("ReadMarker() on empty dir = %v, %v", m, err)
	}

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := MarkMigrated(dir, Marker{OwnerID: "u1", MigratedAt: at, Counts: map[string]int{"trade": 2}}); err != nil {
		t.Fatalf("MarkMigrated() failed: %v", err)
	}
	m, err = ReadMarker(dir)
	if err != nil {
		t.Fatalf("ReadMarker() failed: %v", err)
	}
	want := &Marker{OwnerID: "u1", MigratedAt: at, Counts: map[string]int{"trade": 2}}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("marker mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, MarkerFile+".tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestRewrite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trades.jsonl", `{"id":"trade_1","symbol":"EURUSD"}`+"\n"+`{"symbol":"GBPUSD"}`+"\n")

	backup, err := Rewrite(dir, schema.KindTrade, []map[string]any{
		{"id": "trade_generated", "symbol": "GBPUSD", "lots": 0.5},
	})
	if err != nil {
		t.Fatalf("Rewrite() failed: %v", err)
	}
	if backup == "" {
		t.Fatal("no backup created")
	}
	if original, err := os.ReadFile(backup); err != nil || !strings.Contains(string(original), "trade_1") {
		t.Errorf("backup = %q, %v", original, err)
	}

	data, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(data.Trades) != 1 || data.Trades[0].ID != "trade_generated" {
		t.Fatalf("Trades = %+v", data.Trades)
	}
	if !data.Trades[0].Lots.Decimal.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Lots = %v", data.Trades[0].Lots)
	}
}

func TestMarker_IsDone(t *testing.T) {
	var none *Marker
	if none.IsDone(schema.KindTrade) {
		t.Error("nil marker reports done")
	}
	partial := &Marker{Done: []string{"tag"}}
	if !partial.IsDone(schema.KindTag) || partial.IsDone(schema.KindTrade) {
		t.Errorf("IsDone() mismatch for %+v", partial)
	}
	if !(&Marker{Complete: true}).IsDone(schema.KindTrade) {
		t.Error("complete marker should report every kind done")
	}
}
