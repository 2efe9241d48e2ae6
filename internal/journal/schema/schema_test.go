package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func TestTradeToDoc_OmitsZeroValues(t *testing.T) {
	trade := Trade{
		ID:         "trade_1",
		Symbol:     "EURUSD",
		Side:       SideBuy,
		EntryPrice: dec("1.085"),
		PnL:        dec("0"),
		Tags:       []string{"tag_a"},
	}
	want := map[string]any{
		"symbol":     "EURUSD",
		"side":       "buy",
		"entryPrice": 1.085,
		"pnl":        0.0,
		"tags":       []any{"tag_a"},
	}
	if diff := cmp.Diff(want, trade.ToDoc()); diff != "" {
		t.Errorf("ToDoc() mismatch (-want +got):\n%s", diff)
	}
}

func TestToDoc_KnownFieldsOverrideExtra(t *testing.T) {
	tag := Tag{Label: "Breakout", Extra: map[string]any{"label": "stale", "icon": "star", "id": "x"}}
	want := map[string]any{"label": "Breakout", "icon": "star"}
	if diff := cmp.Diff(want, tag.ToDoc()); diff != "" {
		t.Errorf("ToDoc() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Trade(t *testing.T) {
	created := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	var trade Trade
	err := Decode(map[string]any{
		"id":         "trade_1",
		"userId":     "u1",
		"symbol":     "EURUSD",
		"entryPrice": 1.085,
		"exitPrice":  "1.0900",
		"lots":       int64(2),
		"rating":     4.0,
		"tags":       []any{"a", "b"},
		"createdAt":  created,
		"updatedAt":  "2024-01-15T10:00:00Z",
		"migratedAt": float64(created.UnixMilli()),
		"screenshot": "https://example.com/1.png",
	}, &trade)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	if trade.ID != "trade_1" || trade.OwnerID != "u1" || trade.Symbol != "EURUSD" {
		t.Errorf("identity fields = %q %q %q", trade.ID, trade.OwnerID, trade.Symbol)
	}
	if !trade.EntryPrice.Valid || !trade.EntryPrice.Decimal.Equal(decimal.RequireFromString("1.085")) {
		t.Errorf("EntryPrice = %v", trade.EntryPrice)
	}
	if !trade.ExitPrice.Decimal.Equal(decimal.RequireFromString("1.09")) {
		t.Errorf("ExitPrice = %v", trade.ExitPrice)
	}
	if !trade.Lots.Decimal.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Lots = %v", trade.Lots)
	}
	if trade.PnL.Valid {
		t.Errorf("PnL should be absent, got %v", trade.PnL)
	}
	if trade.Rating != 4 {
		t.Errorf("Rating = %d, want 4", trade.Rating)
	}
	if diff := cmp.Diff([]string{"a", "b"}, trade.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if !trade.CreatedAt.Equal(created) || !trade.MigratedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, MigratedAt = %v, want %v", trade.CreatedAt, trade.MigratedAt, created)
	}
	if !trade.UpdatedAt.Equal(created.Add(30 * time.Minute)) {
		t.Errorf("UpdatedAt = %v", trade.UpdatedAt)
	}
	if trade.Extra["screenshot"] != "https://example.com/1.png" {
		t.Errorf("Extra = %v, want screenshot kept", trade.Extra)
	}
}

func TestDecode_TimestampMap(t *testing.T) {
	var tag Tag
	err := Decode(map[string]any{
		"createdAt": map[string]any{"seconds": 1705311000.0, "nanoseconds": 500.0},
	}, &tag)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	want := time.Unix(1705311000, 500).UTC()
	if !tag.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", tag.CreatedAt, want)
	}
}

func TestDecode_StrategyChecklist(t *testing.T) {
	var s Strategy
	err := Decode(map[string]any{
		"title": "London breakout",
		"checklist": []any{
			map[string]any{"text": "Asia range marked", "checked": true},
			map[string]any{"text": "News checked"},
		},
	}, &s)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	want := []ChecklistItem{{Text: "Asia range marked", Checked: true}, {Text: "News checked"}}
	if diff := cmp.Diff(want, s.Checklist); diff != "" {
		t.Errorf("Checklist mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_InvalidDecimal(t *testing.T) {
	var a Account
	if err := Decode(map[string]any{"balance": "lots"}, &a); err == nil {
		t.Error("expected error for invalid decimal")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		field  string
	}{
		{"valid trade", &Trade{Side: SideSell, Rating: 5, Date: "2024-01-15", Time: "09:30"}, ""},
		{"bad side", &Trade{Side: "up"}, "side"},
		{"negative lots", &Trade{Lots: dec("-1")}, "lots"},
		{"rating too high", &Trade{Rating: 6}, "rating"},
		{"bad date", &Trade{Date: "15/01/2024"}, "date"},
		{"bad time", &Trade{Time: "9am"}, "time"},
		{"empty tag id", &Trade{Tags: []string{""}}, "tags"},
		{"bad currency", &Account{Currency: "EURO"}, "currency"},
		{"empty checklist item", &Strategy{Checklist: []ChecklistItem{{}}}, "checklist"},
		{"settings", &Settings{Values: map[string]any{"theme": "dark"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() failed: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestPatch(t *testing.T) {
	got, err := Patch(KindTrade, map[string]any{
		"exitPrice": "1.0900",
		"rating":    3.0,
		"tags":      []string{"a"},
		"notes":     nil,
		"mood":      "calm",
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("Patch() failed: %v", err)
	}
	want := map[string]any{
		"exitPrice": 1.09,
		"rating":    3,
		"tags":      []any{"a"},
		"notes":     nil,
		"mood":      "calm",
		"updatedAt": docstore.ServerTimestamp,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Patch() mismatch (-want +got):\n%s", diff)
	}
}

func TestPatch_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		fields map[string]any
	}{
		{"id", KindTrade, map[string]any{"id": "other"}},
		{"owner", KindTag, map[string]any{"userId": "u2"}},
		{"wrong type", KindTrade, map[string]any{"symbol": 42}},
		{"fractional rating", KindTrade, map[string]any{"rating": 2.5}},
		{"out of range rating", KindTrade, map[string]any{"rating": 9}},
		{"negative price", KindTrade, map[string]any{"entryPrice": -1}},
		{"bad checklist", KindStrategy, map[string]any{"checklist": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Patch(tt.kind, tt.fields)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Patch() = %v, want *ValidationError", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"trades", "trade", "strategies", "settings"} {
		if _, err := ParseKind(name); err != nil {
			t.Errorf("ParseKind(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseKind("orders"); err == nil {
		t.Error("expected error for unknown kind")
	}
	if KindTrade.Singleton() || !KindProfile.Singleton() {
		t.Error("Singleton() mismatch")
	}
}
