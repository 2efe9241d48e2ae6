package payload

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

func TestNormalize(t *testing.T) {
	in := map[string]any{
		"symbol": "EURUSD",
		"notes":  Undefined,
		"pnl":    nil,
		"userId": "someone-else",
		"meta": map[string]any{
			"source": "import",
			"broker": Undefined,
		},
		"tags": []any{"a", Undefined, map[string]any{"x": Undefined}},
	}

	got := Normalize(in, "u1", Options{StampCreatedAt: true})
	want := docstore.Doc{
		"symbol":    "EURUSD",
		"pnl":       nil,
		"userId":    "u1",
		"meta":      map[string]any{"source": "import"},
		"tags":      []any{"a", map[string]any{}},
		"createdAt": docstore.DefaultServerTimestamp,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
	if in["notes"] != Undefined || in["userId"] != "someone-else" {
		t.Error("Normalize() modified its input")
	}
}

func TestNormalize_KeepsCallerCreatedAt(t *testing.T) {
	got := Normalize(map[string]any{"createdAt": "2024-01-15T09:30:00Z"}, "u1", Options{StampCreatedAt: true})
	if got["createdAt"] != "2024-01-15T09:30:00Z" {
		t.Errorf("createdAt = %v, want caller value", got["createdAt"])
	}
}

func TestNormalize_NoStamp(t *testing.T) {
	got := Normalize(map[string]any{"label": "Breakout"}, "u1", Options{})
	if _, ok := got["createdAt"]; ok {
		t.Errorf("createdAt set without StampCreatedAt: %v", got)
	}
}

func TestNormalize_KeepsExplicitNilCreatedAt(t *testing.T) {
	got := Normalize(map[string]any{"createdAt": nil}, "u1", Options{StampCreatedAt: true})
	v, ok := got["createdAt"]
	if !ok || v != nil {
		t.Errorf("createdAt = %v (present %t), want explicit nil", v, ok)
	}
}
