package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
)

// Record is implemented by every record type.
type Record interface {
	Kind() Kind
	Validate() error
	ToDoc() map[string]any
}

// New returns a pointer to an empty record of the given kind.
func New(kind Kind) (Record, error) {
	switch kind {
	case KindTrade:
		return &Trade{}, nil
	case KindAccount:
		return &Account{}, nil
	case KindStrategy:
		return &Strategy{}, nil
	case KindTag:
		return &Tag{}, nil
	case KindSettings:
		return &Settings{}, nil
	case KindProfile:
		return &Profile{}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}

// Decode fills out from a document. Timestamps are accepted as time.Time,
// RFC 3339 strings, epoch milliseconds or {seconds, nanoseconds} maps, and
// decimals as numbers or strings. Keys without a struct field are kept in
// the record's extension map.
func Decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			decimalHook,
			timeHook,
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

var (
	decimalType     = reflect.TypeOf(decimal.Decimal{})
	nullDecimalType = reflect.TypeOf(decimal.NullDecimal{})
	timeType        = reflect.TypeOf(time.Time{})
)

func decimalHook(from, to reflect.Type, data any) (any, error) {
	if to != decimalType && to != nullDecimalType {
		return data, nil
	}
	if from == to {
		return data, nil
	}
	d, err := toDecimal(data)
	if err != nil {
		return nil, err
	}
	if to == nullDecimalType {
		return decimal.NullDecimal{Decimal: d, Valid: true}, nil
	}
	return d, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case decimal.NullDecimal:
		return n.Decimal, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, fmt.Errorf("not a finite number: %v", n)
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("invalid decimal %q: %w", n, err)
		}
		return d, nil
	}
	return decimal.Decimal{}, fmt.Errorf("cannot convert %T to decimal", v)
}

func timeHook(from, to reflect.Type, data any) (any, error) {
	if to != timeType || from == to {
		return data, nil
	}
	return toTime(data)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", t, err)
		}
		return parsed, nil
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case int:
		return time.UnixMilli(int64(t)).UTC(), nil
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", t, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	case map[string]any:
		// {seconds, nanoseconds} as written by hosted document stores.
		secs, ok := t["seconds"]
		if !ok {
			return time.Time{}, fmt.Errorf("timestamp map has no seconds")
		}
		s, err := toDecimal(secs)
		if err != nil {
			return time.Time{}, err
		}
		var ns int64
		if raw, ok := t["nanoseconds"]; ok {
			d, err := toDecimal(raw)
			if err != nil {
				return time.Time{}, err
			}
			ns = d.IntPart()
		}
		return time.Unix(s.IntPart(), ns).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", v)
}

// ValidationError reports a record field with an invalid value.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s.%s: %s", e.Kind, e.Field, e.Reason)
}

func checkNonNegative(kind Kind, field string, v decimal.NullDecimal) error {
	if v.Valid && v.Decimal.IsNegative() {
		return &ValidationError{Kind: kind, Field: field, Reason: fmt.Sprintf("must not be negative (got %s)", v.Decimal)}
	}
	return nil
}

func checkDate(kind Kind, field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, v); err != nil {
		return &ValidationError{Kind: kind, Field: field, Reason: fmt.Sprintf("must be YYYY-MM-DD (got %q)", v)}
	}
	return nil
}

func checkClock(kind Kind, field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse("15:04", v); err != nil {
		return &ValidationError{Kind: kind, Field: field, Reason: fmt.Sprintf("must be HH:MM (got %q)", v)}
	}
	return nil
}
