package schema

import (
	"fmt"
	"math"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

type fieldType int

const (
	fieldString fieldType = iota
	fieldDecimal
	fieldInt
	fieldStrings
	fieldChecklist
	fieldTime
)

var bookkeepingFields = map[string]fieldType{
	FieldCreatedAt:  fieldTime,
	FieldUpdatedAt:  fieldTime,
	FieldMigratedAt: fieldTime,
}

var knownFields = map[Kind]map[string]fieldType{
	KindTrade: {
		"symbol":     fieldString,
		"side":       fieldString,
		"entryPrice": fieldDecimal,
		"exitPrice":  fieldDecimal,
		"lots":       fieldDecimal,
		"pnl":        fieldDecimal,
		"pips":       fieldDecimal,
		"date":       fieldString,
		"time":       fieldString,
		"session":    fieldString,
		"rating":     fieldInt,
		"tags":       fieldStrings,
		"notes":      fieldString,
		"strategyId": fieldString,
	},
	KindAccount: {
		"label":    fieldString,
		"balance":  fieldDecimal,
		"currency": fieldString,
		"broker":   fieldString,
	},
	KindStrategy: {
		"title":     fieldString,
		"symbol":    fieldString,
		"checklist": fieldChecklist,
	},
	KindTag: {
		"label":    fieldString,
		"color":    fieldString,
		"category": fieldString,
	},
	KindSettings: {},
	KindProfile: {
		"displayName": fieldString,
		"email":       fieldString,
	},
}

// Patch checks a partial update of a record and converts its known fields to
// their document form. Unknown fields pass through unchanged, as do nil
// values and docstore sentinels. The id and owner fields cannot be patched.
func Patch(kind Kind, fields map[string]any) (map[string]any, error) {
	types, ok := knownFields[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}

	out := make(map[string]any, len(fields))
	for key, v := range fields {
		if key == FieldID || key == FieldOwner {
			return nil, &ValidationError{Kind: kind, Field: key, Reason: "cannot be changed"}
		}
		ft, known := types[key]
		if !known {
			ft, known = bookkeepingFields[key]
		}
		if _, sentinel := v.(docstore.Sentinel); !known || v == nil || sentinel {
			out[key] = v
			continue
		}
		converted, err := convertField(ft, v)
		if err != nil {
			return nil, &ValidationError{Kind: kind, Field: key, Reason: err.Error()}
		}
		out[key] = converted
	}

	// Zero values pass every record check, so validating a record holding
	// only the patched fields checks exactly those fields.
	rec, _ := New(kind)
	checked := make(map[string]any, len(out))
	for key, v := range out {
		if _, sentinel := v.(docstore.Sentinel); v != nil && !sentinel {
			checked[key] = v
		}
	}
	if err := Decode(checked, rec); err != nil {
		return nil, &ValidationError{Kind: kind, Field: "*", Reason: err.Error()}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func convertField(ft fieldType, v any) (any, error) {
	switch ft {
	case fieldString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string (got %T)", v)
		}
		return s, nil
	case fieldDecimal:
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		return d.InexactFloat64(), nil
	case fieldInt:
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		if !d.IsInteger() || d.Abs().IntPart() > math.MaxInt32 {
			return nil, fmt.Errorf("must be a whole number (got %s)", d)
		}
		return int(d.IntPart()), nil
	case fieldStrings:
		switch list := v.(type) {
		case []string:
			out := make([]any, len(list))
			for i, s := range list {
				out[i] = s
			}
			return out, nil
		case []any:
			for i, item := range list {
				if _, ok := item.(string); !ok {
					return nil, fmt.Errorf("entry %d must be a string (got %T)", i, item)
				}
			}
			return list, nil
		}
		return nil, fmt.Errorf("must be a list of strings (got %T)", v)
	case fieldChecklist:
		switch list := v.(type) {
		case []ChecklistItem:
			return checklistDoc(list), nil
		case []any:
			var holder Strategy
			if err := Decode(map[string]any{"checklist": list}, &holder); err != nil {
				return nil, err
			}
			return checklistDoc(holder.Checklist), nil
		}
		return nil, fmt.Errorf("must be a list of checklist items (got %T)", v)
	case fieldTime:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	}
	return v, nil
}
