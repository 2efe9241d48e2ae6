package docstore

import (
	"fmt"
	"time"
)

// ApplyWrite returns the state of the document at w.Path after applying w
// to existing. found reports whether the document existed before the write;
// the second result reports whether it exists afterwards. now resolves the
// timestamp sentinels.
//
// Nested maps in the result are always map[string]any, whatever map type the
// write carried.
func ApplyWrite(existing Doc, found bool, w Write, now time.Time) (Doc, bool, error) {
	switch w.Op {
	case OpDelete:
		return nil, false, nil
	case OpUpdate:
		if !found {
			return nil, false, NewError("update", w.Path, CodeNotFound, nil)
		}
		return applyFields(existing, w.Data, now, false), true, nil
	case OpSet:
		if !found {
			existing = nil
		}
		if w.Merge {
			return applyFields(existing, w.Data, now, true), true, nil
		}
		return Resolve(w.Data, existing, now), true, nil
	}
	return nil, false, NewError(w.Op.String(), w.Path, CodeInvalidArgument, fmt.Errorf("unknown write op %d", int(w.Op)))
}

// Resolve returns a copy of data with every sentinel replaced. Fields set to
// DeleteField are dropped; DefaultServerTimestamp keeps the value the field
// has in previous, if any.
func Resolve(data Doc, previous Doc, now time.Time) Doc {
	out := make(Doc, len(data))
	for k, v := range data {
		if v == DeleteField {
			continue
		}
		out[k] = resolveValue(v, previous[k], now)
	}
	return out
}

// applyFields writes fields over base. With deep set, nested maps present on
// both sides are merged recursively; otherwise each field is replaced whole.
func applyFields(base, fields Doc, now time.Time, deep bool) Doc {
	out := base.Clone()
	if out == nil {
		out = Doc{}
	}
	for k, v := range fields {
		switch v {
		case DeleteField:
			delete(out, k)
			continue
		case ServerTimestamp:
			out[k] = now
			continue
		case DefaultServerTimestamp:
			if _, ok := out[k]; !ok {
				out[k] = now
			}
			continue
		}
		if deep {
			if src, ok := AsMap(v); ok {
				if dst, ok := AsMap(out[k]); ok {
					out[k] = map[string]any(applyFields(Doc(dst), Doc(src), now, true))
					continue
				}
			}
		}
		out[k] = resolveValue(v, out[k], now)
	}
	return out
}

func resolveValue(v, previous any, now time.Time) any {
	switch t := v.(type) {
	case Sentinel:
		switch t {
		case ServerTimestamp:
			return now
		case DefaultServerTimestamp:
			if previous != nil {
				return previous
			}
			return now
		}
		return nil
	case Doc:
		return resolveMap(t, previous, now)
	case map[string]any:
		return resolveMap(t, previous, now)
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if e == DeleteField {
				continue
			}
			out = append(out, resolveValue(e, nil, now))
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return v
	}
}

func resolveMap(m map[string]any, previous any, now time.Time) map[string]any {
	prev, _ := AsMap(previous)
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v == DeleteField {
			continue
		}
		out[k] = resolveValue(v, prev[k], now)
	}
	return out
}
