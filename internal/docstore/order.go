package docstore

import (
	"cmp"
	"slices"
	"time"
)

// SortDocuments orders docs the way q asks for. Ties, and queries without
// OrderBy, fall back to ascending Seq so ordering is deterministic.
func SortDocuments(docs []Document, q Query) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		if q.OrderBy != "" {
			av, aok := a.Data[q.OrderBy]
			bv, bok := b.Data[q.OrderBy]
			switch {
			case aok && !bok:
				return -1
			case !aok && bok:
				return 1
			case aok && bok:
				c := CompareValues(av, bv)
				if q.Descending {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// CompareValues orders two field values. Values of different types order by
// type: null, booleans, numbers, timestamps, strings, then everything else.
func CompareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case rankNumber:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		return cmp.Compare(af, bf)
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	case rankString:
		return cmp.Compare(a.(string), b.(string))
	}
	return 0
}

const (
	rankNull = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	case string:
		return rankString
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	return rankOther
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
