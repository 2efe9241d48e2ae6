package docstore

import "time"

// Doc is the field map of a stored document.
type Doc map[string]any

// Sentinel is a placeholder field value resolved by the store at commit time.
type Sentinel int

const (
	// ServerTimestamp is replaced by the commit time of the write.
	ServerTimestamp Sentinel = iota + 1

	// DefaultServerTimestamp is replaced by the commit time only when the
	// field has no value yet; an existing value is kept.
	DefaultServerTimestamp

	// DeleteField removes the field from the stored document.
	DeleteField
)

// String returns a human-readable name for the sentinel.
func (s Sentinel) String() string {
	switch s {
	case ServerTimestamp:
		return "ServerTimestamp"
	case DefaultServerTimestamp:
		return "DefaultServerTimestamp"
	case DeleteField:
		return "DeleteField"
	default:
		return "unknown"
	}
}

// Clone returns a deep copy of d.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Doc:
		return t.Clone()
	case map[string]any:
		return Doc(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// AsMap reports whether v is a nested document and returns it.
func AsMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Doc:
		return t, true
	case map[string]any:
		return t, true
	default:
		return nil, false
	}
}

// Document is a stored document as read from a Store.
type Document struct {
	// Path is the full document path.
	Path string
	// ID is the last path segment.
	ID string
	// Data holds the document fields with all sentinels resolved.
	Data Doc
	// Seq is the storage-assigned order of the document within its
	// collection. It is stable for the lifetime of the document.
	Seq int64

	CreateTime time.Time
	UpdateTime time.Time
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	d.Data = d.Data.Clone()
	return d
}
