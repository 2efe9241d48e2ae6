// Package payload prepares record documents for writing.
package payload

import (
	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

type undefined struct{}

// Undefined marks a field that has no value and must not be written.
// Unlike nil, which is stored as null, an Undefined field is removed.
var Undefined any = undefined{}

// Options controls Normalize.
type Options struct {
	// StampCreatedAt defaults createdAt to the commit time when the
	// document has no createdAt key. An existing stored value is kept, and
	// an explicit nil is written as null.
	StampCreatedAt bool
}

// Normalize returns a copy of doc ready for writing: Undefined values are
// removed at every depth and userId is set to ownerID. The input is not
// modified.
func Normalize(doc map[string]any, ownerID string, opts Options) docstore.Doc {
	out := Strip(doc)
	out[schema.FieldOwner] = ownerID
	if opts.StampCreatedAt {
		if _, ok := out[schema.FieldCreatedAt]; !ok {
			out[schema.FieldCreatedAt] = docstore.DefaultServerTimestamp
		}
	}
	return out
}

// Strip returns a copy of doc without Undefined values. Nested maps and
// slices are copied too.
func Strip(doc map[string]any) docstore.Doc {
	out := make(docstore.Doc, len(doc)+2)
	for k, v := range doc {
		if v == Undefined {
			continue
		}
		out[k] = stripValue(v)
	}
	return out
}

func stripValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Strip(t))
	case docstore.Doc:
		return map[string]any(Strip(t))
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item == Undefined {
				continue
			}
			out = append(out, stripValue(item))
		}
		return out
	}
	return v
}
