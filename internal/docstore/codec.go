package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timeKey tags encoded timestamps so they survive a JSON round trip as
// time.Time rather than strings.
const timeKey = "$time"

// EncodeJSON encodes a document for storage. Timestamps are encoded as
// {"$time": "<RFC 3339>"} objects. Sentinels must already be resolved.
func EncodeJSON(d Doc) ([]byte, error) {
	v, err := encodeValue(map[string]any(d))
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// DecodeJSON decodes a document written by EncodeJSON. Numbers decode as
// float64.
func DecodeJSON(data []byte) (Doc, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	out := make(Doc, len(raw))
	for k, v := range raw {
		out[k] = decodeValue(v)
	}
	return out, nil
}

// Fingerprint returns a byte string that changes whenever the paths, order or
// contents of docs change.
func Fingerprint(docs []Document) []byte {
	var buf bytes.Buffer
	for _, d := range docs {
		buf.WriteString(d.Path)
		buf.WriteByte(0)
		b, err := EncodeJSON(d.Data)
		if err != nil {
			fmt.Fprintf(&buf, "%v", d.Data)
		} else {
			buf.Write(b)
		}
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func encodeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return map[string]any{timeKey: t.UTC().Format(time.RFC3339Nano)}, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return encodeValue(*t)
	case Sentinel:
		return nil, NewError("encode", "", CodeInvalidArgument, fmt.Errorf("unresolved sentinel %s", t))
	case Doc:
		return encodeValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ev, err := encodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ev, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return v, nil
	}
}

func decodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if s, ok := t[timeKey].(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return ts
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = decodeValue(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = decodeValue(e)
		}
		return t
	default:
		return v
	}
}
