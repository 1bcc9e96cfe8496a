package sqlite

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/storage"
)

// encodeDoc renders a record as a JSON object. Times use the fixed-width
// timeLayout and byte slices are base64 encoded, the same forms sqlParam
// binds, so SQL comparisons agree with the stored text.
func encodeDoc(rec core.Record) (string, error) {
	v, err := docValue(rec)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return string(data), nil
}

func docValue(v any) (any, error) {
	switch t := core.Normalize(v).(type) {
	case nil, string, bool, int64, uint64, float64:
		return t, nil
	case time.Time:
		return t.UTC().Format(timeLayout), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(t), nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			dv, err := docValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case core.Record:
		out := make(map[string]any, len(t))
		for k, item := range t {
			dv, err := docValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = dv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %w: %T", storage.ErrSerializationFailed, storage.ErrUnsupportedValue, v)
	}
}

// encodeID renders an identifier for the unique index. The JSON form keeps
// the string "1" and the number 1 apart.
func encodeID(id any) (string, error) {
	v, err := docValue(id)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return string(data), nil
}

// decodeDoc parses a stored JSON object. Integral numbers come back as
// int64, others as float64, nested objects as core.Record.
func decodeDoc(doc string) (core.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is not an object", storage.ErrSerializationFailed)
	}
	return fromJSON(raw).(core.Record), nil
}

func fromJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		rec := make(core.Record, len(t))
		for k, item := range t {
			rec[k] = fromJSON(item)
		}
		return rec
	case []any:
		for i, item := range t {
			t[i] = fromJSON(item)
		}
		return t
	default:
		return v
	}
}
