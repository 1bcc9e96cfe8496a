// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/reposit/core"
)

// Value kinds. Each encoded value is a kind byte followed by its payload.
const (
	kindNil byte = iota
	kindString
	kindBool
	kindInt
	kindUint
	kindFloat
	kindBytes
	kindTime
	kindList
	kindRecord
)

// MarshalRecord serializes a record of normalized values to bytes. Keys
// are written in sorted order so equal records encode identically.
func MarshalRecord(rec core.Record) ([]byte, error) {
	size, err := recordSize(rec)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	marshalRecord(rec, buf)
	return buf, nil
}

// UnmarshalRecord deserializes a record from bytes.
func UnmarshalRecord(data []byte) (core.Record, error) {
	rec, n, err := unmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return rec, nil
}

// MarshalValue serializes a single normalized value.
func MarshalValue(v any) ([]byte, error) {
	size, err := valueSize(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	marshalValue(v, buf)
	return buf, nil
}

// UnmarshalValue deserializes a single value.
func UnmarshalValue(data []byte) (any, error) {
	v, n, err := unmarshalValue(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return v, nil
}

func sortedKeys(rec core.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func recordSize(rec core.Record) (int, error) {
	size := varint.Uint64.Size(uint64(len(rec)))
	for k, v := range rec {
		vs, err := valueSize(v)
		if err != nil {
			return 0, fmt.Errorf("key %s: %w", k, err)
		}
		size += ord.String.Size(k) + vs
	}
	return size, nil
}

func valueSize(v any) (int, error) {
	switch t := core.Normalize(v).(type) {
	case nil:
		return 1, nil
	case string:
		return 1 + ord.String.Size(t), nil
	case bool:
		return 1 + ord.Bool.Size(t), nil
	case int64:
		return 1 + varint.Int64.Size(t), nil
	case uint64:
		return 1 + varint.Uint64.Size(t), nil
	case float64:
		return 1 + raw.Float64.Size(t), nil
	case []byte:
		return 1 + ord.String.Size(string(t)), nil
	case time.Time:
		return 1 + varint.Int64.Size(t.UnixNano()), nil
	case []any:
		size := 1 + varint.Uint64.Size(uint64(len(t)))
		for _, e := range t {
			es, err := valueSize(e)
			if err != nil {
				return 0, err
			}
			size += es
		}
		return size, nil
	case core.Record:
		rs, err := recordSize(t)
		return 1 + rs, err
	default:
		return 0, fmt.Errorf("%w: %w: %T", ErrSerializationFailed, ErrUnsupportedValue, v)
	}
}

// marshalRecord writes rec into bs, which must be large enough.
func marshalRecord(rec core.Record, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(len(rec)), bs)
	for _, k := range sortedKeys(rec) {
		n += ord.String.Marshal(k, bs[n:])
		n += marshalValue(rec[k], bs[n:])
	}
	return n
}

func marshalValue(v any, bs []byte) int {
	switch t := core.Normalize(v).(type) {
	case nil:
		bs[0] = kindNil
		return 1
	case string:
		bs[0] = kindString
		return 1 + ord.String.Marshal(t, bs[1:])
	case bool:
		bs[0] = kindBool
		return 1 + ord.Bool.Marshal(t, bs[1:])
	case int64:
		bs[0] = kindInt
		return 1 + varint.Int64.Marshal(t, bs[1:])
	case uint64:
		bs[0] = kindUint
		return 1 + varint.Uint64.Marshal(t, bs[1:])
	case float64:
		bs[0] = kindFloat
		return 1 + raw.Float64.Marshal(t, bs[1:])
	case []byte:
		bs[0] = kindBytes
		return 1 + ord.String.Marshal(string(t), bs[1:])
	case time.Time:
		bs[0] = kindTime
		return 1 + varint.Int64.Marshal(t.UnixNano(), bs[1:])
	case []any:
		bs[0] = kindList
		n := 1 + varint.Uint64.Marshal(uint64(len(t)), bs[1:])
		for _, e := range t {
			n += marshalValue(e, bs[n:])
		}
		return n
	case core.Record:
		bs[0] = kindRecord
		return 1 + marshalRecord(t, bs[1:])
	}
	// valueSize has already rejected every other type.
	panic(fmt.Sprintf("storage: unexpected record value %T", v))
}

func unmarshalRecord(bs []byte) (core.Record, int, error) {
	count, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, 0, truncated(err)
	}
	if count > uint64(len(bs)) {
		return nil, 0, fmt.Errorf("%w: record claims %d keys", ErrTruncatedData, count)
	}
	rec := make(core.Record, count)
	for i := uint64(0); i < count; i++ {
		k, kn, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, 0, truncated(err)
		}
		n += kn
		v, vn, err := unmarshalValue(bs[n:])
		if err != nil {
			return nil, 0, err
		}
		n += vn
		rec[k] = v
	}
	return rec, n, nil
}

func unmarshalValue(bs []byte) (any, int, error) {
	if len(bs) == 0 {
		return nil, 0, ErrTruncatedData
	}
	kind, body := bs[0], bs[1:]
	var (
		v   any
		n   int
		err error
	)
	switch kind {
	case kindNil:
		return nil, 1, nil
	case kindString:
		v, n, err = ord.String.Unmarshal(body)
	case kindBool:
		v, n, err = ord.Bool.Unmarshal(body)
	case kindInt:
		v, n, err = varint.Int64.Unmarshal(body)
	case kindUint:
		v, n, err = varint.Uint64.Unmarshal(body)
	case kindFloat:
		v, n, err = raw.Float64.Unmarshal(body)
	case kindBytes:
		var s string
		s, n, err = ord.String.Unmarshal(body)
		v = []byte(s)
	case kindTime:
		var nanos int64
		nanos, n, err = varint.Int64.Unmarshal(body)
		v = time.Unix(0, nanos).UTC()
	case kindList:
		var count uint64
		count, n, err = varint.Uint64.Unmarshal(body)
		if err != nil {
			break
		}
		if count > uint64(len(body)) {
			return nil, 0, fmt.Errorf("%w: list claims %d elements", ErrTruncatedData, count)
		}
		list := make([]any, count)
		for i := range list {
			ev, en, eerr := unmarshalValue(body[n:])
			if eerr != nil {
				return nil, 0, eerr
			}
			list[i] = ev
			n += en
		}
		v = list
	case kindRecord:
		v, n, err = unmarshalRecord(body)
		if err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, fmt.Errorf("%w: unknown value kind %d", ErrSerializationFailed, kind)
	}
	if err != nil {
		return nil, 0, truncated(err)
	}
	return v, 1 + n, nil
}

func truncated(err error) error {
	return fmt.Errorf("%w: %w", ErrTruncatedData, err)
}
