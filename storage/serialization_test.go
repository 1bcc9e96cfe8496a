package storage

import (
	"math"
	"testing"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRecord(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name   string
		record core.Record
	}{
		{"empty record", core.Record{}},
		{
			name: "scalars",
			record: core.Record{
				"name":   "Ada",
				"age":    int64(36),
				"big":    uint64(math.MaxUint64),
				"score":  3.25,
				"active": true,
				"none":   nil,
				"raw":    []byte{0, 1, 2},
				"seen":   now,
			},
		},
		{
			name: "nested",
			record: core.Record{
				"address": core.Record{"city": "London", "geo": core.Record{"lat": 51.5}},
				"tags":    []any{"a", int64(2), []any{false}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalRecord(tt.record)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalRecord(data)
			require.NoError(t, err)
			assert.Equal(t, tt.record, decoded)
		})
	}
}

func TestMarshalRecordNormalizes(t *testing.T) {
	type level string
	data, err := MarshalRecord(core.Record{
		"n":     7,
		"f":     float32(1.5),
		"level": level("high"),
		"list":  []string{"x"},
		"map":   map[string]any{"k": int8(1)},
	})
	require.NoError(t, err)

	decoded, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, core.Record{
		"n":     int64(7),
		"f":     1.5,
		"level": "high",
		"list":  []any{"x"},
		"map":   core.Record{"k": int64(1)},
	}, decoded)
}

func TestMarshalRecordDeterministic(t *testing.T) {
	rec := core.Record{"b": int64(2), "a": "1", "c": core.Record{"z": 1, "y": 2}}
	first, err := MarshalRecord(rec)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalRecord(rec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMarshalRecordRejectsUnsupported(t *testing.T) {
	type opaque struct{ X int }
	_, err := MarshalRecord(core.Record{"bad": opaque{1}})
	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestUnmarshalRecord_Invalid(t *testing.T) {
	valid, err := MarshalRecord(core.Record{"name": "Ada", "age": int64(3)})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"truncated", valid[:len(valid)-1]},
		{"huge count", []byte{0xff, 0xff, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalRecord(tt.data)
			assert.Error(t, err)
		})
	}

	_, err = UnmarshalRecord(append(valid, 0))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalValue(t *testing.T) {
	for _, v := range []any{"id-1", int64(-5), 2.5, nil} {
		data, err := MarshalValue(v)
		require.NoError(t, err)
		got, err := UnmarshalValue(data)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := UnmarshalValue([]byte{0xee})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
