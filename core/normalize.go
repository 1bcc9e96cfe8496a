package core

import (
	"math"
	"reflect"
	"time"
)

var timeType = reflect.TypeFor[time.Time]()

// Normalize converts a Go value to the canonical form stored in a Record
// and compared by backends:
//   - signed integers become int64, unsigned integers int64 when they fit
//     and uint64 otherwise
//   - float32 becomes float64
//   - named string and bool types become string and bool
//   - pointers are dereferenced (nil stays nil)
//   - slices other than []byte become []any, string-keyed maps become Record
//
// time.Time, []byte and struct values are returned unchanged.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case string, bool, int64, float64, []byte, time.Time, Record:
		return v
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= math.MaxInt64 {
			return int64(u)
		}
		return u
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes()
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(Record, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		if rv.Type() == timeType {
			return rv.Interface()
		}
	}
	return v
}
