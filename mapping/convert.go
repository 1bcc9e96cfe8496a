package mapping

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/poiesic/reposit/core"
)

// ToRecord converts an entity (struct, pointer to struct, or core.Record for
// schema-defined entities) to its storage record. Converters run before
// values are normalized.
func (e *Entity) ToRecord(entity any) (core.Record, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: entity", core.ErrNilArgument)
	}
	if e.IsRecord() {
		return e.recordToStorage(entity)
	}
	rv, err := e.structValue(entity)
	if err != nil {
		return nil, err
	}
	return encodeFields(rv, e.fields)
}

// ToEntity materializes a storage record as a value of Type().
func (e *Entity) ToEntity(rec core.Record) (reflect.Value, error) {
	if e.IsRecord() {
		out, err := e.recordFromStorage(rec)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(out), nil
	}
	rv := reflect.New(e.typ).Elem()
	if err := decodeFields(rv, e.fields, rec); err != nil {
		return reflect.Value{}, fmt.Errorf("entity %s: %w", e.name, err)
	}
	return rv, nil
}

// IDValue returns the normalized storage value of the entity's identifier.
func (e *Entity) IDValue(entity any) (any, error) {
	if e.id == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrIDNotFound, e.name)
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: entity", core.ErrNilArgument)
	}
	if e.IsRecord() {
		rec, err := e.recordToStorage(entity)
		if err != nil {
			return nil, err
		}
		return rec[e.id.Key], nil
	}
	rv, err := e.structValue(entity)
	if err != nil {
		return nil, err
	}
	return e.StorageID(rv.FieldByIndex(e.id.index).Interface())
}

// StorageID converts a caller-supplied identifier to its storage form.
func (e *Entity) StorageID(id any) (any, error) {
	if e.id == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrIDNotFound, e.name)
	}
	if e.id.converter != nil {
		var err error
		if id, err = e.id.converter.ToStorage(id); err != nil {
			return nil, fmt.Errorf("%w: identifier: %w", ErrConversion, err)
		}
	}
	return core.Normalize(id), nil
}

// SetID assigns id to the identifier field of the entity pointed to by
// entity (a pointer to struct, or a core.Record).
func (e *Entity) SetID(entity any, id any) error {
	if e.id == nil {
		return fmt.Errorf("%w: %s", core.ErrIDNotFound, e.name)
	}
	if rec, ok := entity.(core.Record); ok {
		rec[e.id.Key] = core.Normalize(id)
		return nil
	}
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != e.typ {
		return fmt.Errorf("%w: SetID needs *%s, got %T", ErrTypeMismatch, e.typ.Name(), entity)
	}
	return assign(rv.Elem().FieldByIndex(e.id.index), id)
}

func (e *Entity) structValue(entity any) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: entity", core.ErrNilArgument)
		}
		rv = rv.Elem()
	}
	if rv.Type() != e.typ {
		return reflect.Value{}, fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, e.typ, rv.Type())
	}
	return rv, nil
}

func (e *Entity) recordToStorage(entity any) (core.Record, error) {
	var in map[string]any
	switch r := entity.(type) {
	case core.Record:
		in = r
	case map[string]any:
		in = r
	case *core.Record:
		if r == nil {
			return nil, fmt.Errorf("%w: entity", core.ErrNilArgument)
		}
		in = *r
	default:
		return nil, fmt.Errorf("%w: want core.Record, got %T", ErrTypeMismatch, entity)
	}
	out := make(core.Record, len(in))
	for k, v := range in {
		key := k
		if f, ok := e.byName[k]; ok {
			key = f.Key
		}
		out[key] = core.Normalize(v)
	}
	for key, f := range e.byKey {
		if f.converter == nil {
			continue
		}
		v, ok := out[key]
		if !ok {
			continue
		}
		cv, err := f.converter.ToStorage(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[key] = core.Normalize(cv)
	}
	return out, nil
}

func (e *Entity) recordFromStorage(rec core.Record) (core.Record, error) {
	out := make(core.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for key, f := range e.byKey {
		if f.converter == nil {
			continue
		}
		v, ok := out[key]
		if !ok {
			continue
		}
		cv, err := f.converter.FromStorage(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[key] = cv
	}
	return out, nil
}

func encodeFields(rv reflect.Value, fields []*Field) (core.Record, error) {
	rec := make(core.Record, len(fields))
	for _, f := range fields {
		fv := rv.FieldByIndex(f.index)
		if f.Kind == FieldRecord {
			nested, err := encodeFields(fv, f.children)
			if err != nil {
				return nil, err
			}
			rec[f.segment] = nested
			continue
		}
		raw := fv.Interface()
		if f.converter != nil {
			var err error
			if raw, err = f.converter.ToStorage(raw); err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		val, err := encodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		rec[f.segment] = val
	}
	return rec, nil
}

// encodeValue normalizes a value, encoding structs nested in collections as records.
func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeValue(rv.Elem().Interface())
	case reflect.Struct:
		if rv.Type() == timeType {
			return v, nil
		}
		fields, err := structFields(rv.Type())
		if err != nil {
			return nil, err
		}
		return encodeFields(rv, fields)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && (rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8) {
			return core.Normalize(v), nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			ev, err := encodeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return core.Normalize(v), nil
		}
		out := make(core.Record, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ev, err := encodeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = ev
		}
		return out, nil
	}
	return core.Normalize(v), nil
}

func decodeFields(rv reflect.Value, fields []*Field, rec map[string]any) error {
	for _, f := range fields {
		raw, ok := rec[f.segment]
		if !ok {
			continue
		}
		fv := rv.FieldByIndex(f.index)
		if f.Kind == FieldRecord {
			if sub, ok := asMap(raw); ok {
				if err := decodeFields(fv, f.children, sub); err != nil {
					return err
				}
			}
			continue
		}
		if f.converter != nil {
			var err error
			if raw, err = f.converter.FromStorage(raw); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

// structFieldCache holds parsed field lists for struct types met inside
// collections. Entries are immutable once stored.
var structFieldCache sync.Map

func structFields(t reflect.Type) ([]*Field, error) {
	if cached, ok := structFieldCache.Load(t); ok {
		return cached.([]*Field), nil
	}
	fields, err := parseStruct(t, "", "", nil, BuiltinConverters())
	if err != nil {
		return nil, err
	}
	actual, _ := structFieldCache.LoadOrStore(t, fields)
	return actual.([]*Field), nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case core.Record:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

// assign stores a storage value into dst, converting between the
// normalized storage forms and the field's Go type. dst must be
// addressable.
func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tagName,
		Squash:           true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			unixNanoToTime,
			checkNumberRange,
			decodeNestedStruct,
		),
		Result: dst.Addr().Interface(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, ErrConversion) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConversion, err)
	}
	return nil
}

// unixNanoToTime reads integer timestamps as Unix nanoseconds.
func unixNanoToTime(from, to reflect.Type, data any) (any, error) {
	if to != timeType || from.Kind() != reflect.Int64 {
		return data, nil
	}
	return time.Unix(0, reflect.ValueOf(data).Int()).UTC(), nil
}

// decodeNestedStruct decodes maps into struct types met inside
// collections with the same field rules as the entity itself, so keys,
// converters and embedding match what encodeFields wrote.
func decodeNestedStruct(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Struct || to == timeType {
		return data, nil
	}
	m, ok := asMap(data)
	if !ok {
		return data, nil
	}
	fields, err := structFields(to)
	if err != nil {
		return nil, err
	}
	out := reflect.New(to).Elem()
	if err := decodeFields(out, fields, m); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// checkNumberRange rejects numbers that would be truncated or wrapped on
// their way into an integer field.
func checkNumberRange(from, to reflect.Type, data any) (any, error) {
	v := reflect.ValueOf(data)
	switch {
	case isInt(to.Kind()):
		var n int64
		switch {
		case isInt(from.Kind()):
			n = v.Int()
		case isUint(from.Kind()):
			if v.Uint() > math.MaxInt64 {
				return nil, fmt.Errorf("%w: %v overflows %s", ErrConversion, data, to)
			}
			n = int64(v.Uint())
		case isFloat(from.Kind()):
			f := v.Float()
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("%w: %v is not integral", ErrConversion, data)
			}
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return nil, fmt.Errorf("%w: %v overflows %s", ErrConversion, data, to)
			}
			n = int64(f)
		default:
			return data, nil
		}
		if reflect.New(to).Elem().OverflowInt(n) {
			return nil, fmt.Errorf("%w: %d overflows %s", ErrConversion, n, to)
		}
	case isUint(to.Kind()):
		var n uint64
		switch {
		case isInt(from.Kind()):
			if v.Int() < 0 {
				return nil, fmt.Errorf("%w: %d is negative", ErrConversion, v.Int())
			}
			n = uint64(v.Int())
		case isUint(from.Kind()):
			n = v.Uint()
		case isFloat(from.Kind()):
			f := v.Float()
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("%w: %v is not integral", ErrConversion, data)
			}
			if f < 0 {
				return nil, fmt.Errorf("%w: %v is negative", ErrConversion, data)
			}
			if f >= math.MaxUint64 {
				return nil, fmt.Errorf("%w: %v overflows %s", ErrConversion, data, to)
			}
			n = uint64(f)
		default:
			return data, nil
		}
		if reflect.New(to).Elem().OverflowUint(n) {
			return nil, fmt.Errorf("%w: %d overflows %s", ErrConversion, n, to)
		}
	}
	return data, nil
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
