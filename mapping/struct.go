package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const tagName = "repo"

// Option configures entity construction.
type Option func(*options)

type options struct {
	name       string
	storage    string
	converters map[string]Converter
}

// WithName overrides the entity's logical name.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithStorageName overrides the entity's storage name.
func WithStorageName(name string) Option {
	return func(o *options) {
		o.storage = name
	}
}

// WithConverter registers a named converter usable in `convert=` tags and schema fields.
func WithConverter(name string, c Converter) Option {
	return func(o *options) {
		o.converters[name] = c
	}
}

func newOptions(opts []Option) *options {
	o := &options{converters: BuiltinConverters()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// storageNamer lets an entity type declare its own storage name.
type storageNamer interface {
	StorageName() string
}

// FromStruct builds metadata for struct type T from its `repo` tags.
//
// Tag format: `repo:"key,id,convert=name"`. All parts are optional:
//   - key overrides the storage key (default: the Go name with its leading
//     capitals lower-cased, so ID -> id and UserID -> userID)
//   - id marks the identifier field (default: a field named ID or Id)
//   - convert names a converter applied to the field's values
//   - `repo:"-"` skips the field
//
// Anonymous embedded structs are flattened into the parent. Named struct
// fields (other than time.Time) become sub-records; their members resolve
// by concatenated logical name ("address" + "City" -> "addressCity") to a
// dotted key ("address.city"). Slices other than []byte are collections.
//
// The storage name is, in order: WithStorageName, a StorageName() method
// on T, the logical name.
func FromStruct[T any](opts ...Option) (*Entity, error) {
	return FromType(reflect.TypeFor[T](), opts...)
}

// FromType is FromStruct for a reflect.Type.
func FromType(t reflect.Type, opts ...Option) (*Entity, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t == timeType {
		return nil, fmt.Errorf("%w: %v", ErrNotStruct, t)
	}
	o := newOptions(opts)

	fields, err := parseStruct(t, "", "", nil, o.converters)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", t.Name(), err)
	}

	e := &Entity{
		name:   lowerFirst(t.Name()),
		typ:    t,
		fields: fields,
	}
	if o.name != "" {
		e.name = o.name
	}
	e.storage = e.name
	if sn, ok := reflect.New(t).Interface().(storageNamer); ok && sn.StorageName() != "" {
		e.storage = sn.StorageName()
	}
	if o.storage != "" {
		e.storage = o.storage
	}

	e.index()
	if e.id == nil {
		for _, f := range e.fields {
			if f.local == "iD" || f.local == "id" {
				f.ID = true
				e.id = f
				break
			}
		}
	}
	return e, nil
}

// MustFromStruct is FromStruct that panics on error. Intended for package-level registries.
func MustFromStruct[T any](opts ...Option) *Entity {
	e, err := FromStruct[T](opts...)
	if err != nil {
		panic(err)
	}
	return e
}

func parseStruct(t reflect.Type, namePrefix, keyPrefix string, index []int, converters map[string]Converter) ([]*Field, error) {
	var fields []*Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get(tagName)
		if tag == "-" {
			continue
		}
		key, id, convName := parseTag(tag)
		fieldIndex := append(append([]int(nil), index...), i)

		ft := sf.Type
		// Exported members of embedded structs are promoted even when the
		// embedded type itself is unexported.
		if sf.Anonymous && ft.Kind() == reflect.Struct && ft != timeType && key == "" {
			embedded, err := parseStruct(ft, namePrefix, keyPrefix, fieldIndex, converters)
			if err != nil {
				return nil, err
			}
			fields = append(fields, embedded...)
			continue
		}
		if !sf.IsExported() {
			continue
		}

		local := lowerFirst(sf.Name)
		if key == "" {
			key = lowerInitialism(sf.Name)
		}
		f := &Field{
			Name:    joinName(namePrefix, local),
			Key:     joinKey(keyPrefix, key),
			ID:      id,
			Type:    ft,
			local:   local,
			segment: key,
			index:   fieldIndex,
		}
		if alias := lowerInitialism(sf.Name); alias != local {
			f.alias = joinName(namePrefix, alias)
		}
		if convName != "" {
			c, ok := converters[convName]
			if !ok {
				return nil, fmt.Errorf("%w: %q on field %s", ErrUnknownConverter, convName, sf.Name)
			}
			f.converter = c
		}

		switch {
		case ft.Kind() == reflect.Struct && ft != timeType:
			f.Kind = FieldRecord
			children, err := parseStruct(ft, f.Name, f.Key, nil, converters)
			if err != nil {
				return nil, err
			}
			f.children = children
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8:
			f.Kind = FieldCollection
		default:
			f.Kind = FieldValue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseTag(tag string) (key string, id bool, converter string) {
	if tag == "" {
		return "", false, ""
	}
	parts := strings.Split(tag, ",")
	key = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "id":
			id = true
		case strings.HasPrefix(p, "convert="):
			converter = strings.TrimPrefix(p, "convert=")
		}
	}
	return key, id, converter
}

func joinName(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + upperFirst(local)
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// lowerInitialism lower-cases a leading run of capitals, keeping the last
// one when it starts a word: ID -> id, URLPath -> urlPath, UserID -> userID.
func lowerInitialism(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return s
	case n == 1 || n == len(runes):
	default:
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

var timeType = reflect.TypeFor[time.Time]()
