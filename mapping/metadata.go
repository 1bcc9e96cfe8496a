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

package mapping

import (
	"reflect"

	"github.com/poiesic/reposit/core"
)

// Metadata is the per-entity schema the query compiler consumes.
// Implementations must be immutable after construction and safe for
// concurrent reads.
type Metadata interface {
	// StorageName is the backend-facing name of the entity's collection or table.
	StorageName() string

	// ResolveStorageKey maps a logical field name to its storage key.
	// Names of sub-record members (e.g. "addressCity") resolve to dotted
	// keys ("address.city"). Unknown names resolve to themselves.
	ResolveStorageKey(name string) string

	// IdentifierField returns the identifier field, if the entity declares one.
	IdentifierField() (Field, bool)

	// ValueConverter returns the converter declared on a field, if any.
	ValueConverter(name string) (Converter, bool)
}

// FieldKind classifies how a field is stored.
type FieldKind int

const (
	// FieldValue is a scalar stored under its own key.
	FieldValue FieldKind = iota
	// FieldRecord is a struct stored as a nested sub-record.
	FieldRecord
	// FieldCollection is a slice stored as a list.
	FieldCollection
)

// Field describes one mapped field.
type Field struct {
	// Name is the logical name: the Go field name with its first rune
	// lower-cased, prefixed by the parent's name for sub-record members.
	Name string
	// Key is the full storage key, dotted for sub-record members.
	Key string
	// Kind is the storage shape.
	Kind FieldKind
	// ID marks the identifier field.
	ID bool
	// Type is the Go type of the field. Nil for schema-defined fields.
	Type reflect.Type

	local     string
	alias     string
	segment   string
	index     []int
	converter Converter
	children  []*Field
}

// Converter returns the field's value converter, or nil.
func (f Field) Converter() Converter {
	return f.converter
}

// Entity is the Metadata implementation for struct-backed and
// schema-defined entities. It also converts entities to and from records.
type Entity struct {
	name    string
	storage string
	typ     reflect.Type
	fields  []*Field
	byName  map[string]*Field
	byKey   map[string]*Field
	id      *Field
}

var _ Metadata = (*Entity)(nil)

// Name returns the entity's logical name.
func (e *Entity) Name() string {
	return e.name
}

// StorageName returns the backend-facing collection name.
func (e *Entity) StorageName() string {
	return e.storage
}

// Type returns the Go type instances are materialized as. Schema-defined
// entities are materialized as core.Record.
func (e *Entity) Type() reflect.Type {
	return e.typ
}

// IsRecord reports whether the entity is schema-defined and materialized as core.Record.
func (e *Entity) IsRecord() bool {
	return e.typ == recordType
}

// Fields returns every mapped field, sub-record members included, in declaration order.
func (e *Entity) Fields() []Field {
	var out []Field
	var visit func(fs []*Field)
	visit = func(fs []*Field) {
		for _, f := range fs {
			out = append(out, *f)
			visit(f.children)
		}
	}
	visit(e.fields)
	return out
}

// Field returns the field with the given logical name.
func (e *Entity) Field(name string) (Field, bool) {
	f, ok := e.byName[name]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// ResolveStorageKey maps a logical name to its storage key.
func (e *Entity) ResolveStorageKey(name string) string {
	if f, ok := e.byName[name]; ok {
		return f.Key
	}
	return name
}

// IdentifierField returns the identifier field.
func (e *Entity) IdentifierField() (Field, bool) {
	if e.id == nil {
		return Field{}, false
	}
	return *e.id, true
}

// ValueConverter returns the converter declared on a field.
func (e *Entity) ValueConverter(name string) (Converter, bool) {
	f, ok := e.byName[name]
	if !ok || f.converter == nil {
		return nil, false
	}
	return f.converter, true
}

// index registers fields by logical name and storage key.
func (e *Entity) index() {
	e.byName = make(map[string]*Field)
	e.byKey = make(map[string]*Field)
	var visit func(fs []*Field)
	visit = func(fs []*Field) {
		for _, f := range fs {
			e.byName[f.Name] = f
			if f.alias != "" {
				if _, taken := e.byName[f.alias]; !taken {
					e.byName[f.alias] = f
				}
			}
			e.byKey[f.Key] = f
			if f.ID && e.id == nil {
				e.id = f
			}
			visit(f.children)
		}
	}
	visit(e.fields)
}

var recordType = reflect.TypeFor[core.Record]()
