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
	"fmt"
	"reflect"
	"sort"
)

// Registry is an immutable set of entities, built once and safe for
// concurrent reads.
type Registry struct {
	byName    map[string]*Entity
	byStorage map[string]*Entity
	byType    map[reflect.Type]*Entity
	ordered   []*Entity
}

// NewRegistry indexes entities by name, storage name and Go type.
// Record-backed entities are not indexed by type.
func NewRegistry(entities ...*Entity) (*Registry, error) {
	r := &Registry{
		byName:    make(map[string]*Entity, len(entities)),
		byStorage: make(map[string]*Entity, len(entities)),
		byType:    make(map[reflect.Type]*Entity, len(entities)),
	}
	for _, e := range entities {
		if e == nil {
			continue
		}
		if _, dup := r.byName[e.name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, e.name)
		}
		if _, dup := r.byStorage[e.storage]; dup {
			return nil, fmt.Errorf("%w: storage name %s", ErrDuplicateEntity, e.storage)
		}
		r.byName[e.name] = e
		r.byStorage[e.storage] = e
		if !e.IsRecord() {
			if _, dup := r.byType[e.typ]; dup {
				return nil, fmt.Errorf("%w: type %s", ErrDuplicateEntity, e.typ)
			}
			r.byType[e.typ] = e
		}
		r.ordered = append(r.ordered, e)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].name < r.ordered[j].name })
	return r, nil
}

// Entity returns the entity with the given logical or storage name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	if e, ok := r.byName[name]; ok {
		return e, true
	}
	e, ok := r.byStorage[name]
	return e, ok
}

// Lookup returns the entity registered for a Go type. Pointer types are dereferenced.
func (r *Registry) Lookup(t reflect.Type) (*Entity, bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	e, ok := r.byType[t]
	return e, ok
}

// Entities returns all entities sorted by name.
func (r *Registry) Entities() []*Entity {
	return append([]*Entity(nil), r.ordered...)
}

// With returns a new registry holding r's entities plus extra.
func (r *Registry) With(extra ...*Entity) (*Registry, error) {
	return NewRegistry(append(r.Entities(), extra...)...)
}

// For returns the entity registered for T.
func For[T any](r *Registry) (*Entity, bool) {
	return r.Lookup(reflect.TypeFor[T]())
}
