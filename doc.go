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

// Package reposit builds repositories from method names.
//
// A repository is a struct of func-typed fields. Each field name is read
// as a query: FindByNameAndAgeGreaterThan selects records whose name
// equals the first argument and whose age exceeds the second;
// DeleteByEmailLike removes the matches of a LIKE pattern. Bind compiles
// every name once and fills the fields:
//
//	type People struct {
//	    FindByName   func(ctx context.Context, name string) ([]Person, error)
//	    FindByID     func(ctx context.Context, id string) (*Person, error)
//	    DeleteByName func(ctx context.Context, name string) error
//	}
//
//	store, err := reposit.Open(reposit.WithPath("data"))
//	...
//	var people People
//	err = reposit.Bind[Person](store, &people)
//
// The declared result type picks the result shape: a slice, a single
// value or pointer, core.Optional, a set, core.Queue or an iter.Seq.
//
// Records are stored in BadgerDB (the default) or SQLite; see
// storage/badger and storage/sqlite. Field-to-key mapping is described in
// package mapping and name parsing in package derive.
package reposit
