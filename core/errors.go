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


package core

import "errors"

// Query derivation and dispatch errors
var (
	// ErrDynamicQuery indicates a method name or its arguments violate the
	// derived query contract: too few arguments for a predicate, a connector
	// with no preceding predicate, or an async find without a callback.
	ErrDynamicQuery = errors.New("dynamic query error")

	// ErrIDNotFound indicates an identifier-based operation was requested on
	// an entity that declares no identifier field.
	ErrIDNotFound = errors.New("entity has no identifier field")

	// ErrNonUniqueResult indicates a single-result query matched more than one record.
	ErrNonUniqueResult = errors.New("query returned more than one result")

	// ErrUnsupported indicates the storage backend lacks a requested capability.
	ErrUnsupported = errors.New("operation not supported by backend")

	// ErrNilArgument indicates a required argument was nil.
	ErrNilArgument = errors.New("required argument is nil")

	// ErrInvalidQuery indicates a structurally invalid Query or DeleteQuery.
	ErrInvalidQuery = errors.New("invalid query")
)
