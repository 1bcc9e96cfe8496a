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

// Package storage provides the storage abstraction layer for reposit.
//
// Backends receive structured queries (core.Query, core.DeleteQuery) and
// return ordered core.Record slices. Each backend translates condition
// leaves into its own filter language; backends without a query language
// of their own evaluate conditions in process with Match and Run.
//
// # Optional capabilities
//
// Beyond Backend, implementations may provide:
//
//   - AsyncBackend: non-blocking select and delete with completion callbacks
//   - TTLBackend: records that expire
//   - NativeBackend: queries written in the backend's own language
//
// Callers detect capabilities with a type assertion and report
// core.ErrUnsupported when one is missing.
//
// # Records
//
// Records hold normalized values (see core.Normalize). Backends that store
// opaque bytes encode records with MarshalRecord, a compact mus-go
// encoding with sorted keys.
//
// # Thread Safety
//
// All backend implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
