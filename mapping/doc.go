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

// Package mapping describes how entities are laid out in storage.
//
// An Entity is built either from a Go struct (FromStruct) or from a YAML
// schema (LoadSchema). It answers the questions the query compiler asks
// (storage name, logical name to storage key, identifier, converters) and
// converts entities to and from core.Record.
//
//	type Person struct {
//	    ID      string `repo:",id"`
//	    Name    string `repo:"name,convert=upper"`
//	    Age     int
//	    Address Address
//	}
//
//	people := mapping.MustFromStruct[Person](mapping.WithStorageName("people"))
//	people.ResolveStorageKey("addressCity") // "address.city"
package mapping
