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


// Package core defines the backend-agnostic query model shared by every
// other package: condition trees, sort and page windows, Query and
// DeleteQuery, the Record representation, result containers and the
// error taxonomy.
//
// A condition tree is built from *Leaf predicates joined by *Combinator
// nodes. Trees built from derived method names are left-associated in
// token order:
//
//	findByNameAndAgeBetweenOrActive(name, lo, hi, active)
//
// compiles to
//
//	((name = ? AND age BETWEEN ? AND ?) OR active = ?)
//
// Values, queries and trees are created per call and never shared, so
// nothing in this package needs synchronization.
package core
