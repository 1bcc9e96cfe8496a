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

// Package derive compiles derived method names into queries.
//
// A name such as findByNameAndAgeBetweenOrderByAgeDesc is split into
// tokens (Name, And:AgeBetween, OrderBy:AgeDesc). Predicate tokens become
// leaves of a left-associated condition tree, each consuming one operand
// (two for Between) from the call arguments in order. OrderBy tokens
// accumulate sort keys. Arguments left over after the operands are scanned
// for core.Sort, core.Order and core.Page values.
//
// Operators are chosen by suffix: Between, LessThanEqual,
// GreaterThanEqual, LessThan, GreaterThan, Like. A predicate without a
// suffix compares for equality.
//
//	c, _ := derive.NewCompiler(people)
//	q, err := c.Query("findByNameOrAgeGreaterThan", "Ada", 30, core.Limit(10))
//	// SELECT FROM people WHERE (name = Ada OR age > 30) LIMIT 10
package derive
