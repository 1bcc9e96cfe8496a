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

import "fmt"

// ValidateQuery validates a Query before it is handed to a backend.
//
// Validation rules:
//   - Target must not be empty
//   - Page offset and limit must not be negative
//   - Every sort key must be non-empty
//   - The condition tree must be well formed (see ValidateCondition)
func ValidateQuery(q *Query) error {
	if q == nil {
		return fmt.Errorf("%w: query", ErrNilArgument)
	}
	if q.Target == "" {
		return fmt.Errorf("%w: target is empty", ErrInvalidQuery)
	}
	if q.Page.Offset < 0 || q.Page.Limit < 0 {
		return fmt.Errorf("%w: negative page window (offset %d, limit %d)", ErrInvalidQuery, q.Page.Offset, q.Page.Limit)
	}
	for i, o := range q.Sort {
		if o.Key == "" {
			return fmt.Errorf("%w: sort key %d is empty", ErrInvalidQuery, i)
		}
	}
	return ValidateCondition(q.Where)
}

// ValidateDeleteQuery validates a DeleteQuery before it is handed to a backend.
func ValidateDeleteQuery(q *DeleteQuery) error {
	if q == nil {
		return fmt.Errorf("%w: delete query", ErrNilArgument)
	}
	if q.Target == "" {
		return fmt.Errorf("%w: target is empty", ErrInvalidQuery)
	}
	return ValidateCondition(q.Where)
}

// ValidateCondition checks that a condition tree is well formed.
//
// Validation rules:
//   - Leaves carry a non-empty key and exactly Op.Arity() operands
//   - Combinators are AND or OR and have both children
//
// A nil tree is valid and matches everything.
func ValidateCondition(c Condition) error {
	var err error
	Walk(c, func(n Condition) bool {
		switch node := n.(type) {
		case *Leaf:
			if node.Key == "" {
				err = fmt.Errorf("%w: leaf has empty key", ErrInvalidQuery)
				return false
			}
			if node.Op < OpEquals || node.Op > OpBetween {
				err = fmt.Errorf("%w: unknown operator %d on %q", ErrInvalidQuery, int(node.Op), node.Key)
				return false
			}
			if len(node.Operands) != node.Op.Arity() {
				err = fmt.Errorf("%w: %s on %q needs %d operands, has %d",
					ErrInvalidQuery, node.Op, node.Key, node.Op.Arity(), len(node.Operands))
				return false
			}
		case *Combinator:
			if node.Kind != And && node.Kind != Or {
				err = fmt.Errorf("%w: unknown connector %d", ErrInvalidQuery, int(node.Kind))
				return false
			}
			if node.Left == nil || node.Right == nil {
				err = fmt.Errorf("%w: %s combinator is missing a child", ErrInvalidQuery, node.Kind)
				return false
			}
		}
		return true
	})
	return err
}
