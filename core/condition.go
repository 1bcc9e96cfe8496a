package core

import "fmt"

// Operator is the comparison applied by a Leaf.
type Operator int

const (
	// OpEquals matches values equal to the operand.
	OpEquals Operator = iota + 1
	// OpLike matches strings against a SQL-style pattern (% and _ wildcards).
	OpLike
	// OpGreaterThan matches values strictly greater than the operand.
	OpGreaterThan
	// OpGreaterThanEqual matches values greater than or equal to the operand.
	OpGreaterThanEqual
	// OpLessThan matches values strictly less than the operand.
	OpLessThan
	// OpLessThanEqual matches values less than or equal to the operand.
	OpLessThanEqual
	// OpBetween matches values inside the inclusive range [lower, upper].
	OpBetween
)

// Arity returns the number of operands the operator consumes.
func (o Operator) Arity() int {
	if o == OpBetween {
		return 2
	}
	return 1
}

// String returns the operator's symbolic form.
func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "="
	case OpLike:
		return "LIKE"
	case OpGreaterThan:
		return ">"
	case OpGreaterThanEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanEqual:
		return "<="
	case OpBetween:
		return "BETWEEN"
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

// Connector joins two conditions.
type Connector int

const (
	// And requires both sides to match.
	And Connector = iota + 1
	// Or requires either side to match.
	Or
)

func (c Connector) String() string {
	switch c {
	case And:
		return "AND"
	case Or:
		return "OR"
	default:
		return fmt.Sprintf("Connector(%d)", int(c))
	}
}

// Condition is a node of a condition tree.
//
// This is a sealed interface: only *Leaf and *Combinator implement it, so
// backends can translate a tree with an exhaustive type switch.
type Condition interface {
	conditionNode()
	String() string
}

// Leaf compares the value stored under Key with one or two operands.
// For OpBetween, Operands[0] is the lower bound and Operands[1] the upper
// bound, in the order they were supplied.
type Leaf struct {
	Key      string
	Op       Operator
	Operands []any
}

func (*Leaf) conditionNode() {}

// Value returns the first operand, or nil when there is none.
func (l *Leaf) Value() any {
	if len(l.Operands) == 0 {
		return nil
	}
	return l.Operands[0]
}

func (l *Leaf) String() string {
	if l.Op == OpBetween && len(l.Operands) == 2 {
		return fmt.Sprintf("%s BETWEEN %v AND %v", l.Key, l.Operands[0], l.Operands[1])
	}
	return fmt.Sprintf("%s %s %v", l.Key, l.Op, l.Value())
}

// Combinator joins two subtrees with AND or OR.
type Combinator struct {
	Kind  Connector
	Left  Condition
	Right Condition
}

func (*Combinator) conditionNode() {}

func (c *Combinator) String() string {
	return "(" + nodeString(c.Left) + " " + c.Kind.String() + " " + nodeString(c.Right) + ")"
}

func nodeString(c Condition) string {
	if c == nil {
		return "<nil>"
	}
	return c.String()
}

// Eq builds an equality leaf.
func Eq(key string, value any) *Leaf {
	return &Leaf{Key: key, Op: OpEquals, Operands: []any{value}}
}

// Like builds a pattern leaf.
func Like(key string, pattern string) *Leaf {
	return &Leaf{Key: key, Op: OpLike, Operands: []any{pattern}}
}

// Gt builds a greater-than leaf.
func Gt(key string, value any) *Leaf {
	return &Leaf{Key: key, Op: OpGreaterThan, Operands: []any{value}}
}

// Gte builds a greater-than-or-equal leaf.
func Gte(key string, value any) *Leaf {
	return &Leaf{Key: key, Op: OpGreaterThanEqual, Operands: []any{value}}
}

// Lt builds a less-than leaf.
func Lt(key string, value any) *Leaf {
	return &Leaf{Key: key, Op: OpLessThan, Operands: []any{value}}
}

// Lte builds a less-than-or-equal leaf.
func Lte(key string, value any) *Leaf {
	return &Leaf{Key: key, Op: OpLessThanEqual, Operands: []any{value}}
}

// Between builds an inclusive range leaf. The bounds are kept in argument order.
func Between(key string, lower, upper any) *Leaf {
	return &Leaf{Key: key, Op: OpBetween, Operands: []any{lower, upper}}
}

// AndOf left-folds conditions with AND. Nil conditions are skipped.
func AndOf(conds ...Condition) Condition {
	return fold(And, conds)
}

// OrOf left-folds conditions with OR. Nil conditions are skipped.
func OrOf(conds ...Condition) Condition {
	return fold(Or, conds)
}

func fold(kind Connector, conds []Condition) Condition {
	var acc Condition
	for _, c := range conds {
		if c == nil {
			continue
		}
		if acc == nil {
			acc = c
			continue
		}
		acc = &Combinator{Kind: kind, Left: acc, Right: c}
	}
	return acc
}

// Walk visits every node of the tree in depth-first, left-to-right order.
// Returning false from fn stops the walk.
func Walk(c Condition, fn func(Condition) bool) bool {
	if c == nil {
		return true
	}
	if !fn(c) {
		return false
	}
	if comb, ok := c.(*Combinator); ok {
		if !Walk(comb.Left, fn) {
			return false
		}
		return Walk(comb.Right, fn)
	}
	return true
}

// Leaves returns the leaves of the tree in token order.
func Leaves(c Condition) []*Leaf {
	var leaves []*Leaf
	Walk(c, func(n Condition) bool {
		if leaf, ok := n.(*Leaf); ok {
			leaves = append(leaves, leaf)
		}
		return true
	})
	return leaves
}

// Combinators counts the combinator nodes of the tree.
func Combinators(c Condition) int {
	count := 0
	Walk(c, func(n Condition) bool {
		if _, ok := n.(*Combinator); ok {
			count++
		}
		return true
	})
	return count
}

// conditionString renders an optional tree for Query.String.
func conditionString(c Condition) string {
	if c == nil {
		return ""
	}
	return c.String()
}
