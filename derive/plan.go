package derive

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/mapping"
)

type predicate struct {
	connector core.Connector // zero for the first predicate
	field     string
	key       string
	op        core.Operator
	converter mapping.Converter
}

// Plan is a method name compiled once: its predicates with resolved keys,
// operators and converters, plus any name-encoded sort. Plans are
// immutable and safe for concurrent use.
type Plan struct {
	method     string
	form       Form
	target     string
	tokens     []Token
	predicates []predicate
	sort       core.Sort
	arity      int
	logger     *slog.Logger
}

// Method returns the method name the plan was compiled from.
func (p *Plan) Method() string {
	return p.method
}

// Form returns whether the plan selects or deletes.
func (p *Plan) Form() Form {
	return p.form
}

// Tokens returns the tokens the name was split into.
func (p *Plan) Tokens() []Token {
	return append([]Token(nil), p.tokens...)
}

// Arity is the number of arguments the predicates consume.
func (p *Plan) Arity() int {
	return p.arity
}

// Select binds args to a select plan. Arguments past the predicates'
// operands are scanned for sort and page descriptors.
func (p *Plan) Select(args []any) (*core.Query, error) {
	if p.form != FormSelect {
		return nil, fmt.Errorf("%w: %s: not a select method", core.ErrDynamicQuery, p.method)
	}
	where, cursor, err := p.bind(args)
	if err != nil {
		return nil, err
	}
	q := core.Select(p.target).Filter(where)
	q.Sort = append(core.Sort(nil), p.sort...)
	applyTail(q, p.method, args[cursor:], p.logger)
	return q, nil
}

// Delete binds args to a delete plan. Extra arguments are ignored.
func (p *Plan) Delete(args []any) (*core.DeleteQuery, error) {
	if p.form != FormDelete {
		return nil, fmt.Errorf("%w: %s: not a delete method", core.ErrDynamicQuery, p.method)
	}
	where, cursor, err := p.bind(args)
	if err != nil {
		return nil, err
	}
	if extra := len(args) - cursor; extra > 0 {
		p.logger.Debug("ignoring trailing arguments", "method", p.method, "count", extra)
	}
	return core.Delete(p.target).Filter(where), nil
}

// bind builds the left-associated condition tree, consuming operands from
// args. It returns the index of the first unconsumed argument.
func (p *Plan) bind(args []any) (core.Condition, int, error) {
	var acc core.Condition
	cursor := 0
	for _, pred := range p.predicates {
		arity := pred.op.Arity()
		if cursor+arity > len(args) {
			return nil, 0, fmt.Errorf("%w: %s: %s %s needs %d argument(s), only %d supplied",
				core.ErrDynamicQuery, p.method, pred.field, pred.op, arity, len(args)-cursor)
		}
		operands := make([]any, arity)
		for i := range operands {
			v := args[cursor+i]
			if pred.converter != nil {
				cv, err := pred.converter.ToStorage(v)
				if err != nil {
					return nil, 0, fmt.Errorf("%w: %s: converting %s: %w", core.ErrDynamicQuery, p.method, pred.field, err)
				}
				v = cv
			}
			operands[i] = core.Normalize(v)
		}
		cursor += arity

		leaf := &core.Leaf{Key: pred.key, Op: pred.op, Operands: operands}
		if pred.connector == 0 {
			acc = leaf
			continue
		}
		acc = &core.Combinator{Kind: pred.connector, Left: acc, Right: leaf}
	}
	return acc, cursor, nil
}

// String renders the plan with placeholders for operands.
func (p *Plan) String() string {
	var sb strings.Builder
	sb.WriteString(strings.ToUpper(p.form.String()))
	sb.WriteString(" FROM ")
	sb.WriteString(p.target)
	if len(p.predicates) > 0 {
		sb.WriteString(" WHERE ")
		for i, pred := range p.predicates {
			if i > 0 {
				sb.WriteString(" " + pred.connector.String() + " ")
			}
			sb.WriteString(pred.key + " " + pred.op.String() + " ?")
			if pred.op == core.OpBetween {
				sb.WriteString(" AND ?")
			}
		}
	}
	if len(p.sort) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(p.sort.String())
	}
	return sb.String()
}
