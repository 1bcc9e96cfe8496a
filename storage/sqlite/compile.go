package sqlite

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/storage"
)

// timeLayout is fixed width so stored times compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Compile translates a query into parameterized SQL over the records table.
// Every value, including JSON paths, is bound as a parameter. Rows come
// back ordered by q.Sort with insertion order as the final tiebreaker.
func Compile(q *core.Query) (string, []any, error) {
	if err := core.ValidateQuery(q); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	params := []any{q.Target}
	sb.WriteString("SELECT seq, doc FROM records WHERE target = ?")
	if q.Where != nil {
		where, whereParams, err := compileCondition(q.Where)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND ")
		sb.WriteString(where)
		params = append(params, whereParams...)
	}

	sb.WriteString(" ORDER BY ")
	for _, o := range q.Sort {
		sb.WriteString("json_extract(doc, ?) ")
		sb.WriteString(o.Direction.String())
		sb.WriteString(", ")
		params = append(params, jsonPath(o.Key))
	}
	sb.WriteString("seq ASC")

	switch {
	case q.Page.Limit > 0:
		sb.WriteString(" LIMIT ?")
		params = append(params, q.Page.Limit)
	case q.Page.Offset > 0:
		// SQLite requires a LIMIT before OFFSET; -1 means no limit.
		sb.WriteString(" LIMIT -1")
	}
	if q.Page.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		params = append(params, q.Page.Offset)
	}
	return sb.String(), params, nil
}

// CompileDelete translates a delete query into parameterized SQL.
func CompileDelete(q *core.DeleteQuery) (string, []any, error) {
	if err := core.ValidateDeleteQuery(q); err != nil {
		return "", nil, err
	}
	sql := "DELETE FROM records WHERE target = ?"
	params := []any{q.Target}
	if q.Where != nil {
		where, whereParams, err := compileCondition(q.Where)
		if err != nil {
			return "", nil, err
		}
		sql += " AND " + where
		params = append(params, whereParams...)
	}
	return sql, params, nil
}

func compileCondition(c core.Condition) (string, []any, error) {
	switch node := c.(type) {
	case *core.Leaf:
		return compileLeaf(node)
	case *core.Combinator:
		left, leftParams, err := compileCondition(node.Left)
		if err != nil {
			return "", nil, err
		}
		right, rightParams, err := compileCondition(node.Right)
		if err != nil {
			return "", nil, err
		}
		sql := "(" + left + " " + node.Kind.String() + " " + right + ")"
		return sql, append(leftParams, rightParams...), nil
	default:
		return "", nil, fmt.Errorf("%w: unknown condition %T", core.ErrInvalidQuery, c)
	}
}

func compileLeaf(l *core.Leaf) (string, []any, error) {
	path := jsonPath(l.Key)
	operands := make([]any, len(l.Operands))
	for i, v := range l.Operands {
		p, err := sqlParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("%s on %q: %w", l.Op, l.Key, err)
		}
		operands[i] = p
	}

	switch l.Op {
	case core.OpEquals:
		if operands[0] == nil {
			// Present and null; a missing key does not match.
			return "json_type(doc, ?) = 'null'", []any{path}, nil
		}
		return "json_extract(doc, ?) = ?", []any{path, operands[0]}, nil
	case core.OpLike:
		if _, ok := operands[0].(string); !ok {
			return "", nil, fmt.Errorf("%w: LIKE pattern must be a string, got %T", core.ErrInvalidQuery, l.Operands[0])
		}
		return "json_extract(doc, ?) LIKE ?", []any{path, operands[0]}, nil
	case core.OpGreaterThan, core.OpGreaterThanEqual, core.OpLessThan, core.OpLessThanEqual:
		return "json_extract(doc, ?) " + l.Op.String() + " ?", []any{path, operands[0]}, nil
	case core.OpBetween:
		return "json_extract(doc, ?) BETWEEN ? AND ?", []any{path, operands[0], operands[1]}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown operator %v", core.ErrInvalidQuery, l.Op)
	}
}

// jsonPath renders a dotted storage key as a quoted SQLite JSON path.
func jsonPath(key string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, part := range strings.Split(key, ".") {
		sb.WriteString(".")
		sb.WriteString(strconv.Quote(part))
	}
	return sb.String()
}

// sqlParam converts a normalized scalar to the form it takes inside a
// stored document, so comparisons in SQL agree with the stored JSON.
func sqlParam(v any) (any, error) {
	switch t := core.Normalize(v).(type) {
	case nil, string, int64, float64:
		return t, nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case uint64:
		return float64(t), nil
	case time.Time:
		return t.UTC().Format(timeLayout), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(t), nil
	default:
		return nil, fmt.Errorf("%w: %T cannot be compared in SQL", storage.ErrUnsupportedValue, v)
	}
}
