package storage

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/reposit/core"
)

// Lookup returns the value under a dotted storage key, descending into
// sub-records.
func Lookup(rec core.Record, key string) (any, bool) {
	var cur any = rec
	for _, part := range strings.Split(key, ".") {
		var m map[string]any
		switch t := cur.(type) {
		case core.Record:
			m = t
		case map[string]any:
			m = t
		default:
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Match evaluates a condition tree against a record in process. A nil
// condition matches every record. Leaves on missing keys never match.
func Match(cond core.Condition, rec core.Record) (bool, error) {
	switch c := cond.(type) {
	case nil:
		return true, nil
	case *core.Combinator:
		left, err := Match(c.Left, rec)
		if err != nil {
			return false, err
		}
		switch c.Kind {
		case core.And:
			if !left {
				return false, nil
			}
		case core.Or:
			if left {
				return true, nil
			}
		default:
			return false, fmt.Errorf("%w: unknown connector %v", core.ErrInvalidQuery, c.Kind)
		}
		return Match(c.Right, rec)
	case *core.Leaf:
		return matchLeaf(c, rec)
	default:
		return false, fmt.Errorf("%w: unknown condition %T", core.ErrInvalidQuery, cond)
	}
}

func matchLeaf(l *core.Leaf, rec core.Record) (bool, error) {
	if len(l.Operands) != l.Op.Arity() {
		return false, fmt.Errorf("%w: %s takes %d operand(s)", core.ErrInvalidQuery, l.Op, l.Op.Arity())
	}
	v, ok := Lookup(rec, l.Key)
	if !ok {
		return false, nil
	}
	switch l.Op {
	case core.OpEquals:
		if v == nil || l.Operands[0] == nil {
			return v == nil && l.Operands[0] == nil, nil
		}
		cmp, ok := Compare(v, l.Operands[0])
		return ok && cmp == 0, nil
	case core.OpLike:
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		pattern, ok := core.Normalize(l.Operands[0]).(string)
		if !ok {
			return false, fmt.Errorf("%w: LIKE pattern must be a string, got %T", core.ErrInvalidQuery, l.Operands[0])
		}
		re, err := likePattern(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	case core.OpGreaterThan, core.OpGreaterThanEqual, core.OpLessThan, core.OpLessThanEqual:
		cmp, ok := Compare(v, l.Operands[0])
		if !ok {
			return false, nil
		}
		switch l.Op {
		case core.OpGreaterThan:
			return cmp > 0, nil
		case core.OpGreaterThanEqual:
			return cmp >= 0, nil
		case core.OpLessThan:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case core.OpBetween:
		lo, ok := Compare(v, l.Operands[0])
		if !ok {
			return false, nil
		}
		hi, ok := Compare(v, l.Operands[1])
		if !ok {
			return false, nil
		}
		return lo >= 0 && hi <= 0, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %v", core.ErrInvalidQuery, l.Op)
	}
}

// Compare orders two normalized values. Numbers compare numerically across
// int64, uint64 and float64; strings, bools, times and byte slices compare
// within their own kind. The second result is false for incomparable values.
func Compare(a, b any) (int, bool) {
	a, b = core.Normalize(a), core.Normalize(b)
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		if ai, ok := a.(int64); ok {
			if bi, ok := b.(int64); ok {
				return cmpOrdered(ai, bi), true
			}
		}
		return cmpOrdered(af, bf), true
	}
	switch at := a.(type) {
	case string:
		bt, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(at, bt), true
	case bool:
		bt, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case at == bt:
			return 0, true
		case !at:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	case []byte:
		bt, ok := b.([]byte)
		if !ok {
			return 0, false
		}
		return bytes.Compare(at, bt), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

var likeCache sync.Map // pattern -> *regexp.Regexp

// likePattern translates a SQL LIKE pattern (% any run, _ any rune) to an
// anchored regular expression.
func likePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	var sb strings.Builder
	sb.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: LIKE %q: %w", core.ErrInvalidQuery, pattern, err)
	}
	likeCache.Store(pattern, re)
	return re, nil
}

// Filter returns the records matching cond, preserving order.
func Filter(cond core.Condition, records []core.Record) ([]core.Record, error) {
	if cond == nil {
		return records, nil
	}
	out := make([]core.Record, 0, len(records))
	for _, rec := range records {
		ok, err := Match(cond, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SortRecords stably sorts records by s. Missing and nil values sort
// before present ones in ascending order; incomparable values keep their
// relative order.
func SortRecords(records []core.Record, s core.Sort) {
	if len(s) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range s {
			a, aok := Lookup(records[i], o.Key)
			b, bok := Lookup(records[j], o.Key)
			aok = aok && a != nil
			bok = bok && b != nil
			var cmp int
			switch {
			case !aok && !bok:
				continue
			case !aok:
				cmp = -1
			case !bok:
				cmp = 1
			default:
				c, ok := Compare(a, b)
				if !ok {
					continue
				}
				cmp = c
			}
			if cmp == 0 {
				continue
			}
			if o.Direction == core.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// ApplyPage returns the window of records selected by p.
func ApplyPage(records []core.Record, p core.Page) []core.Record {
	if p.Offset >= len(records) {
		if p.Offset == 0 {
			return records
		}
		return nil
	}
	records = records[p.Offset:]
	if p.Limit > 0 && p.Limit < len(records) {
		records = records[:p.Limit]
	}
	return records
}

// Run filters, sorts and windows records for q. Backends that cannot push
// a query down use it over a full scan of q.Target. records may be
// reordered in place.
func Run(q *core.Query, records []core.Record) ([]core.Record, error) {
	matched, err := Filter(q.Where, records)
	if err != nil {
		return nil, err
	}
	SortRecords(matched, q.Sort)
	return ApplyPage(matched, q.Page), nil
}
