package storage

import (
	"testing"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func people() []core.Record {
	return []core.Record{
		{"id": "1", "name": "Ada", "age": int64(36), "address": core.Record{"city": "London"}},
		{"id": "2", "name": "Alan", "age": int64(41), "address": core.Record{"city": "Manchester"}},
		{"id": "3", "name": "Grace", "age": int64(85), "address": core.Record{"city": "New York"}},
		{"id": "4", "name": "Barbara", "age": nil},
	}
}

func ids(records []core.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r["id"].(string)
	}
	return out
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		cond core.Condition
		want []string
	}{
		{"nil matches all", nil, []string{"1", "2", "3", "4"}},
		{"equals", core.Eq("name", "Ada"), []string{"1"}},
		{"equals across numeric kinds", core.Eq("age", 36.0), []string{"1"}},
		{"equals nil", core.Eq("age", nil), []string{"4"}},
		{"like prefix", core.Like("name", "A%"), []string{"1", "2"}},
		{"like single rune", core.Like("name", "A_a"), []string{"1"}},
		{"like escapes regexp", core.Like("name", "A.a"), nil},
		{"greater than", core.Gt("age", 41), []string{"3"}},
		{"greater than equal", core.Gte("age", 41), []string{"2", "3"}},
		{"less than", core.Lt("age", 41), []string{"1"}},
		{"less than equal", core.Lte("age", 41), []string{"1", "2"}},
		{"between inclusive", core.Between("age", 36, 41), []string{"1", "2"}},
		{"between reversed matches nothing", core.Between("age", 41, 36), nil},
		{"dotted key", core.Eq("address.city", "London"), []string{"1"}},
		{"missing key", core.Eq("email", "x"), nil},
		{"and", core.AndOf(core.Like("name", "A%"), core.Gt("age", 40)), []string{"2"}},
		{"or", core.OrOf(core.Eq("name", "Grace"), core.Lt("age", 40)), []string{"1", "3"}},
		{"incomparable", core.Gt("name", 3), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(tt.cond, people())
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMatchRejectsMalformedLeaves(t *testing.T) {
	_, err := Match(&core.Leaf{Key: "age", Op: core.OpBetween, Operands: []any{1}}, core.Record{"age": int64(1)})
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	_, err = Match(core.Like("name", "x"), core.Record{"name": "x"})
	assert.NoError(t, err)

	_, err = Match(&core.Leaf{Key: "name", Op: core.OpLike, Operands: []any{7}}, core.Record{"name": "x"})
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestCompare(t *testing.T) {
	early := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	tests := []struct {
		name string
		a, b any
		want int
		ok   bool
	}{
		{"ints", int64(1), int64(2), -1, true},
		{"int and float", 2, 1.5, 1, true},
		{"uint and int", uint64(3), int64(3), 0, true},
		{"strings", "b", "a", 1, true},
		{"bools", false, true, -1, true},
		{"times", late, early, 1, true},
		{"bytes", []byte("a"), []byte("a"), 0, true},
		{"mixed", "1", int64(1), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSortRecords(t *testing.T) {
	recs := people()
	SortRecords(recs, core.By(core.Descending("age")))
	assert.Equal(t, []string{"3", "2", "1", "4"}, ids(recs))

	recs = people()
	SortRecords(recs, core.By(core.Ascending("age")))
	assert.Equal(t, []string{"4", "1", "2", "3"}, ids(recs))

	recs = []core.Record{
		{"id": "a", "group": "x", "n": int64(2)},
		{"id": "b", "group": "y", "n": int64(1)},
		{"id": "c", "group": "x", "n": int64(1)},
		{"id": "d", "group": "y", "n": int64(1)},
	}
	SortRecords(recs, core.By(core.Ascending("group"), core.Ascending("n")))
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(recs))
}

func TestApplyPage(t *testing.T) {
	recs := people()
	assert.Len(t, ApplyPage(recs, core.Page{}), 4)
	assert.Equal(t, []string{"1", "2"}, ids(ApplyPage(recs, core.Limit(2))))
	assert.Equal(t, []string{"3", "4"}, ids(ApplyPage(recs, core.PageOf(2, 2))))
	assert.Equal(t, []string{"4"}, ids(ApplyPage(recs, core.Page{Offset: 3, Limit: 5})))
	assert.Empty(t, ApplyPage(recs, core.Page{Offset: 10}))
	assert.Empty(t, ApplyPage(nil, core.Page{}))
}

func TestRun(t *testing.T) {
	q := core.Select("people").
		Filter(core.Like("name", "%a%")).
		OrderBy(core.Descending("name")).
		Paged(core.Limit(2))
	got, err := Run(q, people())
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, ids(got))
}
