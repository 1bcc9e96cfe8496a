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

import (
	"strconv"
	"strings"
)

// Record is the storage-facing representation of an entity: storage keys
// mapped to normalized values. Sub-records are nested Records.
type Record map[string]any

// Direction is the sort direction of an Order.
type Direction int

const (
	// Asc sorts smallest first.
	Asc Direction = iota
	// Desc sorts largest first.
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Order is one sort key.
type Order struct {
	Key       string
	Direction Direction
}

// Ascending returns an ascending order on key.
func Ascending(key string) Order {
	return Order{Key: key, Direction: Asc}
}

// Descending returns a descending order on key.
func Descending(key string) Order {
	return Order{Key: key, Direction: Desc}
}

// Sort is an ordered list of sort keys; the first entry is the primary key.
type Sort []Order

// By builds a Sort from orders.
func By(orders ...Order) Sort {
	return Sort(orders)
}

func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, o := range s {
		parts[i] = o.Key + " " + o.Direction.String()
	}
	return strings.Join(parts, ", ")
}

// Page bounds a result window. Limit 0 means unbounded.
type Page struct {
	Offset int
	Limit  int
}

// PageOf returns the window for a 1-based page number of the given size.
// Numbers below 1 are treated as the first page.
func PageOf(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 0 {
		size = 0
	}
	return Page{Offset: (number - 1) * size, Limit: size}
}

// Limit returns a page of the first n results.
func Limit(n int) Page {
	return Page{Limit: n}
}

// Unbounded reports whether the page imposes no window.
func (p Page) Unbounded() bool {
	return p.Offset == 0 && p.Limit == 0
}

// NoPaging is the type of the Unpaged marker.
type NoPaging struct{}

// Unpaged may be passed where a Page is accepted to request no paging.
// Derived methods ignore it.
var Unpaged = NoPaging{}

// Query selects records from Target matching Where, ordered by Sort and
// windowed by Page. A nil Where matches every record.
type Query struct {
	Target string
	Where  Condition
	Sort   Sort
	Page   Page
}

// Select starts a query over target.
func Select(target string) *Query {
	return &Query{Target: target}
}

// Filter sets the condition tree.
func (q *Query) Filter(cond Condition) *Query {
	q.Where = cond
	return q
}

// OrderBy appends sort keys.
func (q *Query) OrderBy(orders ...Order) *Query {
	q.Sort = append(q.Sort, orders...)
	return q
}

// Paged sets the result window.
func (q *Query) Paged(p Page) *Query {
	q.Page = p
	return q
}

func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT FROM ")
	sb.WriteString(q.Target)
	if q.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(conditionString(q.Where))
	}
	if len(q.Sort) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.Sort.String())
	}
	if q.Page.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(q.Page.Limit))
	}
	if q.Page.Offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(q.Page.Offset))
	}
	return sb.String()
}

// DeleteQuery removes records from Target matching Where. A nil Where
// removes every record of the target.
type DeleteQuery struct {
	Target string
	Where  Condition
}

// Delete starts a delete query over target.
func Delete(target string) *DeleteQuery {
	return &DeleteQuery{Target: target}
}

// Filter sets the condition tree.
func (q *DeleteQuery) Filter(cond Condition) *DeleteQuery {
	q.Where = cond
	return q
}

func (q *DeleteQuery) String() string {
	if q.Where == nil {
		return "DELETE FROM " + q.Target
	}
	return "DELETE FROM " + q.Target + " WHERE " + conditionString(q.Where)
}
