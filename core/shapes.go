package core

import (
	"container/heap"
	"reflect"
)

// Collector is implemented (on the pointer receiver) by result containers
// the dispatcher fills reflectively from an ordered result sequence.
type Collector interface {
	// ElemType is the element type the container holds.
	ElemType() reflect.Type
	// Collect fills the container. Every item is assignable to ElemType.
	Collect(items []any)
}

// SingleResult marks containers that hold at most one element. Methods
// returning one are single-result shapes.
type SingleResult interface {
	Collector
	SingleResult()
}

// Optional holds zero or one value.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an empty Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value is held.
func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the held value or def.
func (o Optional[T]) OrElse(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

func (o *Optional[T]) SingleResult() {}

func (o *Optional[T]) ElemType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Collect keeps the first item.
func (o *Optional[T]) Collect(items []any) {
	if len(items) == 0 {
		*o = Optional[T]{}
		return
	}
	*o = Some(items[0].(T))
}

// Comparable is implemented by entities that define a priority order for Queue.
type Comparable[T any] interface {
	Compare(other T) int
}

// Queue is a priority queue. Elements implementing Comparable[T] are
// ordered by Compare; ties, and elements without an ordering, keep the
// order they were pushed in.
type Queue[T any] struct {
	h *queueHeap[T]
}

// NewQueue returns an empty queue.
func NewQueue[T any]() Queue[T] {
	return Queue[T]{h: &queueHeap[T]{}}
}

func (q *Queue[T]) init() {
	if q.h == nil {
		q.h = &queueHeap[T]{}
	}
}

// Len returns the number of queued elements.
func (q Queue[T]) Len() int {
	if q.h == nil {
		return 0
	}
	return len(q.h.items)
}

// Push adds an element.
func (q *Queue[T]) Push(v T) {
	q.init()
	heap.Push(q.h, queueItem[T]{value: v, seq: q.h.next})
	q.h.next++
}

// Pop removes and returns the head element.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.Len() == 0 {
		return zero, false
	}
	item := heap.Pop(q.h).(queueItem[T])
	return item.value, true
}

// Peek returns the head element without removing it.
func (q Queue[T]) Peek() (T, bool) {
	var zero T
	if q.Len() == 0 {
		return zero, false
	}
	return q.h.items[0].value, true
}

// Drain pops every element in priority order.
func (q *Queue[T]) Drain() []T {
	out := make([]T, 0, q.Len())
	for q.Len() > 0 {
		v, _ := q.Pop()
		out = append(out, v)
	}
	return out
}

func (q *Queue[T]) ElemType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Collect pushes every item.
func (q *Queue[T]) Collect(items []any) {
	q.h = &queueHeap[T]{}
	for _, it := range items {
		q.Push(it.(T))
	}
}

type queueItem[T any] struct {
	value T
	seq   int
}

type queueHeap[T any] struct {
	items []queueItem[T]
	next  int
}

func (h *queueHeap[T]) Len() int { return len(h.items) }

func (h *queueHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c, ok := any(a.value).(Comparable[T]); ok {
		if r := c.Compare(b.value); r != 0 {
			return r < 0
		}
	}
	return a.seq < b.seq
}

func (h *queueHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *queueHeap[T]) Push(x any) { h.items = append(h.items, x.(queueItem[T])) }

func (h *queueHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
