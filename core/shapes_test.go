package core

import (
	"reflect"
	"testing"
)

type ranked struct {
	Name string
	Rank int
}

func (r ranked) Compare(other ranked) int {
	return r.Rank - other.Rank
}

func TestOptional(t *testing.T) {
	var o Optional[string]
	if o.Present() {
		t.Error("zero Optional should be empty")
	}
	if got := o.OrElse("fallback"); got != "fallback" {
		t.Errorf("OrElse() = %q", got)
	}

	o.Collect([]any{"first", "second"})
	v, ok := o.Get()
	if !ok || v != "first" {
		t.Errorf("Get() = %q, %v; want first, true", v, ok)
	}

	o.Collect(nil)
	if o.Present() {
		t.Error("Collect(nil) should empty the Optional")
	}

	if got := Some(3).OrElse(9); got != 3 {
		t.Errorf("Some(3).OrElse(9) = %d", got)
	}
	if None[int]().Present() {
		t.Error("None() should be empty")
	}
	if o.ElemType() != reflect.TypeFor[string]() {
		t.Errorf("ElemType() = %v", o.ElemType())
	}
}

func TestQueue_PriorityOrder(t *testing.T) {
	var q Queue[ranked]
	q.Collect([]any{
		ranked{Name: "c", Rank: 3},
		ranked{Name: "a", Rank: 1},
		ranked{Name: "b", Rank: 2},
		ranked{Name: "a2", Rank: 1},
	})

	if q.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", q.Len())
	}
	head, ok := q.Peek()
	if !ok || head.Name != "a" {
		t.Errorf("Peek() = %v, want a", head)
	}

	var names []string
	for _, r := range q.Drain() {
		names = append(names, r.Name)
	}
	want := []string{"a", "a2", "b", "c"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Drain() order = %v, want %v", names, want)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue should report false")
	}
}

func TestQueue_InsertionOrderWithoutComparable(t *testing.T) {
	q := NewQueue[string]()
	q.Push("z")
	q.Push("a")
	q.Push("m")

	got := q.Drain()
	want := []string{"z", "a", "m"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Drain() = %v, want %v", got, want)
	}
}
