package dispatch

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/poiesic/reposit/core"
)

// Shape is the result shape a method declares.
type Shape int

const (
	// ShapeRaw passes the results through as []any.
	ShapeRaw Shape = iota
	// ShapeValue is the entity type itself: first element or zero value.
	ShapeValue
	// ShapePointer is a pointer to the entity: first element or nil.
	ShapePointer
	// ShapeSingle is a core.SingleResult container such as core.Optional.
	ShapeSingle
	// ShapeList is a slice of entities or entity pointers in storage order.
	ShapeList
	// ShapeSet is a map keyed by entity; duplicates collapse.
	ShapeSet
	// ShapeCollector is any other core.Collector, such as core.Queue.
	ShapeCollector
	// ShapeSeq is an iter.Seq over entities, usable once.
	ShapeSeq
)

var shapeNames = [...]string{
	ShapeRaw:       "raw",
	ShapeValue:     "value",
	ShapePointer:   "pointer",
	ShapeSingle:    "single",
	ShapeList:      "list",
	ShapeSet:       "set",
	ShapeCollector: "collector",
	ShapeSeq:       "seq",
}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return fmt.Sprintf("Shape(%d)", int(s))
	}
	return shapeNames[s]
}

var (
	anySliceType  = reflect.TypeFor[[]any]()
	collectorType = reflect.TypeFor[core.Collector]()
	singleType    = reflect.TypeFor[core.SingleResult]()
	boolType      = reflect.TypeFor[bool]()
	emptyType     = reflect.TypeFor[struct{}]()
)

// Adapter reshapes an ordered entity sequence into a declared result
// type. The shape is worked out once, when the adapter is built.
type Adapter struct {
	out   reflect.Type
	elem  reflect.Type
	shape Shape
	// ptrElems is set for lists of entity pointers.
	ptrElems bool
}

// NewAdapter returns an adapter producing values of type out from entities
// of type elem.
func NewAdapter(out, elem reflect.Type) (*Adapter, error) {
	if out == nil || elem == nil {
		return nil, fmt.Errorf("%w: result type", core.ErrNilArgument)
	}
	a := &Adapter{out: out, elem: elem}
	switch {
	case out == elem:
		a.shape = ShapeValue
	case out.Kind() == reflect.Pointer && out.Elem() == elem:
		a.shape = ShapePointer
	case reflect.PointerTo(out).Implements(collectorType):
		c := reflect.New(out).Interface().(core.Collector)
		if c.ElemType() != elem {
			return nil, fmt.Errorf("%w: %s holds %s, entity is %s", core.ErrDynamicQuery, out, c.ElemType(), elem)
		}
		a.shape = ShapeCollector
		if reflect.PointerTo(out).Implements(singleType) {
			a.shape = ShapeSingle
		}
	case out.Kind() == reflect.Slice && out.Elem() == elem:
		a.shape = ShapeList
	case out.Kind() == reflect.Slice && out.Elem().Kind() == reflect.Pointer && out.Elem().Elem() == elem:
		a.shape = ShapeList
		a.ptrElems = true
	case out.Kind() == reflect.Map && out.Key() == elem && (out.Elem() == emptyType || out.Elem() == boolType):
		if !elem.Comparable() {
			return nil, fmt.Errorf("%w: %s cannot key a set", core.ErrDynamicQuery, elem)
		}
		a.shape = ShapeSet
	case isSeqOf(out, elem):
		a.shape = ShapeSeq
	case anySliceType.AssignableTo(out):
		a.shape = ShapeRaw
	default:
		return nil, fmt.Errorf("%w: unsupported result type %s for entity %s", core.ErrDynamicQuery, out, elem)
	}
	return a, nil
}

// isSeqOf reports whether t has the underlying type func(func(elem) bool).
func isSeqOf(t, elem reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	yield := t.In(0)
	return yield.Kind() == reflect.Func &&
		yield.NumIn() == 1 && yield.In(0) == elem &&
		yield.NumOut() == 1 && yield.Out(0) == boolType
}

// Shape returns the declared result shape.
func (a *Adapter) Shape() Shape {
	return a.shape
}

// Type returns the declared result type.
func (a *Adapter) Type() reflect.Type {
	return a.out
}

// Single reports whether the shape holds at most one entity.
func (a *Adapter) Single() bool {
	switch a.shape {
	case ShapeValue, ShapePointer, ShapeSingle:
		return true
	}
	return false
}

// Adapt builds the result from items, each a value of the entity type.
// Single shapes take the first item and ignore the rest; callers that
// require uniqueness check before adapting.
func (a *Adapter) Adapt(items []reflect.Value) reflect.Value {
	switch a.shape {
	case ShapeValue:
		if len(items) == 0 {
			return reflect.Zero(a.out)
		}
		return items[0]
	case ShapePointer:
		if len(items) == 0 {
			return reflect.Zero(a.out)
		}
		return addressOf(items[0])
	case ShapeSingle, ShapeCollector:
		ptr := reflect.New(a.out)
		ptr.Interface().(core.Collector).Collect(interfaces(items))
		return ptr.Elem()
	case ShapeList:
		out := reflect.MakeSlice(a.out, len(items), len(items))
		for i, it := range items {
			if a.ptrElems {
				it = addressOf(it)
			}
			out.Index(i).Set(it)
		}
		return out
	case ShapeSet:
		out := reflect.MakeMapWithSize(a.out, len(items))
		member := reflect.Zero(emptyType)
		if a.out.Elem() == boolType {
			member = reflect.ValueOf(true)
		}
		for _, it := range items {
			out.SetMapIndex(it, member)
		}
		return out
	case ShapeSeq:
		return a.seq(items)
	default:
		out := reflect.New(a.out).Elem()
		out.Set(reflect.ValueOf(interfaces(items)))
		return out
	}
}

// seq returns a single-use sequence over items. A second range over it
// yields nothing.
func (a *Adapter) seq(items []reflect.Value) reflect.Value {
	var used atomic.Bool
	return reflect.MakeFunc(a.out, func(args []reflect.Value) []reflect.Value {
		if used.Swap(true) {
			return nil
		}
		yield := args[0]
		for _, it := range items {
			if !yield.Call([]reflect.Value{it})[0].Bool() {
				break
			}
		}
		return nil
	})
}

func addressOf(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v.Addr()
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr
}

func interfaces(items []reflect.Value) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it.Interface()
	}
	return out
}
