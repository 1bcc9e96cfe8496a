package dispatch

import (
	"iter"
	"reflect"
	"testing"

	"github.com/poiesic/reposit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string
	Rank int
}

func (i item) Compare(other item) int {
	return i.Rank - other.Rank
}

func items(vs ...item) []reflect.Value {
	out := make([]reflect.Value, len(vs))
	for i, v := range vs {
		out[i] = reflect.ValueOf(v)
	}
	return out
}

func adapterFor[R any](t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(reflect.TypeFor[R](), reflect.TypeFor[item]())
	require.NoError(t, err)
	return a
}

func TestNewAdapterShapes(t *testing.T) {
	tests := []struct {
		name string
		a    func(t *testing.T) *Adapter
		want Shape
	}{
		{"value", adapterFor[item], ShapeValue},
		{"pointer", adapterFor[*item], ShapePointer},
		{"optional", adapterFor[core.Optional[item]], ShapeSingle},
		{"list", adapterFor[[]item], ShapeList},
		{"pointer list", adapterFor[[]*item], ShapeList},
		{"struct set", adapterFor[map[item]struct{}], ShapeSet},
		{"bool set", adapterFor[map[item]bool], ShapeSet},
		{"queue", adapterFor[core.Queue[item]], ShapeCollector},
		{"seq", adapterFor[iter.Seq[item]], ShapeSeq},
		{"raw slice", adapterFor[[]any], ShapeRaw},
		{"raw interface", adapterFor[any], ShapeRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a(t).Shape())
		})
	}
}

func TestNewAdapterRejects(t *testing.T) {
	elem := reflect.TypeFor[item]()
	for _, out := range []reflect.Type{
		reflect.TypeFor[string](),
		reflect.TypeFor[[]string](),
		reflect.TypeFor[core.Optional[string]](),
		reflect.TypeFor[map[item]int](),
		reflect.TypeFor[chan item](),
	} {
		_, err := NewAdapter(out, elem)
		assert.ErrorIs(t, err, core.ErrDynamicQuery, out.String())
	}

	_, err := NewAdapter(nil, elem)
	assert.ErrorIs(t, err, core.ErrNilArgument)
}

func TestAdaptSingleShapes(t *testing.T) {
	ada, alan := item{Name: "ada"}, item{Name: "alan"}

	v := adapterFor[item](t).Adapt(items(ada, alan)).Interface().(item)
	assert.Equal(t, ada, v)
	v = adapterFor[item](t).Adapt(nil).Interface().(item)
	assert.Equal(t, item{}, v)

	p := adapterFor[*item](t).Adapt(items(ada)).Interface().(*item)
	require.NotNil(t, p)
	assert.Equal(t, ada, *p)
	assert.Nil(t, adapterFor[*item](t).Adapt(nil).Interface().(*item))

	o := adapterFor[core.Optional[item]](t).Adapt(items(alan)).Interface().(core.Optional[item])
	got, ok := o.Get()
	assert.True(t, ok)
	assert.Equal(t, alan, got)
	o = adapterFor[core.Optional[item]](t).Adapt(nil).Interface().(core.Optional[item])
	assert.False(t, o.Present())

	assert.True(t, adapterFor[item](t).Single())
	assert.False(t, adapterFor[[]item](t).Single())
}

func TestAdaptCollections(t *testing.T) {
	in := items(item{Name: "c", Rank: 3}, item{Name: "a", Rank: 1}, item{Name: "c", Rank: 3})

	list := adapterFor[[]item](t).Adapt(in).Interface().([]item)
	assert.Equal(t, []string{"c", "a", "c"}, itemNames(list))
	assert.Empty(t, adapterFor[[]item](t).Adapt(nil).Interface().([]item))

	ptrs := adapterFor[[]*item](t).Adapt(in).Interface().([]*item)
	require.Len(t, ptrs, 3)
	assert.Equal(t, "a", ptrs[1].Name)

	set := adapterFor[map[item]struct{}](t).Adapt(in).Interface().(map[item]struct{})
	assert.Len(t, set, 2)
	bools := adapterFor[map[item]bool](t).Adapt(in).Interface().(map[item]bool)
	assert.True(t, bools[item{Name: "a", Rank: 1}])

	q := adapterFor[core.Queue[item]](t).Adapt(in).Interface().(core.Queue[item])
	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", head.Name)

	raw := adapterFor[[]any](t).Adapt(in).Interface().([]any)
	assert.Len(t, raw, 3)
	assert.Equal(t, item{Name: "a", Rank: 1}, raw[1])
}

func TestAdaptSeqIsSingleUse(t *testing.T) {
	seq := adapterFor[iter.Seq[item]](t).Adapt(items(item{Name: "a"}, item{Name: "b"}, item{Name: "c"})).Interface().(iter.Seq[item])

	var first []string
	for it := range seq {
		first = append(first, it.Name)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, first)

	var second []string
	for it := range seq {
		second = append(second, it.Name)
	}
	assert.Empty(t, second)
}

func itemNames(in []item) []string {
	out := make([]string, len(in))
	for i, it := range in {
		out[i] = it.Name
	}
	return out
}
