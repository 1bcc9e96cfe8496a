package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type asyncPersonRepository struct {
	FindByName             func(ctx context.Context, name string, done func([]person, error)) error
	FindByID               func(id string, done func(*person, error)) error
	Query                  func(ctx context.Context, q *core.Query, done func(core.Optional[person], error)) error
	DeleteByAgeGreaterThan func(ctx context.Context, age int, done func(error)) error
	DeleteByID             func(ctx context.Context, id string) error
	Delete                 func(ctx context.Context, p *person, done func(error)) error
	String                 func() string
}

type result[T any] struct {
	value T
	err   error
}

// await waits for one value on ch.
func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not invoked")
	}
	var zero T
	return zero
}

func callback[T any]() (chan result[T], func(T, error)) {
	ch := make(chan result[T], 1)
	return ch, func(v T, err error) {
		ch <- result[T]{v, err}
	}
}

func bindAsyncPeople(t *testing.T) (*personRepository, *asyncPersonRepository) {
	t.Helper()
	d := newDispatcher(t, newBadger(t))
	var blocking personRepository
	require.NoError(t, d.Bind(&blocking))
	seed(t, &blocking)
	var async asyncPersonRepository
	require.NoError(t, d.BindAsync(&async))
	return &blocking, &async
}

func TestBindAsyncFindMethods(t *testing.T) {
	ctx := context.Background()
	_, repo := bindAsyncPeople(t)

	people, done := callback[[]person]()
	require.NoError(t, repo.FindByName(ctx, "Alan", done))
	r := await(t, people)
	require.NoError(t, r.err)
	assert.Equal(t, []string{"Alan"}, personNames(r.value))

	one, doneOne := callback[*person]()
	require.NoError(t, repo.FindByID("3", doneOne))
	p := await(t, one)
	require.NoError(t, p.err)
	require.NotNil(t, p.value)
	assert.Equal(t, "Grace", p.value.Name)

	opt, doneOpt := callback[core.Optional[person]]()
	require.NoError(t, repo.Query(ctx, core.Select("people").Filter(core.Lt("age", 30)), doneOpt))
	o := await(t, opt)
	require.NoError(t, o.err)
	linus, ok := o.value.Get()
	require.True(t, ok)
	assert.Equal(t, "Linus", linus.Name)
}

func TestBindAsyncRawResult(t *testing.T) {
	var repo struct {
		FindAll func(ctx context.Context, done func([]any, error)) error
	}
	d := newDispatcher(t, newBadger(t))
	var blocking personRepository
	require.NoError(t, d.Bind(&blocking))
	seed(t, &blocking)
	require.NoError(t, d.BindAsync(&repo))

	ch, done := callback[[]any]()
	require.NoError(t, repo.FindAll(context.Background(), done))
	r := await(t, ch)
	require.NoError(t, r.err)
	assert.Len(t, r.value, 4)
	assert.IsType(t, person{}, r.value[0])
}

func TestBindAsyncDeletes(t *testing.T) {
	ctx := context.Background()
	blocking, repo := bindAsyncPeople(t)

	errs := make(chan error, 1)
	require.NoError(t, repo.DeleteByAgeGreaterThan(ctx, 80, func(err error) { errs <- err }))
	require.NoError(t, await(t, errs))

	require.NoError(t, repo.Delete(ctx, &person{ID: "1"}, func(err error) { errs <- err }))
	require.NoError(t, await(t, errs))

	// Without a callback the delete is fire-and-forget.
	require.NoError(t, repo.DeleteByID(ctx, "2"))
	assert.Eventually(t, func() bool {
		n, err := blocking.Count(ctx)
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBindAsyncCompileErrorsReturnImmediately(t *testing.T) {
	ctx := context.Background()
	_, repo := bindAsyncPeople(t)

	called := make(chan struct{}, 1)
	err := repo.Query(ctx, nil, func(core.Optional[person], error) { called <- struct{}{} })
	assert.ErrorIs(t, err, core.ErrNilArgument)

	err = repo.FindByName(ctx, "Ada", nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)

	assert.Never(t, func() bool { return len(called) > 0 }, 50*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, "repository of person (people)", repo.String())
}

func TestBindAsyncUniqueness(t *testing.T) {
	ctx := context.Background()
	d := newDispatcher(t, newBadger(t))
	var blocking personRepository
	require.NoError(t, d.Bind(&blocking))
	seed(t, &blocking)
	require.NoError(t, blocking.Save(ctx, &person{ID: "9", Name: "Ada", Age: 3}))

	var single struct {
		FindByName func(ctx context.Context, name string, done func(*person, error)) error
	}
	require.NoError(t, d.BindAsync(&single))

	ch, done := callback[*person]()
	require.NoError(t, single.FindByName(ctx, "Ada", done))
	r := await(t, ch)
	assert.ErrorIs(t, r.err, core.ErrNonUniqueResult)
	assert.Nil(t, r.value)
}

func TestBindAsyncRejects(t *testing.T) {
	d := newDispatcher(t, newBadger(t))
	tests := []struct {
		name string
		repo any
		want error
	}{
		{"find without callback", &struct {
			FindByName func(ctx context.Context, name string) error
		}{}, core.ErrDynamicQuery},
		{"find with error-only callback", &struct {
			FindByName func(name string, done func(error)) error
		}{}, core.ErrDynamicQuery},
		{"delete with value callback", &struct {
			DeleteByName func(name string, done func([]person, error)) error
		}{}, core.ErrDynamicQuery},
		{"result returned directly", &struct {
			FindByName func(name string) ([]person, error)
		}{}, core.ErrDynamicQuery},
		{"save", &struct {
			Save func(ctx context.Context, p *person, done func(error)) error
		}{}, core.ErrUnsupported},
		{"count", &struct {
			Count func(done func(int, error)) error
		}{}, core.ErrUnsupported},
		{"native", &struct {
			Adults func(age int, done func([]person, error)) error `query:"SELECT doc FROM records"`
		}{}, core.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, d.BindAsync(tt.repo), tt.want)
		})
	}
}

func TestBindAsyncNeedsAsyncBackend(t *testing.T) {
	var repo asyncPersonRepository
	require.NoError(t, newDispatcher(t, newSQLite(t)).BindAsync(&repo))

	called := false
	err := repo.FindByName(context.Background(), "Ada", func([]person, error) { called = true })
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.False(t, called)
}
