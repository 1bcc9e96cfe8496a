package dispatch

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/mapping"
	"github.com/poiesic/reposit/storage"
	"github.com/poiesic/reposit/storage/badger"
	"github.com/poiesic/reposit/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	ID    string
	Name  string
	Age   int
	Email string
}

type personRepository struct {
	Save        func(ctx context.Context, p *person) error
	SaveAll     func(ctx context.Context, people []person) error
	SaveWithTTL func(ctx context.Context, p person, ttl time.Duration) error
	FindByID    func(ctx context.Context, id string) (*person, error)
	ExistsByID  func(ctx context.Context, id string) (bool, error)
	DeleteByID  func(ctx context.Context, id string) error
	Delete      func(ctx context.Context, p person) error
	Count       func(ctx context.Context) (int, error)

	FindAll                            func(ctx context.Context, sort core.Sort) ([]person, error)
	FindByName                         func(ctx context.Context, name string) (core.Optional[person], error)
	FindByAgeGreaterThanOrderByAgeDesc func(ctx context.Context, age int, page core.Page) ([]*person, error)
	FindByAgeLessThan                  func(age int) (iter.Seq[person], error)
	FindByEmailLike                    func(ctx context.Context, pattern string) (map[person]struct{}, error)
	DeleteByAgeGreaterThan             func(ctx context.Context, age int) error

	Query  func(ctx context.Context, q *core.Query) ([]person, error)
	Remove func(ctx context.Context, q *core.DeleteQuery) error

	String func() string
	Helper func(n int) int
}

func personEntity() *mapping.Entity {
	return mapping.MustFromStruct[person](mapping.WithStorageName("people"))
}

func newBadger(t *testing.T) *badger.Backend {
	t.Helper()
	b, err := badger.NewMemoryBackend(badger.WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func newSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open("", sqlite.WithInMemory())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newDispatcher(t *testing.T, backend storage.Backend, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := New(personEntity(), backend, opts...)
	require.NoError(t, err)
	return d
}

func bindPeople(t *testing.T, backend storage.Backend, opts ...Option) *personRepository {
	t.Helper()
	var repo personRepository
	require.NoError(t, newDispatcher(t, backend, opts...).Bind(&repo))
	return &repo
}

func seed(t *testing.T, repo *personRepository) {
	t.Helper()
	require.NoError(t, repo.SaveAll(context.Background(), []person{
		{ID: "1", Name: "Ada", Age: 36, Email: "ada@example.com"},
		{ID: "2", Name: "Alan", Age: 41, Email: "alan@example.org"},
		{ID: "3", Name: "Grace", Age: 85, Email: "grace@example.com"},
		{ID: "4", Name: "Linus", Age: 28, Email: "linus@example.org"},
	}))
}

func personNames[P person | *person](people []P) []string {
	out := make([]string, len(people))
	for i, p := range people {
		switch v := any(p).(type) {
		case person:
			out[i] = v.Name
		case *person:
			out[i] = v.Name
		}
	}
	return out
}

func TestNew(t *testing.T) {
	b := newBadger(t)

	_, err := New(nil, b)
	assert.ErrorIs(t, err, core.ErrNilArgument)
	_, err = New(personEntity(), nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)
	_, err = New(personEntity(), b, WithPlanCacheSize(0))
	assert.Error(t, err)

	d := newDispatcher(t, b, WithLogger(nil), WithFirstMatch())
	assert.Equal(t, "person", d.Entity().Name())
	assert.NotNil(t, d.Crud())
}

func TestBindRejectsBadRepository(t *testing.T) {
	d := newDispatcher(t, newBadger(t))

	assert.ErrorIs(t, d.Bind(nil), core.ErrNilArgument)
	var repo personRepository
	assert.ErrorIs(t, d.Bind(repo), core.ErrNilArgument)
	n := 3
	assert.ErrorIs(t, d.Bind(&n), core.ErrDynamicQuery)
}

func TestBindFailureLeavesRepositoryUntouched(t *testing.T) {
	d := newDispatcher(t, newBadger(t))

	var repo struct {
		FindByName func(ctx context.Context, name string) ([]person, error)
		FindByAge  func(ctx context.Context, age int) (chan person, error)
	}
	err := d.Bind(&repo)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDynamicQuery)
	assert.Contains(t, err.Error(), "FindByAge")
	assert.Nil(t, repo.FindByName)
}

func TestBindRejectsBadSignatures(t *testing.T) {
	d := newDispatcher(t, newBadger(t))
	tests := []struct {
		name string
		repo any
	}{
		{"no error result", &struct{ FindByName func(string) []person }{}},
		{"unsupported result", &struct {
			FindByName func(string) (string, error)
		}{}},
		{"delete with result", &struct {
			DeleteByName func(string) (int, error)
		}{}},
		{"save wrong entity", &struct{ Save func(*item) error }{}},
		{"ttl without duration", &struct {
			SaveWithTTL func(person, int) error
		}{}},
		{"count as string", &struct{ Count func() (string, error) }{}},
		{"exists as int", &struct {
			ExistsByID func(string) (int, error)
		}{}},
		{"variadic", &struct {
			FindByName func(...string) ([]person, error)
		}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, d.Bind(tt.repo), core.ErrDynamicQuery)
		})
	}
}

func TestDefaultMethods(t *testing.T) {
	ctx := context.Background()
	for name, backend := range map[string]storage.Backend{
		"badger": newBadger(t),
		"sqlite": newSQLite(t),
	} {
		t.Run(name, func(t *testing.T) {
			repo := bindPeople(t, backend)
			seed(t, repo)

			n, err := repo.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			p, err := repo.FindByID(ctx, "2")
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, "Alan", p.Name)
			assert.Equal(t, 41, p.Age)

			p, err = repo.FindByID(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, p)

			ok, err := repo.ExistsByID(ctx, "3")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, repo.DeleteByID(ctx, "3"))
			ok, err = repo.ExistsByID(ctx, "3")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, repo.Delete(ctx, person{ID: "4"}))
			n, err = repo.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestSaveGeneratesIdentifier(t *testing.T) {
	ctx := context.Background()
	repo := bindPeople(t, newBadger(t))

	p := &person{Name: "Ada"}
	require.NoError(t, repo.Save(ctx, p))
	require.NotEmpty(t, p.ID)

	p.Age = 37
	require.NoError(t, repo.Save(ctx, p))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "saving the same identifier replaces the record")

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 37, got.Age)

	assert.ErrorIs(t, repo.Save(ctx, nil), core.ErrNilArgument)
}

func TestSaveReturningEntity(t *testing.T) {
	var repo struct {
		Save func(ctx context.Context, p person) (person, error)
	}
	require.NoError(t, newDispatcher(t, newBadger(t)).Bind(&repo))

	saved, err := repo.Save(context.Background(), person{Name: "Grace"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Grace", saved.Name)
}

func TestSaveWithTTL(t *testing.T) {
	ctx := context.Background()

	repo := bindPeople(t, newBadger(t))
	require.NoError(t, repo.SaveWithTTL(ctx, person{ID: "t", Name: "Temp"}, time.Hour))
	ok, err := repo.ExistsByID(ctx, "t")
	require.NoError(t, err)
	assert.True(t, ok)

	repo = bindPeople(t, newSQLite(t))
	err = repo.SaveWithTTL(ctx, person{ID: "t"}, time.Hour)
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestDerivedFinds(t *testing.T) {
	ctx := context.Background()
	for name, backend := range map[string]storage.Backend{
		"badger": newBadger(t),
		"sqlite": newSQLite(t),
	} {
		t.Run(name, func(t *testing.T) {
			repo := bindPeople(t, backend)
			seed(t, repo)

			all, err := repo.FindAll(ctx, core.By(core.Descending("age")))
			require.NoError(t, err)
			assert.Equal(t, []string{"Grace", "Alan", "Ada", "Linus"}, personNames(all))

			all, err = repo.FindAll(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"Ada", "Alan", "Grace", "Linus"}, personNames(all))

			o, err := repo.FindByName(ctx, "Grace")
			require.NoError(t, err)
			g, ok := o.Get()
			require.True(t, ok)
			assert.Equal(t, 85, g.Age)

			o, err = repo.FindByName(ctx, "Nobody")
			require.NoError(t, err)
			assert.False(t, o.Present())

			older, err := repo.FindByAgeGreaterThanOrderByAgeDesc(ctx, 30, core.Limit(2))
			require.NoError(t, err)
			assert.Equal(t, []string{"Grace", "Alan"}, personNames(older))

			older, err = repo.FindByAgeGreaterThanOrderByAgeDesc(ctx, 30, core.PageOf(2, 2))
			require.NoError(t, err)
			assert.Equal(t, []string{"Ada"}, personNames(older))

			seq, err := repo.FindByAgeLessThan(40)
			require.NoError(t, err)
			var young []string
			for p := range seq {
				young = append(young, p.Name)
			}
			assert.Equal(t, []string{"Ada", "Linus"}, young)

			orgs, err := repo.FindByEmailLike(ctx, "%.org")
			require.NoError(t, err)
			assert.Len(t, orgs, 2)
			assert.Contains(t, orgs, person{ID: "2", Name: "Alan", Age: 41, Email: "alan@example.org"})
		})
	}
}

func TestDerivedDelete(t *testing.T) {
	ctx := context.Background()
	repo := bindPeople(t, newBadger(t))
	seed(t, repo)

	require.NoError(t, repo.DeleteByAgeGreaterThan(ctx, 40))
	all, err := repo.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada", "Linus"}, personNames(all))
}

func TestQueryMethods(t *testing.T) {
	ctx := context.Background()
	repo := bindPeople(t, newBadger(t))
	seed(t, repo)

	// An empty target is the entity's own collection.
	q := &core.Query{Where: core.Gte("age", 40)}
	got, err := repo.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alan", "Grace"}, personNames(got))
	assert.Empty(t, q.Target, "the caller's query is not modified")

	_, err = repo.Query(ctx, nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)

	require.NoError(t, repo.Remove(ctx, core.Delete("people").Filter(core.Like("email", "%.com"))))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSingleResultUniqueness(t *testing.T) {
	ctx := context.Background()
	backend := newBadger(t)
	repo := bindPeople(t, backend)
	seed(t, repo)
	require.NoError(t, repo.Save(ctx, &person{ID: "5", Name: "Ada", Age: 19}))

	_, err := repo.FindByName(ctx, "Ada")
	assert.ErrorIs(t, err, core.ErrNonUniqueResult)

	lenient := bindPeople(t, backend, WithFirstMatch())
	o, err := lenient.FindByName(ctx, "Ada")
	require.NoError(t, err)
	p, ok := o.Get()
	require.True(t, ok)
	assert.Equal(t, "1", p.ID)
}

func TestObjectAndUnknownMethods(t *testing.T) {
	repo := bindPeople(t, newBadger(t))

	assert.Equal(t, "repository of person (people)", repo.String())
	assert.Equal(t, 0, repo.Helper(7))
}

func TestContextCancellation(t *testing.T) {
	repo := bindPeople(t, newBadger(t))
	seed(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.FindByName(ctx, "Ada")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNativeQuery(t *testing.T) {
	ctx := context.Background()
	type nativeRepository struct {
		SaveAll func(ctx context.Context, people []person) error
		Adults  func(ctx context.Context, age int) ([]person, error) `query:"SELECT doc FROM records WHERE target = 'people' AND json_extract(doc, '$.age') >= ? ORDER BY seq"`
	}

	var repo nativeRepository
	require.NoError(t, newDispatcher(t, newSQLite(t)).Bind(&repo))
	require.NoError(t, repo.SaveAll(ctx, []person{
		{ID: "1", Name: "Ada", Age: 36},
		{ID: "2", Name: "Tim", Age: 12},
		{ID: "3", Name: "Grace", Age: 85},
	}))
	adults, err := repo.Adults(ctx, 18)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada", "Grace"}, personNames(adults))

	require.NoError(t, newDispatcher(t, newBadger(t)).Bind(&repo))
	_, err = repo.Adults(ctx, 18)
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestExplain(t *testing.T) {
	d := newDispatcher(t, newBadger(t))

	s, err := d.Explain("findByAgeGreaterThanOrderByNameDesc", 30, core.Limit(5))
	require.NoError(t, err)
	q, ok := s.(*core.Query)
	require.True(t, ok)
	assert.Equal(t, "people", q.Target)
	assert.Equal(t, core.By(core.Descending("name")), q.Sort)
	assert.Equal(t, 5, q.Page.Limit)

	s, err = d.Explain("deleteByName", "Ada")
	require.NoError(t, err)
	assert.Equal(t, core.Delete("people").Filter(core.Eq("name", "Ada")).String(), s.String())

	s, err = d.Explain("findByID", "7")
	require.NoError(t, err)
	assert.Equal(t, core.Select("people").Filter(core.Eq("id", "7")).String(), s.String())

	_, err = d.Explain("save", person{})
	assert.ErrorIs(t, err, core.ErrDynamicQuery)
	_, err = d.Explain("helper", 1)
	assert.ErrorIs(t, err, core.ErrDynamicQuery)
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()
	backend := newBadger(t)
	seed(t, bindPeople(t, backend))
	d := newDispatcher(t, backend)

	records, err := d.Invoke(ctx, "findByAgeLessThan", 40)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// Second call is served from the plan cache.
	records, err = d.Invoke(ctx, "findByAgeLessThan", 30)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Linus", records[0]["name"])
	assert.Equal(t, 1, d.plans.Len())

	records, err = d.Invoke(ctx, "findByID", "3")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Grace", records[0]["name"])

	records, err = d.Invoke(ctx, "deleteByName", "Grace")
	require.NoError(t, err)
	assert.Nil(t, records)

	records, err = d.Find(ctx, &core.Query{})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	require.NoError(t, d.Remove(ctx, &core.DeleteQuery{}))
	n, err := d.Crud().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = d.Invoke(ctx, "count")
	assert.ErrorIs(t, err, core.ErrDynamicQuery)
}
