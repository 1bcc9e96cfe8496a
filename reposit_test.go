package reposit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/mapping"
	"github.com/poiesic/reposit/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type book struct {
	ID     string
	Title  string
	Author string
	Year   int
}

func (book) StorageName() string { return "books" }

type books struct {
	FindByAuthor                     func(ctx context.Context, author string) ([]book, error)
	FindByYearBetweenOrderByYearDesc func(ctx context.Context, from, to int) ([]book, error)
	FindByTitle                      func(ctx context.Context, title string) (*book, error)
	DeleteByAuthor                   func(ctx context.Context, author string) error
	Count                            func(ctx context.Context) (int, error)
}

type booksAsync struct {
	FindByAuthor func(ctx context.Context, author string, done func([]book, error)) error
}

func openMemory(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(append([]Option{WithInMemory()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBooks(t *testing.T, s *Store) {
	t.Helper()
	repo, err := NewRepository[book](s)
	require.NoError(t, err)
	require.NoError(t, repo.SaveAll(context.Background(),
		&book{ID: "1", Title: "Dune", Author: "Herbert", Year: 1965},
		&book{ID: "2", Title: "Children of Dune", Author: "Herbert", Year: 1976},
		&book{ID: "3", Title: "Neuromancer", Author: "Gibson", Year: 1984},
		&book{ID: "4", Title: "Hyperion", Author: "Simmons", Year: 1989},
	))
}

func TestOpen(t *testing.T) {
	t.Run("create new badger store", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "test_db")
		s, err := Open(WithPath(dir))
		require.NoError(t, err)
		require.NotNil(t, s)
		defer s.Close()

		assert.NotNil(t, s.Backend())
		assert.NotNil(t, s.Registry())
		assert.NotNil(t, s.logger)
	})

	t.Run("create new sqlite store", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.db")
		s, err := Open(WithBackend(" SQLite "), WithPath(path))
		require.NoError(t, err)
		defer s.Close()
		_, isNative := s.Backend().(storage.NativeBackend)
		assert.True(t, isNative)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to create a badger store at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		s, err := Open(WithPath(tmpFile))
		assert.Error(t, err)
		assert.Nil(t, s)
	})

	t.Run("error with invalid config", func(t *testing.T) {
		_, err := Open(WithBackend("postgres"), WithInMemory())
		assert.Error(t, err)
		_, err = OpenConfig(nil)
		assert.ErrorIs(t, err, core.ErrNilArgument)
	})

	t.Run("duplicate entities", func(t *testing.T) {
		e := mapping.MustFromStruct[book]()
		_, err := Open(WithInMemory(), WithEntities(e, e))
		assert.ErrorIs(t, err, mapping.ErrDuplicateEntity)
	})
}

func TestConfig(t *testing.T) {
	cfg := NewConfig(WithBackend("SQLITE"), WithPoolSize(0), WithPlanCacheSize(0), WithInMemory())
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, 256, cfg.PlanCacheSize)
	assert.NotNil(t, cfg.Logger)

	cfg = NewConfig(WithPath(""))
	assert.Error(t, cfg.Validate())

	cfg = NewConfig(WithPoolSize(-1))
	assert.Error(t, cfg.Validate())

	cfg = &Config{InMemory: true}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendBadger, cfg.Backend)
}

func TestStore_Close(t *testing.T) {
	s, err := Open(WithPath(t.TempDir()))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestBind(t *testing.T) {
	for _, backend := range []string{BackendBadger, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			s := openMemory(t, WithBackend(backend))
			seedBooks(t, s)

			var repo books
			require.NoError(t, Bind[book](s, &repo))

			herbert, err := repo.FindByAuthor(ctx, "Herbert")
			require.NoError(t, err)
			assert.Len(t, herbert, 2)

			eighties, err := repo.FindByYearBetweenOrderByYearDesc(ctx, 1980, 1989)
			require.NoError(t, err)
			require.Len(t, eighties, 2)
			assert.Equal(t, "Hyperion", eighties[0].Title)

			dune, err := repo.FindByTitle(ctx, "Dune")
			require.NoError(t, err)
			require.NotNil(t, dune)
			assert.Equal(t, 1965, dune.Year)

			require.NoError(t, repo.DeleteByAuthor(ctx, "Herbert"))
			n, err := repo.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestBindSharesDispatcher(t *testing.T) {
	s := openMemory(t)

	d1, err := DispatcherFor[book](s)
	require.NoError(t, err)
	d2, err := DispatcherFor[book](s)
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Equal(t, "books", d1.Entity().StorageName())

	_, err = DispatcherFor[int](s)
	assert.ErrorIs(t, err, mapping.ErrNotStruct)
}

func TestBindAsync(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	seedBooks(t, s)

	var repo booksAsync
	require.NoError(t, BindAsync[book](s, &repo))

	done := make(chan []book, 1)
	require.NoError(t, repo.FindByAuthor(ctx, "Gibson", func(found []book, err error) {
		assert.NoError(t, err)
		done <- found
	}))
	found := <-done
	require.Len(t, found, 1)
	assert.Equal(t, "Neuromancer", found[0].Title)

	sq := openMemory(t, WithBackend(BackendSQLite))
	require.NoError(t, BindAsync[book](sq, &repo))
	err := repo.FindByAuthor(ctx, "Gibson", func([]book, error) {})
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestDispatcherByName(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, WithEntities(mapping.MustFromStruct[book]()))
	seedBooks(t, s)

	d, err := s.Dispatcher("books")
	require.NoError(t, err)
	byLogical, err := s.Dispatcher("book")
	require.NoError(t, err)
	assert.Same(t, d, byLogical)

	records, err := d.Invoke(ctx, "findByAuthorOrderByYearDesc", "Herbert")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Children of Dune", records[0]["title"])

	_, err = s.Dispatcher("magazines")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	seedBooks(t, s)

	repo, err := NewRepository[book](s)
	require.NoError(t, err)

	b := &book{Title: "Snow Crash", Author: "Stephenson", Year: 1992}
	require.NoError(t, repo.Save(ctx, b))
	assert.NotEmpty(t, b.ID)
	assert.ErrorIs(t, repo.Save(ctx, nil), core.ErrNilArgument)
	assert.ErrorIs(t, repo.SaveAll(ctx, nil), core.ErrNilArgument)

	got, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *b, *got)

	missing, err := repo.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := repo.ExistsByID(ctx, "3")
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := repo.FindAll(ctx, core.By(core.Ascending("year")), core.Limit(2))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Dune", all[0].Title)

	recent, err := repo.Find(ctx, core.Select("").Filter(core.Gt("year", 1985)))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	invoked, err := repo.Invoke(ctx, "findByAuthorLike", "S%")
	require.NoError(t, err)
	assert.Len(t, invoked, 2)

	require.NoError(t, repo.Delete(ctx, *b))
	require.NoError(t, repo.DeleteByID(ctx, "1"))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStoreMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := openMemory(t, WithMetrics(reg))
	seedBooks(t, s)

	var repo books
	require.NoError(t, Bind[book](s, &repo))
	_, err := repo.FindByAuthor(context.Background(), "Gibson")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "reposit_calls_total")
}
