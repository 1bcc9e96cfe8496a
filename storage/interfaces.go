package storage

import (
	"context"
	"time"

	"github.com/poiesic/reposit/core"
)

// Backend executes structured queries against a record store.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// Select returns the records of q.Target matching q.Where, ordered by
	// q.Sort and windowed by q.Page. Records with equal sort keys keep
	// insertion order.
	Select(ctx context.Context, q *core.Query) ([]core.Record, error)

	// Delete removes the records of q.Target matching q.Where.
	Delete(ctx context.Context, q *core.DeleteQuery) error

	// Save upserts records into target. Records whose idKey value matches a
	// stored record replace it in place; others are appended. An empty
	// idKey always appends.
	Save(ctx context.Context, target, idKey string, records ...core.Record) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// AsyncBackend is implemented by backends that can execute queries without
// blocking the caller. Callbacks run on a backend-owned goroutine and are
// invoked exactly once unless the call itself returns an error.
type AsyncBackend interface {
	Backend
	SelectAsync(ctx context.Context, q *core.Query, done func([]core.Record, error)) error
	DeleteAsync(ctx context.Context, q *core.DeleteQuery, done func(error)) error
}

// TTLBackend is implemented by backends that can expire records.
type TTLBackend interface {
	Backend
	SaveWithTTL(ctx context.Context, target, idKey string, ttl time.Duration, records ...core.Record) error
}

// NativeBackend is implemented by backends that execute queries written in
// their own language. Positional args bind to the query's placeholders.
type NativeBackend interface {
	Backend
	Native(ctx context.Context, query string, args ...any) ([]core.Record, error)
}
