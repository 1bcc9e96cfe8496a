package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/storage"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	target TEXT NOT NULL,
	id     TEXT,
	doc    TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_id ON records(target, id);
CREATE INDEX IF NOT EXISTS idx_records_target ON records(target, seq);
`

// Store keeps records as JSON documents in a single SQLite table and
// pushes conditions, sorting and paging down to SQL. It implements
// storage.Backend and storage.NativeBackend.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	closed atomic.Bool
}

var _ storage.NativeBackend = (*Store)(nil)

type config struct {
	inMemory bool
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*config) error

// WithInMemory opens a private in-memory database. The path is ignored.
func WithInMemory() Option {
	return func(c *config) error {
		c.inMemory = true
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// Open creates or opens a SQLite database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - a 5-second busy timeout for lock contention
//   - case-sensitive LIKE, matching in-process evaluation
func Open(path string, opts ...Option) (*Store, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	dsn := path
	if cfg.inMemory {
		dsn = ":memory:"
	} else if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer, and an in-memory database lives only as
	// long as its one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := applyPragmas(db, cfg.inMemory); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: cfg.logger.With("component", "sqlite"),
	}, nil
}

func applyPragmas(db *sql.DB, inMemory bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA case_sensitive_like = ON",
	}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// IsClosed returns true if the store is closed.
func (s *Store) IsClosed() bool {
	return s.closed.Load()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Select returns the records of q.Target matching q.Where.
func (s *Store) Select(ctx context.Context, q *core.Query) ([]core.Record, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	query, params, err := Compile(q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("select", "sql", query, "params", len(params))

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var records []core.Record
	for rows.Next() {
		var (
			seq int64
			doc string
		)
		if err := rows.Scan(&seq, &doc); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", q.Target, seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

// Delete removes the records of q.Target matching q.Where.
func (s *Store) Delete(ctx context.Context, q *core.DeleteQuery) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	query, params, err := CompileDelete(q)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("execute delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("deleted records", "target", q.Target, "count", n)
	}
	return nil
}

// Save upserts records into target by the value under idKey, in one
// transaction.
func (s *Store) Save(ctx context.Context, target, idKey string, records ...core.Record) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	if target == "" {
		return fmt.Errorf("%w: empty target", core.ErrInvalidQuery)
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (target, id, doc) VALUES (?, ?, ?)
		ON CONFLICT (target, id) DO UPDATE SET doc = excluded.doc`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: record %d", core.ErrNilArgument, i)
		}
		doc, err := encodeDoc(rec)
		if err != nil {
			return err
		}
		// A NULL id never conflicts, so records without one append.
		var id sql.NullString
		if idKey != "" {
			if v, ok := rec[idKey]; ok && v != nil {
				encoded, err := encodeID(v)
				if err != nil {
					return err
				}
				id = sql.NullString{String: encoded, Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, target, id, doc); err != nil {
			return fmt.Errorf("save record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Native runs a raw SQL query. A doc column holding a JSON object is
// expanded into the record; every other column becomes a field under its
// column name.
func (s *Store) Native(ctx context.Context, query string, args ...any) ([]core.Record, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	params := make([]any, len(args))
	for i, a := range args {
		p, err := sqlParam(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		params[i] = p
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("execute native query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var records []core.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rowRecord(cols, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func rowRecord(cols []string, values []any) core.Record {
	rec := make(core.Record, len(cols))
	for i, col := range cols {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if s, ok := v.(string); ok && col == "doc" {
			if doc, err := decodeDoc(s); err == nil {
				for k, dv := range doc {
					if _, taken := rec[k]; !taken {
						rec[k] = dv
					}
				}
				continue
			}
		}
		rec[col] = v
	}
	return rec
}
