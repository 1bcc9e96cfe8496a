package badger

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/reposit/storage"
)

const (
	defaultSequenceBandwidth = 100
	defaultMaxAttempts       = 5
	defaultBaseDelay         = 5 * time.Millisecond
	releaseTimeout           = 10 * time.Second
)

// Backend stores records in a BadgerDB instance. It implements
// storage.Backend, storage.AsyncBackend and storage.TTLBackend.
type Backend struct {
	db          *badger.DB
	pool        *ants.Pool
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration

	seqMu sync.Mutex
	seqs  map[string]*badger.Sequence
}

var (
	_ storage.AsyncBackend = (*Backend)(nil)
	_ storage.TTLBackend   = (*Backend)(nil)
)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

type config struct {
	inMemory    bool
	poolSize    int
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// Option configures a Backend.
type Option func(*config) error

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() Option {
	return func(c *config) error {
		c.inMemory = true
		return nil
	}
}

// WithPoolSize sets the worker pool size for asynchronous queries.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(c *config) error {
		if size < 1 {
			size = 1
		}
		c.poolSize = size
		return nil
	}
}

// WithConflictRetry sets how often a conflicting write is attempted and
// the delay before the first retry. The delay doubles on each retry.
func WithConflictRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *config) error {
		if maxAttempts < 1 {
			return fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
		}
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
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

// Open opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func Open(filePath string, opts ...Option) (*Backend, error) {
	cfg := &config{
		poolSize:    max(runtime.NumCPU()/2, 1),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	logger := cfg.logger.With("component", "badger")

	var bopts badger.Options
	if cfg.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := ensureDir(filePath); err != nil {
			return nil, err
		}
		bopts = badger.DefaultOptions(filePath)
	}
	bopts.Logger = &badgerLoggerAdapter{logger: logger}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(cfg.poolSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Backend{
		db:          db,
		pool:        pool,
		logger:      logger,
		maxAttempts: cfg.maxAttempts,
		baseDelay:   cfg.baseDelay,
		seqs:        make(map[string]*badger.Sequence),
	}, nil
}

func ensureDir(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(filePath, 0755); err != nil {
			return err
		}
		info, err = os.Stat(filePath)
		if err != nil {
			return err
		}
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filePath)
	}
	return nil
}

// Close waits for queued asynchronous queries, releases the record
// sequences and closes the database.
func (b *Backend) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	if err := b.pool.ReleaseTimeout(releaseTimeout); err != nil {
		b.logger.Warn("asynchronous queries still running at close", "error", err)
	}

	b.seqMu.Lock()
	for target, seq := range b.seqs {
		if err := seq.Release(); err != nil {
			b.logger.Warn("failed to release sequence", "target", target, "error", err)
		}
	}
	b.seqs = make(map[string]*badger.Sequence)
	b.seqMu.Unlock()

	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// sequence returns the badger sequence numbering target's records.
func (b *Backend) sequence(target string) (*badger.Sequence, error) {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	if seq, ok := b.seqs[target]; ok {
		return seq, nil
	}
	seq, err := b.db.GetSequence(makeSequenceKey(target), defaultSequenceBandwidth)
	if err != nil {
		return nil, err
	}
	b.seqs[target] = seq
	return seq, nil
}

// nextSeq returns the next record number for target. Numbering starts at 1.
func (b *Backend) nextSeq(target string) (uint64, error) {
	seq, err := b.sequence(target)
	if err != nil {
		return 0, err
	}
	next, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if next == 0 {
		return seq.Next()
	}
	return next, nil
}
