package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/dispatch"
	"github.com/poiesic/reposit/storage"
)

// Config controls batching, retries and progress reporting.
type Config struct {
	// BatchSize is the number of records saved per backend call
	BatchSize int

	// ReportInterval is the number of records between progress lines
	ReportInterval int

	// MaxRetries is the number of save attempts per batch
	MaxRetries int

	// RetryDelay is the delay before the first retry; it doubles after each
	RetryDelay time.Duration

	// Workers is the number of batches saved concurrently
	Workers int
}

// DefaultConfig returns the default import configuration.
func DefaultConfig() Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		Workers:        workers,
	}
}

func (c Config) validate() error {
	switch {
	case c.BatchSize < 1:
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: %d", ErrInvalidMaxAttempts, c.MaxRetries)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.RetryDelay < 0:
		return fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay)
	}
	return nil
}

// Stats summarizes a completed import.
type Stats struct {
	Records int
	Batches int
	Elapsed time.Duration
}

// Importer saves decoded documents through a CRUD delegate.
type Importer struct {
	crud   *dispatch.Crud
	cfg    Config
	out    io.Writer
	pool   *ants.Pool
	logger *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) error {
		if logger == nil {
			logger = slog.Default()
		}
		im.logger = logger
		return nil
	}
}

// New creates an importer writing progress to out. Release must be called
// when the importer is no longer needed.
func New(crud *dispatch.Crud, cfg Config, out io.Writer, opts ...Option) (*Importer, error) {
	if crud == nil {
		return nil, ErrCrudRequired
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	if cfg.ReportInterval < 1 {
		cfg.ReportInterval = cfg.BatchSize
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, err
	}
	im := &Importer{
		crud:   crud,
		cfg:    cfg,
		out:    out,
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(im); err != nil {
			pool.Release()
			return nil, err
		}
	}
	return im, nil
}

// Release stops the worker pool.
func (im *Importer) Release() {
	im.pool.Release()
}

// ImportFile decodes the file at path, choosing the format by extension,
// and imports its documents.
func (im *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Stats{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()
	return im.ImportReader(ctx, f, format)
}

// ImportReader decodes every document in r and imports them.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader, format Format) (Stats, error) {
	records, err := Decode(r, format)
	if err != nil {
		return Stats{}, err
	}
	return im.Import(ctx, records)
}

// Import converts records to entities and saves them in batches. Every
// record is converted before the first save, so a record that does not
// fit the entity aborts the import with nothing written. The first failed
// batch cancels the batches that have not started; batches already saved
// stay saved.
func (im *Importer) Import(ctx context.Context, records []core.Record) (Stats, error) {
	entity := im.crud.Entity()
	entities := make([]any, len(records))
	for i, rec := range records {
		v, err := entity.ToEntity(rec)
		if err != nil {
			return Stats{}, fmt.Errorf("record %d: %w", i, err)
		}
		if v.CanAddr() {
			entities[i] = v.Addr().Interface()
		} else {
			entities[i] = v.Interface()
		}
	}

	progress := NewProgress(im.out, "Importing "+entity.StorageName(), len(entities), im.cfg.ReportInterval)
	fmt.Fprintf(im.out, "Importing %d records into %s\n", len(entities), entity.StorageName())
	im.logger.Info("starting import", "target", entity.StorageName(), "records", len(entities), "batchSize", im.cfg.BatchSize)
	progress.Start()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	retry := storage.RetryPolicy{MaxAttempts: im.cfg.MaxRetries, BaseDelay: im.cfg.RetryDelay}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		batches  int
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for start := 0; start < len(entities); start += im.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+im.cfg.BatchSize, len(entities))
		batch := entities[start:end]
		first := start
		batches++

		wg.Add(1)
		err := im.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			err := retry.Do(ctx, im.logger, func() error {
				return im.crud.SaveAll(ctx, batch...)
			})
			if err != nil {
				im.logger.Error("batch failed", "first", first, "size", len(batch), "error", err)
				fail(fmt.Errorf("batch at record %d: %w", first, err))
				return
			}
			progress.Add(len(batch))
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit batch at record %d: %w", first, err))
			break
		}
	}
	wg.Wait()
	progress.Finish()

	stats := Stats{Records: progress.Done(), Batches: batches, Elapsed: progress.Elapsed()}
	if firstErr == nil {
		if err := ctx.Err(); err != nil && stats.Records < len(entities) {
			firstErr = err
		}
	}
	if firstErr != nil {
		return stats, firstErr
	}

	fmt.Fprintf(im.out, "Imported %d records in %s\n", stats.Records, stats.Elapsed.Round(time.Millisecond))
	im.logger.Info("import complete", "target", entity.StorageName(), "records", stats.Records, "batches", stats.Batches, "elapsed", stats.Elapsed)
	return stats, nil
}
