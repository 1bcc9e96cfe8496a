package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/derive"
	"github.com/poiesic/reposit/mapping"
	"github.com/poiesic/reposit/storage"
)

const defaultPlanCacheSize = 256

type planKey struct {
	method string
	form   derive.Form
}

// Dispatcher routes repository calls for one entity to the query compiler,
// the CRUD delegate and the storage backend. Bound methods share it; it
// holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	entity     *mapping.Entity
	backend    storage.Backend
	compiler   *derive.Compiler
	crud       *Crud
	logger     *slog.Logger
	firstMatch bool
	metrics    *Metrics
	plans      *lru.Cache[planKey, *derive.Plan]
}

type config struct {
	logger        *slog.Logger
	firstMatch    bool
	planCacheSize int
	metrics       *Metrics
}

// Option configures a Dispatcher.
type Option func(*config) error

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

// WithFirstMatch makes single-result methods return the first match
// instead of failing with core.ErrNonUniqueResult when several records
// match. FindByID always enforces uniqueness.
func WithFirstMatch() Option {
	return func(c *config) error {
		c.firstMatch = true
		return nil
	}
}

// WithPlanCacheSize bounds the number of compiled plans Invoke keeps.
// Default is 256.
func WithPlanCacheSize(size int) Option {
	return func(c *config) error {
		if size < 1 {
			return fmt.Errorf("plan cache size must be at least 1, got %d", size)
		}
		c.planCacheSize = size
		return nil
	}
}

// WithMetrics records calls in m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}

// New creates a dispatcher for entity on backend.
func New(entity *mapping.Entity, backend storage.Backend, opts ...Option) (*Dispatcher, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: entity", core.ErrNilArgument)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: backend", core.ErrNilArgument)
	}
	cfg := &config{
		logger:        slog.Default(),
		planCacheSize: defaultPlanCacheSize,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	logger := cfg.logger.With("component", "dispatch", "entity", entity.Name())

	compiler, err := derive.NewCompiler(entity, derive.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	crud, err := NewCrud(entity, backend, logger)
	if err != nil {
		return nil, err
	}
	plans, err := lru.New[planKey, *derive.Plan](cfg.planCacheSize)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		entity:     entity,
		backend:    backend,
		compiler:   compiler,
		crud:       crud,
		logger:     logger,
		firstMatch: cfg.firstMatch,
		metrics:    cfg.metrics,
		plans:      plans,
	}, nil
}

// Entity returns the entity the dispatcher serves.
func (d *Dispatcher) Entity() *mapping.Entity {
	return d.entity
}

// Crud returns the default CRUD delegate.
func (d *Dispatcher) Crud() *Crud {
	return d.crud
}

// Find executes a caller-built query. An empty target defaults to the
// entity's storage name.
func (d *Dispatcher) Find(ctx context.Context, q *core.Query) ([]core.Record, error) {
	start := time.Now()
	records, err := d.find(ctx, q)
	d.metrics.observe(d.entity.Name(), KindQuery, start, err)
	return records, err
}

func (d *Dispatcher) find(ctx context.Context, q *core.Query) ([]core.Record, error) {
	q, err := d.targetQuery(q)
	if err != nil {
		return nil, err
	}
	return d.selectRecords(ctx, KindQuery, q)
}

// Remove executes a caller-built delete query. An empty target defaults
// to the entity's storage name.
func (d *Dispatcher) Remove(ctx context.Context, q *core.DeleteQuery) error {
	start := time.Now()
	err := d.remove(ctx, q)
	d.metrics.observe(d.entity.Name(), KindQueryDelete, start, err)
	return err
}

func (d *Dispatcher) remove(ctx context.Context, q *core.DeleteQuery) error {
	q, err := d.targetDeleteQuery(q)
	if err != nil {
		return err
	}
	return d.backend.Delete(ctx, q)
}

func (d *Dispatcher) targetQuery(q *core.Query) (*core.Query, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: query", core.ErrNilArgument)
	}
	if q.Target == "" {
		cp := *q
		cp.Target = d.entity.StorageName()
		q = &cp
	}
	return q, nil
}

func (d *Dispatcher) targetDeleteQuery(q *core.DeleteQuery) (*core.DeleteQuery, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: delete query", core.ErrNilArgument)
	}
	if q.Target == "" {
		cp := *q
		cp.Target = d.entity.StorageName()
		q = &cp
	}
	return q, nil
}

// plan returns the compiled plan for a derived method name, compiling it
// on first use.
func (d *Dispatcher) plan(method string, form derive.Form) (*derive.Plan, error) {
	key := planKey{method: method, form: form}
	if p, ok := d.plans.Get(key); ok {
		return p, nil
	}
	p, err := d.compiler.Plan(method, form)
	if err != nil {
		return nil, err
	}
	d.plans.Add(key, p)
	return p, nil
}

// Explain compiles a method call without executing it and returns the
// resulting *core.Query or *core.DeleteQuery.
func (d *Dispatcher) Explain(method string, args ...any) (fmt.Stringer, error) {
	switch kind := Classify(methodOf(method, args)); kind {
	case KindFindBy:
		p, err := d.plan(method, derive.FormSelect)
		if err != nil {
			return nil, err
		}
		return p.Select(args)
	case KindFindAll:
		return d.compiler.All(method).Select(args)
	case KindDeleteBy:
		p, err := d.plan(method, derive.FormDelete)
		if err != nil {
			return nil, err
		}
		return p.Delete(args)
	case KindQuery:
		return d.targetQuery(queryArg(args))
	case KindQueryDelete:
		return d.targetDeleteQuery(deleteQueryArg(args))
	case KindDefault:
		switch derive.LowerFirst(method) {
		case "findByID", "findById", "existsByID", "existsById":
			return d.crud.IDQuery(args[0])
		case "deleteByID", "deleteById":
			return d.crud.IDDeleteQuery(args[0])
		}
		fallthrough
	default:
		return nil, fmt.Errorf("%w: %s (%s) does not compile to a query", core.ErrDynamicQuery, method, kind)
	}
}

// Invoke runs a repository method by name with dynamic arguments and
// returns the matching records. Delete methods return no records.
// Compiled plans are cached, so repeated calls skip name parsing.
func (d *Dispatcher) Invoke(ctx context.Context, method string, args ...any) ([]core.Record, error) {
	kind := Classify(methodOf(method, args))
	start := time.Now()
	records, err := d.invoke(ctx, kind, method, args)
	d.metrics.observe(d.entity.Name(), kind, start, err)
	return records, err
}

func (d *Dispatcher) invoke(ctx context.Context, kind Kind, method string, args []any) ([]core.Record, error) {
	switch kind {
	case KindFindBy, KindFindAll, KindQuery:
		compiled, err := d.Explain(method, args...)
		if err != nil {
			return nil, err
		}
		return d.selectRecords(ctx, kind, compiled.(*core.Query))
	case KindDeleteBy, KindQueryDelete:
		compiled, err := d.Explain(method, args...)
		if err != nil {
			return nil, err
		}
		return nil, d.backend.Delete(ctx, compiled.(*core.DeleteQuery))
	case KindDefault:
		switch derive.LowerFirst(method) {
		case "findByID", "findById":
			rec, ok, err := d.crud.FindByID(ctx, args[0])
			if err != nil || !ok {
				return nil, err
			}
			return []core.Record{rec}, nil
		case "deleteByID", "deleteById":
			return nil, d.crud.DeleteByID(ctx, args[0])
		}
	}
	return nil, fmt.Errorf("%w: %s (%s) cannot be invoked dynamically", core.ErrDynamicQuery, method, kind)
}

func (d *Dispatcher) selectRecords(ctx context.Context, kind Kind, q *core.Query) ([]core.Record, error) {
	records, err := d.backend.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	d.metrics.observeResults(d.entity.Name(), kind, len(records))
	return records, nil
}

// entities converts records to values of the entity type.
func (d *Dispatcher) entities(records []core.Record) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(records))
	for i, rec := range records {
		v, err := d.entity.ToEntity(rec)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// unique enforces the at-most-one rule for single-result shapes.
func (d *Dispatcher) unique(method string, a *Adapter, n int) error {
	if n > 1 && a.Single() && !d.firstMatch {
		return fmt.Errorf("%w: %s matched %d records", core.ErrNonUniqueResult, method, n)
	}
	return nil
}

func methodOf(name string, args []any) Method {
	params := make([]reflect.Type, len(args))
	for i, a := range args {
		params[i] = reflect.TypeOf(a)
	}
	return Method{Name: name, Params: params}
}

func queryArg(args []any) *core.Query {
	for _, a := range args {
		switch q := a.(type) {
		case *core.Query:
			return q
		case core.Query:
			return &q
		}
	}
	return nil
}

func deleteQueryArg(args []any) *core.DeleteQuery {
	for _, a := range args {
		switch q := a.(type) {
		case *core.DeleteQuery:
			return q
		case core.DeleteQuery:
			return &q
		}
	}
	return nil
}
