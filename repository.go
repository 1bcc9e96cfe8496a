package reposit

import (
	"context"
	"fmt"
	"reflect"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/dispatch"
)

// Repository is the typed form of the default CRUD methods for entity
// type T, for callers that do not need derived queries.
type Repository[T any] struct {
	d    *dispatch.Dispatcher
	crud *dispatch.Crud
}

// NewRepository returns the CRUD repository for T.
func NewRepository[T any](s *Store) (*Repository[T], error) {
	d, err := DispatcherFor[T](s)
	if err != nil {
		return nil, err
	}
	if d.Entity().IsRecord() {
		return nil, fmt.Errorf("%w: %s is record-backed", core.ErrDynamicQuery, d.Entity().Name())
	}
	return &Repository[T]{d: d, crud: d.Crud()}, nil
}

// Dispatcher returns the dispatcher serving the repository.
func (r *Repository[T]) Dispatcher() *dispatch.Dispatcher {
	return r.d
}

// Save stores entity. An empty string identifier is replaced by a
// generated one, written back to entity.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("%w: entity", core.ErrNilArgument)
	}
	return r.crud.Save(ctx, entity)
}

// SaveAll stores entities in one backend call.
func (r *Repository[T]) SaveAll(ctx context.Context, entities ...*T) error {
	args := make([]any, len(entities))
	for i, e := range entities {
		if e == nil {
			return fmt.Errorf("%w: entity %d", core.ErrNilArgument, i)
		}
		args[i] = e
	}
	return r.crud.SaveAll(ctx, args...)
}

// FindByID returns the entity with identifier id, or nil.
func (r *Repository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	rec, ok, err := r.crud.FindByID(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	v, err := r.d.Entity().ToEntity(rec)
	if err != nil {
		return nil, err
	}
	out := valueOf[T](v)
	return &out, nil
}

// ExistsByID reports whether an entity with identifier id is stored.
func (r *Repository[T]) ExistsByID(ctx context.Context, id any) (bool, error) {
	return r.crud.ExistsByID(ctx, id)
}

// DeleteByID removes the entity with identifier id.
func (r *Repository[T]) DeleteByID(ctx context.Context, id any) error {
	return r.crud.DeleteByID(ctx, id)
}

// Delete removes the stored copy of entity.
func (r *Repository[T]) Delete(ctx context.Context, entity T) error {
	return r.crud.Delete(ctx, entity)
}

// Count returns the number of stored entities.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	return r.crud.Count(ctx)
}

// FindAll returns every entity, sorted and paged.
func (r *Repository[T]) FindAll(ctx context.Context, sort core.Sort, page core.Page) ([]T, error) {
	records, err := r.crud.FindAll(ctx, sort, page)
	if err != nil {
		return nil, err
	}
	return r.entities(records)
}

// Find runs q; an empty target is the entity's own collection.
func (r *Repository[T]) Find(ctx context.Context, q *core.Query) ([]T, error) {
	records, err := r.d.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	return r.entities(records)
}

// Invoke runs a derived method by name, for example
// Invoke(ctx, "findByAgeGreaterThan", 30).
func (r *Repository[T]) Invoke(ctx context.Context, method string, args ...any) ([]T, error) {
	records, err := r.d.Invoke(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return r.entities(records)
}

func (r *Repository[T]) entities(records []core.Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		v, err := r.d.Entity().ToEntity(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, valueOf[T](v))
	}
	return out, nil
}

func valueOf[T any](v reflect.Value) T {
	if t := reflect.TypeFor[T](); t.Kind() == reflect.Pointer {
		return v.Addr().Interface().(T)
	}
	return v.Interface().(T)
}
