package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/mapping"
	"github.com/poiesic/reposit/storage"
)

// Crud implements the default repository methods for one entity. Every
// identifier operation is a Query or DeleteQuery on the identifier field.
type Crud struct {
	entity  *mapping.Entity
	backend storage.Backend
	logger  *slog.Logger
	newID   func() string
}

// NewCrud returns the CRUD delegate for entity on backend.
func NewCrud(entity *mapping.Entity, backend storage.Backend, logger *slog.Logger) (*Crud, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: entity", core.ErrNilArgument)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: backend", core.ErrNilArgument)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crud{
		entity:  entity,
		backend: backend,
		logger:  logger,
		newID:   uuid.NewString,
	}, nil
}

// Entity returns the entity the delegate serves.
func (c *Crud) Entity() *mapping.Entity {
	return c.entity
}

// Save stores entity, replacing any stored record with the same
// identifier. An empty string identifier is replaced by a new UUID, which
// is also written back when entity is a pointer or a core.Record.
func (c *Crud) Save(ctx context.Context, entity any) error {
	return c.save(ctx, 0, []any{entity})
}

// SaveAll stores entities in one backend call.
func (c *Crud) SaveAll(ctx context.Context, entities ...any) error {
	return c.save(ctx, 0, entities)
}

// SaveWithTTL stores entities that expire after ttl, which must be
// positive. The backend must implement storage.TTLBackend.
func (c *Crud) SaveWithTTL(ctx context.Context, ttl time.Duration, entities ...any) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", core.ErrInvalidQuery, ttl)
	}
	if _, ok := c.backend.(storage.TTLBackend); !ok {
		return fmt.Errorf("%w: time-to-live", core.ErrUnsupported)
	}
	return c.save(ctx, ttl, entities)
}

func (c *Crud) save(ctx context.Context, ttl time.Duration, entities []any) error {
	records := make([]core.Record, 0, len(entities))
	for i, e := range entities {
		if isNil(e) {
			return fmt.Errorf("%w: entity %d", core.ErrNilArgument, i)
		}
		rec, err := c.entity.ToRecord(e)
		if err != nil {
			return err
		}
		if err := c.ensureID(e, rec); err != nil {
			return err
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}

	var idKey string
	if f, ok := c.entity.IdentifierField(); ok {
		idKey = f.Key
	}
	target := c.entity.StorageName()
	if ttl > 0 {
		return c.backend.(storage.TTLBackend).SaveWithTTL(ctx, target, idKey, ttl, records...)
	}
	return c.backend.Save(ctx, target, idKey, records...)
}

// ensureID fills in a generated identifier when the identifier is a
// string and empty.
func (c *Crud) ensureID(entity any, rec core.Record) error {
	f, ok := c.entity.IdentifierField()
	if !ok {
		return nil
	}
	if f.Type != nil && f.Type.Kind() != reflect.String {
		return nil
	}
	if v, present := rec[f.Key]; present && v != nil && v != "" {
		return nil
	}

	id := c.newID()
	stored, err := c.entity.StorageID(id)
	if err != nil {
		return err
	}
	rec[f.Key] = stored
	if err := c.entity.SetID(entity, id); err != nil && !errors.Is(err, mapping.ErrTypeMismatch) {
		return err
	}
	c.logger.Debug("generated identifier", "entity", c.entity.Name(), "id", id)
	return nil
}

// IDQuery returns the query selecting the record with identifier id.
func (c *Crud) IDQuery(id any) (*core.Query, error) {
	cond, err := c.idCondition(id)
	if err != nil {
		return nil, err
	}
	return core.Select(c.entity.StorageName()).Filter(cond), nil
}

// IDDeleteQuery returns the query deleting the record with identifier id.
func (c *Crud) IDDeleteQuery(id any) (*core.DeleteQuery, error) {
	cond, err := c.idCondition(id)
	if err != nil {
		return nil, err
	}
	return core.Delete(c.entity.StorageName()).Filter(cond), nil
}

func (c *Crud) idCondition(id any) (core.Condition, error) {
	f, ok := c.entity.IdentifierField()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrIDNotFound, c.entity.Name())
	}
	if isNil(id) {
		return nil, fmt.Errorf("%w: identifier", core.ErrNilArgument)
	}
	stored, err := c.entity.StorageID(id)
	if err != nil {
		return nil, err
	}
	return core.Eq(f.Key, stored), nil
}

// FindByID returns the record with identifier id. More than one match
// fails with core.ErrNonUniqueResult.
func (c *Crud) FindByID(ctx context.Context, id any) (core.Record, bool, error) {
	q, err := c.IDQuery(id)
	if err != nil {
		return nil, false, err
	}
	records, err := c.backend.Select(ctx, q)
	if err != nil {
		return nil, false, err
	}
	switch len(records) {
	case 0:
		return nil, false, nil
	case 1:
		return records[0], true, nil
	default:
		return nil, false, fmt.Errorf("%w: %s id %v matched %d records", core.ErrNonUniqueResult, c.entity.Name(), id, len(records))
	}
}

// ExistsByID reports whether a record with identifier id is stored.
func (c *Crud) ExistsByID(ctx context.Context, id any) (bool, error) {
	q, err := c.IDQuery(id)
	if err != nil {
		return false, err
	}
	records, err := c.backend.Select(ctx, q.Paged(core.Limit(1)))
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// DeleteByID removes the record with identifier id.
func (c *Crud) DeleteByID(ctx context.Context, id any) error {
	q, err := c.IDDeleteQuery(id)
	if err != nil {
		return err
	}
	return c.backend.Delete(ctx, q)
}

// Delete removes the stored record of entity, matched by identifier.
func (c *Crud) Delete(ctx context.Context, entity any) error {
	if isNil(entity) {
		return fmt.Errorf("%w: entity", core.ErrNilArgument)
	}
	id, err := c.entity.IDValue(entity)
	if err != nil {
		return err
	}
	return c.DeleteByID(ctx, id)
}

// Count returns the number of stored records of the entity.
func (c *Crud) Count(ctx context.Context) (int, error) {
	records, err := c.backend.Select(ctx, core.Select(c.entity.StorageName()))
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// FindAll returns every record of the entity, sorted and paged.
func (c *Crud) FindAll(ctx context.Context, sort core.Sort, page core.Page) ([]core.Record, error) {
	q := core.Select(c.entity.StorageName()).OrderBy(sort...).Paged(page)
	return c.backend.Select(ctx, q)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}
