package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/derive"
)

// bindDefault binds a CRUD method to the delegate. Entity parameters may
// be the entity type or a pointer to it; identifiers may be any type the
// identifier field accepts.
func (d *Dispatcher) bindDefault(sig *signature) (call, error) {
	elem := d.entity.Type()
	switch name := derive.LowerFirst(sig.name); name {
	case "save":
		if err := d.entityParam(sig, sig.params[0]); err != nil {
			return nil, err
		}
		if sig.result != nil && sig.result != elem && sig.result != reflect.PointerTo(elem) {
			return nil, fmt.Errorf("%w: %s must return error or the saved entity", core.ErrDynamicQuery, sig.name)
		}
		return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
			ptr := entityPointer(args[0])
			if !ptr.IsValid() {
				return reflect.Value{}, fmt.Errorf("%w: entity", core.ErrNilArgument)
			}
			if err := d.crud.Save(ctx, ptr.Interface()); err != nil {
				return reflect.Value{}, err
			}
			switch sig.result {
			case nil:
				return reflect.Value{}, nil
			case elem:
				return ptr.Elem(), nil
			default:
				return ptr, nil
			}
		}, nil

	case "saveAll":
		p := sig.params[0]
		if p.Kind() != reflect.Slice {
			return nil, fmt.Errorf("%w: %s takes a slice of entities", core.ErrDynamicQuery, sig.name)
		}
		if err := d.entityParam(sig, p.Elem()); err != nil {
			return nil, err
		}
		if err := d.errorOnly(sig); err != nil {
			return nil, err
		}
		return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
			list := args[0]
			entities := make([]any, 0, list.Len())
			for i := 0; i < list.Len(); i++ {
				ptr := entityPointer(list.Index(i))
				if !ptr.IsValid() {
					return reflect.Value{}, fmt.Errorf("%w: entity %d", core.ErrNilArgument, i)
				}
				entities = append(entities, ptr.Interface())
			}
			return reflect.Value{}, d.crud.SaveAll(ctx, entities...)
		}, nil

	case "saveWithTTL":
		if err := d.entityParam(sig, sig.params[0]); err != nil {
			return nil, err
		}
		if sig.params[1] != durationType {
			return nil, fmt.Errorf("%w: %s takes (entity, time.Duration)", core.ErrDynamicQuery, sig.name)
		}
		if err := d.errorOnly(sig); err != nil {
			return nil, err
		}
		return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
			ptr := entityPointer(args[0])
			if !ptr.IsValid() {
				return reflect.Value{}, fmt.Errorf("%w: entity", core.ErrNilArgument)
			}
			ttl := time.Duration(args[1].Int())
			return reflect.Value{}, d.crud.SaveWithTTL(ctx, ttl, ptr.Interface())
		}, nil

	case "findByID", "findById":
		a, err := d.resultAdapter(sig)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
			rec, ok, err := d.crud.FindByID(ctx, args[0].Interface())
			if err != nil {
				return reflect.Value{}, err
			}
			var records []core.Record
			if ok {
				records = []core.Record{rec}
			}
			return d.adapt(sig.name, a, records)
		}, nil

	case "existsByID", "existsById":
		if sig.result == nil || sig.result.Kind() != reflect.Bool {
			return nil, fmt.Errorf("%w: %s must return (bool, error)", core.ErrDynamicQuery, sig.name)
		}
		return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
			ok, err := d.crud.ExistsByID(ctx, args[0].Interface())
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(ok).Convert(sig.result), nil
		}, nil

	case "deleteByID", "deleteById":
		if err := d.errorOnly(sig); err != nil {
			return nil, err
		}
		return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
			return reflect.Value{}, d.crud.DeleteByID(ctx, args[0].Interface())
		}, nil

	case "delete":
		if err := d.entityParam(sig, sig.params[0]); err != nil {
			return nil, err
		}
		if err := d.errorOnly(sig); err != nil {
			return nil, err
		}
		return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
			ptr := entityPointer(args[0])
			if !ptr.IsValid() {
				return reflect.Value{}, fmt.Errorf("%w: entity", core.ErrNilArgument)
			}
			return reflect.Value{}, d.crud.Delete(ctx, ptr.Interface())
		}, nil

	case "count":
		if sig.result == nil || !isInteger(sig.result) {
			return nil, fmt.Errorf("%w: %s must return (int, error)", core.ErrDynamicQuery, sig.name)
		}
		return func(ctx context.Context, _ []reflect.Value) (reflect.Value, error) {
			n, err := d.crud.Count(ctx)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(n).Convert(sig.result), nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s is not a default method", core.ErrDynamicQuery, sig.name)
	}
}

// entityParam checks that t is the entity type or a pointer to it.
func (d *Dispatcher) entityParam(sig *signature, t reflect.Type) error {
	elem := d.entity.Type()
	if t == elem || t == reflect.PointerTo(elem) {
		return nil
	}
	return fmt.Errorf("%w: %s takes %s or *%s, not %s", core.ErrDynamicQuery, sig.name, elem, elem, t)
}

// entityPointer returns a pointer to the entity held in v, so generated
// identifiers can be written back. Values are copied; slice elements are
// addressed in place. It returns an invalid Value for nil pointers.
func entityPointer(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		return v
	}
	if v.Kind() == reflect.Map && v.IsNil() {
		return reflect.Value{}
	}
	return addressOf(v)
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
