package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/derive"
	"github.com/poiesic/reposit/storage"
)

// asyncSignature is an async repository method: an optional leading
// context, the query arguments, and an optional trailing callback. The
// method itself returns only an error, reporting failures to start.
type asyncSignature struct {
	name   string
	fn     reflect.Type
	hasCtx bool
	params []reflect.Type
	// callback is nil when the method takes none.
	callback reflect.Type
	// result is the callback's value type, nil for func(error).
	result reflect.Type
}

func parseAsyncSignature(name string, fn reflect.Type) (*asyncSignature, error) {
	if fn.NumOut() != 1 || fn.Out(0) != errorType {
		return nil, fmt.Errorf("%w: async %s must return only error", core.ErrDynamicQuery, name)
	}
	if fn.IsVariadic() {
		return nil, fmt.Errorf("%w: %s must not be variadic", core.ErrDynamicQuery, name)
	}
	sig := &asyncSignature{name: name, fn: fn}
	first, last := 0, fn.NumIn()
	if last > 0 && fn.In(0) == contextType {
		sig.hasCtx = true
		first = 1
	}
	if last > first {
		if cb := fn.In(last - 1); isCallback(cb) {
			sig.callback = cb
			if cb.NumIn() == 2 {
				sig.result = cb.In(0)
			}
			last--
		}
	}
	for i := first; i < last; i++ {
		sig.params = append(sig.params, fn.In(i))
	}
	return sig, nil
}

// isCallback reports whether t is func(error) or func(R, error).
func isCallback(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumOut() != 0 || t.IsVariadic() {
		return false
	}
	switch t.NumIn() {
	case 1:
		return t.In(0) == errorType
	case 2:
		return t.In(1) == errorType
	}
	return false
}

// asyncCall starts a bound async method. done delivers the outcome; it is
// not called when the start itself fails.
type asyncCall func(ctx context.Context, args []reflect.Value, done func(reflect.Value, error)) error

// BindAsync fills every exported func field of the struct repo points to
// with a non-blocking implementation. Queries compile on the calling
// goroutine; execution and the callback happen on the backend's workers.
// Only finds and deletes can run asynchronously. The backend must
// implement storage.AsyncBackend; that is checked on each call.
func (d *Dispatcher) BindAsync(repo any) error {
	typeName, fields, err := repositoryFields(repo)
	if err != nil {
		return err
	}
	impls := make([]reflect.Value, len(fields))
	for i, f := range fields {
		fn, err := d.bindAsyncMethod(f.field)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", typeName, f.field.Name, err)
		}
		impls[i] = fn
	}
	for i, f := range fields {
		f.value.Set(impls[i])
	}
	d.logger.Debug("bound async repository", "type", typeName, "methods", len(fields))
	return nil
}

func (d *Dispatcher) bindAsyncMethod(sf reflect.StructField) (reflect.Value, error) {
	native := sf.Tag.Get(NativeTag)
	sig, err := parseAsyncSignature(sf.Name, sf.Type)
	if err != nil {
		switch Classify(Method{Name: sf.Name, Params: rawParams(sf.Type), Native: native}) {
		case KindObject:
			return d.inert(sf.Type, d.describe()), nil
		case KindUnknown:
			d.logger.Warn("method matches no repository convention; it will return zero values", "method", sf.Name)
			return d.inert(sf.Type, ""), nil
		}
		return reflect.Value{}, err
	}
	kind := Classify(Method{Name: sf.Name, Params: sig.params, Native: native})

	var body asyncCall
	switch kind {
	case KindFindBy, KindFindAll, KindQuery:
		body, err = d.bindAsyncSelect(sig, kind)
	case KindDeleteBy, KindQueryDelete:
		body, err = d.bindAsyncDelete(sig, kind)
	case KindDefault:
		body, err = d.bindAsyncDefault(sig)
	case KindNative:
		err = fmt.Errorf("%w: native queries cannot run asynchronously", core.ErrUnsupported)
	case KindObject:
		return d.inert(sf.Type, d.describe()), nil
	default:
		d.logger.Warn("method matches no repository convention; it will return zero values", "method", sf.Name)
		return d.inert(sf.Type, ""), nil
	}
	if err != nil {
		return reflect.Value{}, err
	}
	return d.makeAsyncFunc(sig, kind, body), nil
}

// selectCallback checks that a select method delivers its result through
// a func(R, error) and returns the adapter for R.
func (d *Dispatcher) selectCallback(sig *asyncSignature) (*Adapter, error) {
	if sig.callback == nil || sig.result == nil {
		return nil, fmt.Errorf("%w: async %s needs a trailing func(R, error) callback", core.ErrDynamicQuery, sig.name)
	}
	return NewAdapter(sig.result, d.entity.Type())
}

func (d *Dispatcher) deleteCallback(sig *asyncSignature) error {
	if sig.callback != nil && sig.result != nil {
		return fmt.Errorf("%w: async %s takes a func(error) callback", core.ErrDynamicQuery, sig.name)
	}
	return nil
}

func (d *Dispatcher) bindAsyncSelect(sig *asyncSignature, kind Kind) (asyncCall, error) {
	a, err := d.selectCallback(sig)
	if err != nil {
		return nil, err
	}
	var compile func(args []any) (*core.Query, error)
	switch kind {
	case KindQuery:
		compile = func(args []any) (*core.Query, error) {
			return d.targetQuery(queryArg(args))
		}
	default:
		plan, err := d.selectPlan(sig.name, kind)
		if err != nil {
			return nil, err
		}
		compile = plan.Select
	}
	return func(ctx context.Context, args []reflect.Value, done func(reflect.Value, error)) error {
		q, err := compile(interfaceArgs(args))
		if err != nil {
			return err
		}
		return d.selectAsync(ctx, kind, sig.name, q, a, false, done)
	}, nil
}

// selectAsync runs q on the backend's workers. Identifier lookups pass
// strict, which rejects several matches even in first-match mode.
func (d *Dispatcher) selectAsync(ctx context.Context, kind Kind, method string, q *core.Query, a *Adapter, strict bool, done func(reflect.Value, error)) error {
	ab, err := d.asyncBackend()
	if err != nil {
		return err
	}
	return ab.SelectAsync(ctx, q, func(records []core.Record, err error) {
		if err != nil {
			done(reflect.Value{}, err)
			return
		}
		d.metrics.observeResults(d.entity.Name(), kind, len(records))
		if strict && len(records) > 1 {
			done(reflect.Value{}, fmt.Errorf("%w: %s matched %d records", core.ErrNonUniqueResult, method, len(records)))
			return
		}
		done(d.adapt(method, a, records))
	})
}

func (d *Dispatcher) bindAsyncDelete(sig *asyncSignature, kind Kind) (asyncCall, error) {
	if err := d.deleteCallback(sig); err != nil {
		return nil, err
	}
	var compile func(args []any) (*core.DeleteQuery, error)
	switch kind {
	case KindQueryDelete:
		compile = func(args []any) (*core.DeleteQuery, error) {
			return d.targetDeleteQuery(deleteQueryArg(args))
		}
	default:
		plan, err := d.compiler.Plan(sig.name, derive.FormDelete)
		if err != nil {
			return nil, err
		}
		compile = plan.Delete
	}
	return func(ctx context.Context, args []reflect.Value, done func(reflect.Value, error)) error {
		q, err := compile(interfaceArgs(args))
		if err != nil {
			return err
		}
		return d.deleteAsync(ctx, q, done)
	}, nil
}

func (d *Dispatcher) deleteAsync(ctx context.Context, q *core.DeleteQuery, done func(reflect.Value, error)) error {
	ab, err := d.asyncBackend()
	if err != nil {
		return err
	}
	return ab.DeleteAsync(ctx, q, func(err error) {
		done(reflect.Value{}, err)
	})
}

// bindAsyncDefault binds the identifier lookups and deletes. Saves and
// counts have no asynchronous form.
func (d *Dispatcher) bindAsyncDefault(sig *asyncSignature) (asyncCall, error) {
	switch derive.LowerFirst(sig.name) {
	case "findByID", "findById":
		a, err := d.selectCallback(sig)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, args []reflect.Value, done func(reflect.Value, error)) error {
			q, err := d.crud.IDQuery(args[0].Interface())
			if err != nil {
				return err
			}
			return d.selectAsync(ctx, KindDefault, sig.name, q, a, true, done)
		}, nil
	case "deleteByID", "deleteById":
		if err := d.deleteCallback(sig); err != nil {
			return nil, err
		}
		return func(ctx context.Context, args []reflect.Value, done func(reflect.Value, error)) error {
			q, err := d.crud.IDDeleteQuery(args[0].Interface())
			if err != nil {
				return err
			}
			return d.deleteAsync(ctx, q, done)
		}, nil
	case "delete":
		if err := d.deleteCallback(sig); err != nil {
			return nil, err
		}
		if err := d.entityParam(&signature{name: sig.name}, sig.params[0]); err != nil {
			return nil, err
		}
		return func(ctx context.Context, args []reflect.Value, done func(reflect.Value, error)) error {
			ptr := entityPointer(args[0])
			if !ptr.IsValid() {
				return fmt.Errorf("%w: entity", core.ErrNilArgument)
			}
			id, err := d.entity.IDValue(ptr.Interface())
			if err != nil {
				return err
			}
			q, err := d.crud.IDDeleteQuery(id)
			if err != nil {
				return err
			}
			return d.deleteAsync(ctx, q, done)
		}, nil
	}
	return nil, fmt.Errorf("%w: %s cannot run asynchronously", core.ErrUnsupported, sig.name)
}

func (d *Dispatcher) asyncBackend() (storage.AsyncBackend, error) {
	ab, ok := d.backend.(storage.AsyncBackend)
	if !ok {
		return nil, fmt.Errorf("%w: asynchronous execution", core.ErrUnsupported)
	}
	return ab, nil
}

// makeAsyncFunc wraps an async body into a function of the declared type.
// The callback runs at most once and only when the start succeeded.
func (d *Dispatcher) makeAsyncFunc(sig *asyncSignature, kind Kind, body asyncCall) reflect.Value {
	entity := d.entity.Name()
	return reflect.MakeFunc(sig.fn, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		args := in
		if sig.hasCtx {
			if c, ok := in[0].Interface().(context.Context); ok && c != nil {
				ctx = c
			}
			args = args[1:]
		}
		var cb reflect.Value
		if sig.callback != nil {
			cb = args[len(args)-1]
			args = args[:len(args)-1]
			if cb.IsNil() {
				return asyncResult(fmt.Errorf("%w: callback", core.ErrNilArgument))
			}
		}

		start := time.Now()
		var once sync.Once
		done := func(v reflect.Value, err error) {
			once.Do(func() {
				d.metrics.observe(entity, kind, start, err)
				if cb.IsValid() {
					cb.Call(callbackArgs(sig, v, err))
				}
			})
		}
		if err := body(ctx, args, done); err != nil {
			d.metrics.observe(entity, kind, start, err)
			return asyncResult(err)
		}
		return asyncResult(nil)
	})
}

func asyncResult(err error) []reflect.Value {
	if err == nil {
		return []reflect.Value{reflect.Zero(errorType)}
	}
	return []reflect.Value{reflect.ValueOf(&err).Elem()}
}

func callbackArgs(sig *asyncSignature, v reflect.Value, err error) []reflect.Value {
	errVal := asyncResult(err)[0]
	if sig.result == nil {
		return []reflect.Value{errVal}
	}
	if err != nil || !v.IsValid() {
		return []reflect.Value{reflect.Zero(sig.result), errVal}
	}
	if v.Type() != sig.result {
		out := reflect.New(sig.result).Elem()
		out.Set(v)
		v = out
	}
	return []reflect.Value{v, errVal}
}
