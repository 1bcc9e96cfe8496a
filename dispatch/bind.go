package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/derive"
	"github.com/poiesic/reposit/storage"
)

var (
	contextType  = reflect.TypeFor[context.Context]()
	errorType    = reflect.TypeFor[error]()
	durationType = reflect.TypeFor[time.Duration]()
)

// call is a bound method body. It receives the arguments after the
// context and returns the declared result, or an invalid Value when the
// method returns only an error.
type call func(ctx context.Context, args []reflect.Value) (reflect.Value, error)

// signature is a repository method type split into its parts.
type signature struct {
	name   string
	fn     reflect.Type
	hasCtx bool
	params []reflect.Type
	// result is nil for methods returning only an error.
	result reflect.Type
}

func parseSignature(name string, fn reflect.Type) (*signature, error) {
	sig := &signature{name: name, fn: fn}
	switch fn.NumOut() {
	case 1:
	case 2:
		sig.result = fn.Out(0)
	default:
		return nil, fmt.Errorf("%w: %s must return (error) or (R, error)", core.ErrDynamicQuery, name)
	}
	if fn.Out(fn.NumOut()-1) != errorType {
		return nil, fmt.Errorf("%w: %s must return error last", core.ErrDynamicQuery, name)
	}
	if fn.IsVariadic() {
		return nil, fmt.Errorf("%w: %s must not be variadic", core.ErrDynamicQuery, name)
	}
	first := 0
	if fn.NumIn() > 0 && fn.In(0) == contextType {
		sig.hasCtx = true
		first = 1
	}
	for i := first; i < fn.NumIn(); i++ {
		sig.params = append(sig.params, fn.In(i))
	}
	return sig, nil
}

// boundField is an exported func-typed field of a repository struct.
type boundField struct {
	field reflect.StructField
	value reflect.Value
}

// repositoryFields returns the settable func fields of the struct repo
// points to.
func repositoryFields(repo any) (string, []boundField, error) {
	rv := reflect.ValueOf(repo)
	if repo == nil || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return "", nil, fmt.Errorf("%w: repository must be a non-nil pointer to a struct, got %T", core.ErrNilArgument, repo)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return "", nil, fmt.Errorf("%w: repository must be a pointer to a struct, got %T", core.ErrDynamicQuery, repo)
	}
	t := rv.Type()
	var fields []boundField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Type.Kind() != reflect.Func {
			continue
		}
		fields = append(fields, boundField{field: sf, value: rv.Field(i)})
	}
	return t.Name(), fields, nil
}

// Bind fills every exported func field of the struct repo points to.
// Each method is classified and compiled once, here; calls only bind
// arguments. A method that cannot be bound fails the whole bind and
// leaves repo untouched.
func (d *Dispatcher) Bind(repo any) error {
	typeName, fields, err := repositoryFields(repo)
	if err != nil {
		return err
	}
	impls := make([]reflect.Value, len(fields))
	for i, f := range fields {
		fn, err := d.bindMethod(f.field)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", typeName, f.field.Name, err)
		}
		impls[i] = fn
	}
	for i, f := range fields {
		f.value.Set(impls[i])
	}
	d.logger.Debug("bound repository", "type", typeName, "methods", len(fields))
	return nil
}

func (d *Dispatcher) bindMethod(sf reflect.StructField) (reflect.Value, error) {
	native := sf.Tag.Get(NativeTag)
	sig, err := parseSignature(sf.Name, sf.Type)
	if err != nil {
		// Methods outside every convention may have any shape.
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

	var body call
	switch kind {
	case KindFindBy, KindFindAll:
		body, err = d.bindDerivedSelect(sig, kind)
	case KindDeleteBy:
		body, err = d.bindDerivedDelete(sig)
	case KindQuery:
		body, err = d.bindQuery(sig)
	case KindQueryDelete:
		body, err = d.bindQueryDelete(sig)
	case KindNative:
		body, err = d.bindNative(sig, native)
	case KindDefault:
		body, err = d.bindDefault(sig)
	case KindObject:
		return d.inert(sf.Type, d.describe()), nil
	default:
		d.logger.Warn("method matches no repository convention; it will return zero values", "method", sf.Name)
		return d.inert(sf.Type, ""), nil
	}
	if err != nil {
		return reflect.Value{}, err
	}
	return d.makeFunc(sig, kind, body), nil
}

func rawParams(fn reflect.Type) []reflect.Type {
	var params []reflect.Type
	for i := 0; i < fn.NumIn(); i++ {
		if i == 0 && fn.In(0) == contextType {
			continue
		}
		params = append(params, fn.In(i))
	}
	return params
}

func (d *Dispatcher) describe() string {
	return fmt.Sprintf("repository of %s (%s)", d.entity.Name(), d.entity.StorageName())
}

// inert returns a function of type fn that returns zero values, or desc
// for string results when desc is set.
func (d *Dispatcher) inert(fn reflect.Type, desc string) reflect.Value {
	return reflect.MakeFunc(fn, func([]reflect.Value) []reflect.Value {
		out := make([]reflect.Value, fn.NumOut())
		for i := range out {
			t := fn.Out(i)
			if desc != "" && t.Kind() == reflect.String {
				out[i] = reflect.ValueOf(desc).Convert(t)
				continue
			}
			out[i] = reflect.Zero(t)
		}
		return out
	})
}

// makeFunc wraps a bound body into a function of the declared type.
func (d *Dispatcher) makeFunc(sig *signature, kind Kind, body call) reflect.Value {
	entity := d.entity.Name()
	return reflect.MakeFunc(sig.fn, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		args := in
		if sig.hasCtx {
			if c, ok := in[0].Interface().(context.Context); ok && c != nil {
				ctx = c
			}
			args = in[1:]
		}
		start := time.Now()
		res, err := body(ctx, args)
		d.metrics.observe(entity, kind, start, err)
		return results(sig, res, err)
	})
}

func results(sig *signature, res reflect.Value, err error) []reflect.Value {
	errVal := reflect.Zero(errorType)
	if err != nil {
		errVal = reflect.ValueOf(&err).Elem()
	}
	if sig.result == nil {
		return []reflect.Value{errVal}
	}
	if err != nil || !res.IsValid() {
		return []reflect.Value{reflect.Zero(sig.result), errVal}
	}
	if res.Type() != sig.result {
		out := reflect.New(sig.result).Elem()
		out.Set(res)
		res = out
	}
	return []reflect.Value{res, errVal}
}

func interfaceArgs(args []reflect.Value) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Interface()
	}
	return out
}

func (d *Dispatcher) resultAdapter(sig *signature) (*Adapter, error) {
	if sig.result == nil {
		return nil, fmt.Errorf("%w: %s must return (R, error)", core.ErrDynamicQuery, sig.name)
	}
	return NewAdapter(sig.result, d.entity.Type())
}

func (d *Dispatcher) errorOnly(sig *signature) error {
	if sig.result != nil {
		return fmt.Errorf("%w: %s must return only error", core.ErrDynamicQuery, sig.name)
	}
	return nil
}

// selectAdapted runs q and reshapes the result for adapter.
func (d *Dispatcher) selectAdapted(ctx context.Context, kind Kind, method string, q *core.Query, a *Adapter) (reflect.Value, error) {
	records, err := d.selectRecords(ctx, kind, q)
	if err != nil {
		return reflect.Value{}, err
	}
	return d.adapt(method, a, records)
}

func (d *Dispatcher) adapt(method string, a *Adapter, records []core.Record) (reflect.Value, error) {
	if err := d.unique(method, a, len(records)); err != nil {
		return reflect.Value{}, err
	}
	if a.Single() && len(records) > 1 {
		records = records[:1]
	}
	items, err := d.entities(records)
	if err != nil {
		return reflect.Value{}, err
	}
	return a.Adapt(items), nil
}

func (d *Dispatcher) bindDerivedSelect(sig *signature, kind Kind) (call, error) {
	plan, err := d.selectPlan(sig.name, kind)
	if err != nil {
		return nil, err
	}
	a, err := d.resultAdapter(sig)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
		q, err := plan.Select(interfaceArgs(args))
		if err != nil {
			return reflect.Value{}, err
		}
		return d.selectAdapted(ctx, kind, sig.name, q, a)
	}, nil
}

func (d *Dispatcher) selectPlan(method string, kind Kind) (*derive.Plan, error) {
	if kind == KindFindAll {
		return d.compiler.All(method), nil
	}
	return d.compiler.Plan(method, derive.FormSelect)
}

func (d *Dispatcher) bindDerivedDelete(sig *signature) (call, error) {
	if err := d.errorOnly(sig); err != nil {
		return nil, err
	}
	plan, err := d.compiler.Plan(sig.name, derive.FormDelete)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
		q, err := plan.Delete(interfaceArgs(args))
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.Value{}, d.backend.Delete(ctx, q)
	}, nil
}

func (d *Dispatcher) bindQuery(sig *signature) (call, error) {
	a, err := d.resultAdapter(sig)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
		q, err := d.targetQuery(queryArg(interfaceArgs(args)))
		if err != nil {
			return reflect.Value{}, err
		}
		return d.selectAdapted(ctx, KindQuery, sig.name, q, a)
	}, nil
}

func (d *Dispatcher) bindQueryDelete(sig *signature) (call, error) {
	if err := d.errorOnly(sig); err != nil {
		return nil, err
	}
	return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
		return reflect.Value{}, d.remove(ctx, deleteQueryArg(interfaceArgs(args)))
	}, nil
}

func (d *Dispatcher) bindNative(sig *signature, text string) (call, error) {
	a, err := d.resultAdapter(sig)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
		nb, ok := d.backend.(storage.NativeBackend)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: native queries", core.ErrUnsupported)
		}
		records, err := nb.Native(ctx, text, interfaceArgs(args)...)
		if err != nil {
			return reflect.Value{}, err
		}
		d.metrics.observeResults(d.entity.Name(), KindNative, len(records))
		return d.adapt(sig.name, a, records)
	}, nil
}
