// Package dispatch binds repository structs to a storage backend.
//
// A repository is a struct of func fields. Bind classifies every field by
// name and signature, compiles derived names once, and fills the field
// with an implementation:
//
//	type People struct {
//		FindByAgeGreaterThan func(ctx context.Context, age int) ([]Person, error)
//		FindByName           func(ctx context.Context, name string) (*Person, error)
//		DeleteByName         func(ctx context.Context, name string) error
//		Save                 func(ctx context.Context, p *Person) error
//	}
//
//	d, _ := dispatch.New(entity, backend)
//	var repo People
//	err := d.Bind(&repo)
//
// Single-result shapes (T, *T, core.Optional[T]) fail with
// core.ErrNonUniqueResult when more than one record matches, unless the
// dispatcher was built with WithFirstMatch. BindAsync binds the callback
// form of the same methods for backends implementing
// storage.AsyncBackend.
package dispatch
