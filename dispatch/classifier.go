package dispatch

import (
	"reflect"
	"strings"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/derive"
)

// Kind is the execution path of a repository method.
type Kind int

const (
	// KindUnknown methods are bound to an inert implementation.
	KindUnknown Kind = iota
	// KindDefault methods are served by the generic CRUD delegate.
	KindDefault
	// KindFindAll selects every record of the entity.
	KindFindAll
	// KindQuery executes a caller-built core.Query.
	KindQuery
	// KindQueryDelete executes a caller-built core.DeleteQuery.
	KindQueryDelete
	// KindNative executes the query text in the method's query tag.
	KindNative
	// KindFindBy compiles a findBy method name into a select.
	KindFindBy
	// KindDeleteBy compiles a deleteBy method name into a delete.
	KindDeleteBy
	// KindObject methods describe the repository itself.
	KindObject
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindDefault:     "default",
	KindFindAll:     "find_all",
	KindQuery:       "query",
	KindQueryDelete: "query_delete",
	KindNative:      "native",
	KindFindBy:      "find_by",
	KindDeleteBy:    "delete_by",
	KindObject:      "object",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Method describes a repository method as the classifier sees it.
type Method struct {
	// Name is the method (field) name.
	Name string
	// Params are the parameter types, without a leading context.Context
	// or a trailing async callback.
	Params []reflect.Type
	// Native is the query text from the method's query tag.
	Native string
}

// defaultMethods maps the CRUD method names (first letter lower-cased) to
// their parameter counts.
var defaultMethods = map[string]int{
	"save":        1,
	"saveAll":     1,
	"saveWithTTL": 2,
	"findByID":    1,
	"findById":    1,
	"existsByID":  1,
	"existsById":  1,
	"deleteByID":  1,
	"deleteById":  1,
	"delete":      1,
	"count":       0,
}

var objectMethods = map[string]bool{
	"string":   true,
	"goString": true,
	"equal":    true,
}

const (
	findAllName = "findAll"
	// NativeTag is the struct tag holding a method's native query.
	NativeTag = "query"
)

var (
	queryType       = reflect.TypeFor[core.Query]()
	deleteQueryType = reflect.TypeFor[core.DeleteQuery]()
	queryPtrType    = reflect.PointerTo(queryType)
	deleteQueryPtr  = reflect.PointerTo(deleteQueryType)
)

// Classify routes a method to its execution path. It is pure: the same
// Method always yields the same Kind.
//
// Checks run in order: default CRUD signatures, findAll, a core.Query or
// core.DeleteQuery parameter, a query tag, the findBy and deleteBy
// prefixes, then methods describing the repository itself.
func Classify(m Method) Kind {
	name := derive.LowerFirst(m.Name)
	if n, ok := defaultMethods[name]; ok && n == len(m.Params) {
		return KindDefault
	}
	if name == findAllName {
		return KindFindAll
	}
	for _, p := range m.Params {
		switch p {
		case queryType, queryPtrType:
			return KindQuery
		case deleteQueryType, deleteQueryPtr:
			return KindQueryDelete
		}
	}
	if strings.TrimSpace(m.Native) != "" {
		return KindNative
	}
	if derive.HasPrefix(m.Name, derive.PrefixFind) {
		return KindFindBy
	}
	if derive.HasPrefix(m.Name, derive.PrefixDelete) {
		return KindDeleteBy
	}
	if objectMethods[name] {
		return KindObject
	}
	return KindUnknown
}
