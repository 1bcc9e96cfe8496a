// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package derive

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/mapping"
)

// Form selects between select and delete compilation.
type Form int

const (
	// FormSelect compiles findBy names into a Query.
	FormSelect Form = iota
	// FormDelete compiles deleteBy names into a DeleteQuery.
	FormDelete
)

// Prefix returns the method name prefix of the form.
func (f Form) Prefix() string {
	if f == FormDelete {
		return PrefixDelete
	}
	return PrefixFind
}

func (f Form) String() string {
	if f == FormDelete {
		return "delete"
	}
	return "select"
}

// operatorSuffixes is scanned in order; the first matching suffix wins.
var operatorSuffixes = []struct {
	suffix string
	op     core.Operator
}{
	{"Between", core.OpBetween},
	{"LessThanEqual", core.OpLessThanEqual},
	{"GreaterThanEqual", core.OpGreaterThanEqual},
	{"LessThan", core.OpLessThan},
	{"GreaterThan", core.OpGreaterThan},
	{"Like", core.OpLike},
}

// Compiler turns derived method names into plans for one entity.
// It holds no per-call state and is safe for concurrent use.
type Compiler struct {
	meta   mapping.Metadata
	logger *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCompiler creates a compiler over the given entity metadata.
func NewCompiler(meta mapping.Metadata, opts ...Option) (*Compiler, error) {
	if meta == nil {
		return nil, fmt.Errorf("%w: metadata", core.ErrNilArgument)
	}
	c := &Compiler{meta: meta, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "derive", "target", meta.StorageName())
	return c, nil
}

// Metadata returns the entity metadata the compiler resolves names against.
func (c *Compiler) Metadata() mapping.Metadata {
	return c.meta
}

// Plan compiles a method name once. The returned plan binds arguments on
// every call without re-parsing the name.
func (c *Compiler) Plan(method string, form Form) (*Plan, error) {
	tokens, err := Tokenize(method, form.Prefix())
	if err != nil {
		return nil, err
	}

	p := &Plan{
		method: method,
		form:   form,
		target: c.meta.StorageName(),
		tokens: tokens,
		logger: c.logger,
	}
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenOrderBy:
			if form == FormDelete {
				return nil, fmt.Errorf("%w: %s: OrderBy is not allowed in a delete method", core.ErrDynamicQuery, method)
			}
			order, err := orderFromToken(method, tok.Text, c.meta)
			if err != nil {
				return nil, err
			}
			p.sort = append(p.sort, order)
		case TokenPredicate, TokenAnd, TokenOr:
			pred, err := c.predicate(method, tok)
			if err != nil {
				return nil, err
			}
			if pred.connector != 0 && len(p.predicates) == 0 {
				return nil, fmt.Errorf("%w: %s: %s with no preceding predicate", core.ErrDynamicQuery, method, strings.ToUpper(tok.Kind.String()))
			}
			p.predicates = append(p.predicates, pred)
			p.arity += pred.op.Arity()
		}
	}
	return p, nil
}

// All returns a plan matching every record of the entity. Arguments bound
// to it are scanned for sort and page descriptors only.
func (c *Compiler) All(method string) *Plan {
	return &Plan{
		method: method,
		form:   FormSelect,
		target: c.meta.StorageName(),
		logger: c.logger,
	}
}

// Query compiles a findBy name and binds args in one step.
func (c *Compiler) Query(method string, args ...any) (*core.Query, error) {
	p, err := c.Plan(method, FormSelect)
	if err != nil {
		return nil, err
	}
	return p.Select(args)
}

// DeleteQuery compiles a deleteBy name and binds args in one step.
func (c *Compiler) DeleteQuery(method string, args ...any) (*core.DeleteQuery, error) {
	p, err := c.Plan(method, FormDelete)
	if err != nil {
		return nil, err
	}
	return p.Delete(args)
}

func (c *Compiler) predicate(method string, tok Token) (predicate, error) {
	var pred predicate
	switch tok.Kind {
	case TokenAnd:
		pred.connector = core.And
	case TokenOr:
		pred.connector = core.Or
	}

	text := tok.Text
	pred.op = core.OpEquals
	for _, s := range operatorSuffixes {
		if strings.HasSuffix(text, s.suffix) {
			pred.op = s.op
			text = strings.TrimSuffix(text, s.suffix)
			break
		}
	}
	if text == "" {
		return predicate{}, fmt.Errorf("%w: %s: predicate without a field name", core.ErrDynamicQuery, method)
	}

	pred.field = LowerFirst(text)
	pred.key = c.meta.ResolveStorageKey(pred.field)
	if conv, ok := c.meta.ValueConverter(pred.field); ok {
		pred.converter = conv
	}
	return pred, nil
}
