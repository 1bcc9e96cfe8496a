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

package reposit

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/dispatch"
	"github.com/poiesic/reposit/mapping"
	"github.com/poiesic/reposit/storage"
	"github.com/poiesic/reposit/storage/badger"
	"github.com/poiesic/reposit/storage/sqlite"
)

// Store owns a storage backend and hands out repositories bound to it.
// Repositories of the same entity share one dispatcher and its plan cache.
type Store struct {
	backend  storage.Backend
	registry *mapping.Registry
	cfg      Config
	metrics  *dispatch.Metrics
	logger   *slog.Logger

	mu          sync.Mutex
	mapped      map[reflect.Type]*mapping.Entity
	dispatchers map[*mapping.Entity]*dispatch.Dispatcher
}

// Open opens a store configured by opts on top of DefaultConfig.
func Open(opts ...Option) (*Store, error) {
	return OpenConfig(NewConfig(opts...))
}

// OpenConfig opens a store from cfg. The configuration is validated and
// copied; later changes to cfg have no effect.
func OpenConfig(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config", core.ErrNilArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry, err := mapping.NewRegistry(cfg.Entities...)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	var metrics *dispatch.Metrics
	if cfg.Metrics != nil {
		metrics = dispatch.NewMetrics(cfg.Metrics)
	}
	s := &Store{
		backend:     backend,
		registry:    registry,
		cfg:         *cfg,
		metrics:     metrics,
		logger:      cfg.Logger.With("component", "reposit"),
		mapped:      make(map[reflect.Type]*mapping.Entity),
		dispatchers: make(map[*mapping.Entity]*dispatch.Dispatcher),
	}
	s.logger.Info("store opened", "backend", cfg.Backend, "path", cfg.Path, "in_memory", cfg.InMemory,
		"entities", len(registry.Entities()))
	return s, nil
}

func openBackend(cfg *Config) (storage.Backend, error) {
	switch cfg.Backend {
	case BackendSQLite:
		opts := []sqlite.Option{sqlite.WithLogger(cfg.Logger)}
		if cfg.InMemory {
			opts = append(opts, sqlite.WithInMemory())
		}
		return sqlite.Open(cfg.Path, opts...)
	default:
		opts := []badger.Option{
			badger.WithLogger(cfg.Logger),
			badger.WithPoolSize(cfg.PoolSize),
		}
		if cfg.InMemory {
			opts = append(opts, badger.WithInMemory())
		}
		return badger.Open(cfg.Path, opts...)
	}
}

// Close closes the storage backend.
func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Backend returns the storage backend.
func (s *Store) Backend() storage.Backend {
	return s.backend
}

// Registry returns the entities registered at open.
func (s *Store) Registry() *mapping.Registry {
	return s.registry
}

// Dispatcher returns the dispatcher for a registered entity, by logical or
// storage name.
func (s *Store) Dispatcher(name string) (*dispatch.Dispatcher, error) {
	e, ok := s.registry.Entity(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return s.dispatcher(e)
}

// dispatcher returns the cached dispatcher for e, creating it on first use.
func (s *Store) dispatcher(e *mapping.Entity) (*dispatch.Dispatcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dispatchers[e]; ok {
		return d, nil
	}
	opts := []dispatch.Option{
		dispatch.WithLogger(s.cfg.Logger),
		dispatch.WithPlanCacheSize(s.cfg.PlanCacheSize),
		dispatch.WithMetrics(s.metrics),
	}
	if s.cfg.FirstMatch {
		opts = append(opts, dispatch.WithFirstMatch())
	}
	d, err := dispatch.New(e, s.backend, opts...)
	if err != nil {
		return nil, err
	}
	s.dispatchers[e] = d
	return d, nil
}

// entityOf returns the registered entity for t, or maps t on the fly.
// Mapped entities are kept, so a type is parsed once per store.
func (s *Store) entityOf(t reflect.Type) (*mapping.Entity, error) {
	if e, ok := s.registry.Lookup(t); ok {
		return e, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.mapped[t]; ok {
		return e, nil
	}
	e, err := mapping.FromType(t)
	if err != nil {
		return nil, err
	}
	s.mapped[t] = e
	s.logger.Debug("mapped unregistered entity", "type", t.String(), "storage", e.StorageName())
	return e, nil
}

// DispatcherFor returns the dispatcher for entity type T.
func DispatcherFor[T any](s *Store) (*dispatch.Dispatcher, error) {
	e, err := s.entityOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return s.dispatcher(e)
}

// Bind fills the func fields of the struct repo points to with
// implementations for entity type T. See dispatch.Dispatcher.Bind.
func Bind[T any](s *Store, repo any) error {
	d, err := DispatcherFor[T](s)
	if err != nil {
		return err
	}
	return d.Bind(repo)
}

// BindAsync is Bind for repositories whose methods take a callback and
// return immediately. See dispatch.Dispatcher.BindAsync.
func BindAsync[T any](s *Store, repo any) error {
	d, err := DispatcherFor[T](s)
	if err != nil {
		return err
	}
	return d.BindAsync(repo)
}
