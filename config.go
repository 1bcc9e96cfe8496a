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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/reposit/mapping"
	"github.com/prometheus/client_golang/prometheus"
)

// Supported storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config holds the settings a Store is opened with.
type Config struct {
	// Backend selects the storage engine: "badger" or "sqlite".
	// Default: "badger"
	Backend string

	// Path is the badger directory or the SQLite database file.
	// Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Intended for tests and tooling.
	InMemory bool

	// PoolSize is the number of workers executing asynchronous queries.
	// Only the badger backend runs queries asynchronously.
	// Default: 4
	PoolSize int

	// FirstMatch makes single-result methods return the first match
	// instead of failing when several records match.
	FirstMatch bool

	// PlanCacheSize bounds the compiled plans each dispatcher keeps for
	// dynamic invocation.
	// Default: 256
	PlanCacheSize int

	// Metrics receives the dispatch collectors. Nil disables metrics.
	Metrics prometheus.Registerer

	// Logger is the base logger. Nil means slog.Default().
	Logger *slog.Logger

	// Entities are registered with the store's registry at open.
	Entities []*mapping.Entity
}

// Option is a functional option for configuring a Config.
type Option func(*Config)

// WithBackend selects the storage engine.
func WithBackend(name string) Option {
	return func(c *Config) {
		c.Backend = name
	}
}

// WithPath sets the database location.
func WithPath(path string) Option {
	return func(c *Config) {
		c.Path = path
	}
}

// WithInMemory keeps all data in memory.
func WithInMemory() Option {
	return func(c *Config) {
		c.InMemory = true
	}
}

// WithPoolSize sets the asynchronous worker pool size.
func WithPoolSize(size int) Option {
	return func(c *Config) {
		c.PoolSize = size
	}
}

// WithFirstMatch relaxes the at-most-one rule for single-result methods.
func WithFirstMatch() Option {
	return func(c *Config) {
		c.FirstMatch = true
	}
}

// WithPlanCacheSize sets the per-entity compiled plan cache size.
func WithPlanCacheSize(size int) Option {
	return func(c *Config) {
		c.PlanCacheSize = size
	}
}

// WithMetrics registers dispatch metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Metrics = reg
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithEntities registers entities at open.
func WithEntities(entities ...*mapping.Entity) Option {
	return func(c *Config) {
		c.Entities = append(c.Entities, entities...)
	}
}

// DefaultConfig returns a Config for a badger store in ./reposit.db.
func DefaultConfig() *Config {
	return &Config{
		Backend:       BackendBadger,
		Path:          "reposit.db",
		PoolSize:      4,
		PlanCacheSize: 256,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBackend("sqlite"),
//	    WithPath("/var/lib/app/app.db"),
//	)
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize puts the configuration in canonical form: the backend name is
// trimmed and lower-cased and unset sizes take their defaults.
func (c *Config) Normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendBadger
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultConfig().PoolSize
	}
	if c.PlanCacheSize == 0 {
		c.PlanCacheSize = DefaultConfig().PlanCacheSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Backend {
	case BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("reposit config: unknown backend %q", c.Backend)
	}
	if !c.InMemory && strings.TrimSpace(c.Path) == "" {
		return errors.New("reposit config: Path is required unless InMemory is set")
	}
	if c.PoolSize < 1 {
		return errors.New("reposit config: PoolSize must be at least 1")
	}
	if c.PlanCacheSize < 1 {
		return errors.New("reposit config: PlanCacheSize must be at least 1")
	}
	return nil
}
