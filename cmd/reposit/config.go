package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/reposit"
	"github.com/poiesic/reposit/mapping"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML configuration file. Flags given on the command
// line override it.
type fileConfig struct {
	Backend       string `yaml:"backend"`
	DB            string `yaml:"db"`
	Schema        string `yaml:"schema"`
	FirstMatch    bool   `yaml:"first_match"`
	PoolSize      int    `yaml:"pool_size"`
	PlanCacheSize int    `yaml:"plan_cache_size"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	if path == "" {
		return fc, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return fc, nil
}

// resolveConfig merges the configuration file with the global flags.
func resolveConfig(c *cli.Context) (*fileConfig, error) {
	fc, err := loadFileConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("backend") || fc.Backend == "" {
		fc.Backend = c.String("backend")
	}
	if c.IsSet("db") {
		fc.DB = c.String("db")
	}
	if c.IsSet("schema") {
		fc.Schema = c.String("schema")
	}
	if c.IsSet("first-match") {
		fc.FirstMatch = c.Bool("first-match")
	}
	return fc, nil
}

func loadSchema(path string) ([]*mapping.Entity, error) {
	if path == "" {
		return nil, fmt.Errorf("an entity schema is required (--schema or schema in the config file)")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema: %w", err)
	}
	defer f.Close()
	return mapping.LoadSchema(f)
}

// openStore opens the configured store. With inMemory set the database
// path is ignored, which lets explain run without touching any data.
func openStore(c *cli.Context, inMemory bool) (*reposit.Store, error) {
	fc, err := resolveConfig(c)
	if err != nil {
		return nil, err
	}
	entities, err := loadSchema(fc.Schema)
	if err != nil {
		return nil, err
	}

	opts := []reposit.Option{
		reposit.WithBackend(fc.Backend),
		reposit.WithEntities(entities...),
		reposit.WithLogger(slog.Default()),
		reposit.WithPoolSize(fc.PoolSize),
		reposit.WithPlanCacheSize(fc.PlanCacheSize),
	}
	if fc.FirstMatch {
		opts = append(opts, reposit.WithFirstMatch())
	}
	if inMemory {
		opts = append(opts, reposit.WithInMemory())
	} else {
		if fc.DB == "" {
			return nil, fmt.Errorf("database path is required (--db or db in the config file)")
		}
		opts = append(opts, reposit.WithPath(fc.DB))
	}

	s, err := reposit.Open(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}
