package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/importer"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// methodArgs splits the positional arguments into entity, method and
// typed method arguments.
func methodArgs(c *cli.Context) (entity, method string, args []any, err error) {
	if c.NArg() < 2 {
		return "", "", nil, fmt.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage)
	}
	rest := c.Args().Slice()
	args = make([]any, 0, len(rest)-2)
	for _, raw := range rest[2:] {
		args = append(args, parseArg(raw))
	}
	return rest[0], rest[1], args, nil
}

// parseArg types a command-line argument the way YAML types a plain
// scalar: 42 is an integer, 4.2 a float, true a bool, null nil, and
// [a, b] a list. Dates stay strings, and anything that does not parse,
// or parses to a mapping, is kept as the raw string.
func parseArg(raw string) any {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil || len(doc.Content) == 0 {
		return raw
	}
	node := doc.Content[0]
	if node.Kind == yaml.MappingNode {
		return raw
	}
	keepTimestamps(node)
	var v any
	if err := node.Decode(&v); err != nil {
		return raw
	}
	return core.Normalize(v)
}

// keepTimestamps retags timestamp scalars as strings so they decode as
// written instead of as time.Time.
func keepTimestamps(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!timestamp" {
		node.Tag = "!!str"
	}
	for _, child := range node.Content {
		keepTimestamps(child)
	}
}

func explainCommand(c *cli.Context) error {
	entity, method, args, err := methodArgs(c)
	if err != nil {
		return err
	}
	s, err := openStore(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.Dispatcher(entity)
	if err != nil {
		return err
	}
	compiled, err := d.Explain(method, args...)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, compiled)
	return nil
}

func findCommand(c *cli.Context) error {
	entity, method, args, err := methodArgs(c)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(method, "find") {
		return fmt.Errorf("%s is not a find method", method)
	}
	format := strings.ToLower(c.String("format"))
	if format != "yaml" && format != "json" {
		return fmt.Errorf("invalid format %q: must be one of yaml, json", format)
	}
	if limit, offset := c.Int("limit"), c.Int("offset"); limit > 0 || offset > 0 {
		args = append(args, core.Page{Offset: offset, Limit: limit})
	}

	s, err := openStore(c, false)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.Dispatcher(entity)
	if err != nil {
		return err
	}
	records, err := d.Invoke(c.Context, method, args...)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return writeRecords(c.App.Writer, format, records)
}

func writeRecords(w io.Writer, format string, records []core.Record) error {
	if records == nil {
		records = []core.Record{}
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return err
	}
	return enc.Close()
}

func deleteCommand(c *cli.Context) error {
	entity, method, args, err := methodArgs(c)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(method, "delete") {
		return fmt.Errorf("%s is not a delete method", method)
	}

	s, err := openStore(c, false)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.Dispatcher(entity)
	if err != nil {
		return err
	}
	before, err := d.Crud().Count(c.Context)
	if err != nil {
		return err
	}
	if _, err := d.Invoke(c.Context, method, args...); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	after, err := d.Crud().Count(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %d record(s) from %s\n", before-after, d.Entity().StorageName())
	return nil
}

func importCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage)
	}
	cfg := importer.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Workers:        c.Int("workers"),
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}

	s, err := openStore(c, false)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.Dispatcher(c.Args().First())
	if err != nil {
		return err
	}
	im, err := importer.New(d.Crud(), cfg, c.App.ErrWriter)
	if err != nil {
		return err
	}
	defer im.Release()

	total := 0
	for _, path := range c.Args().Tail() {
		stats, err := im.ImportFile(c.Context, path)
		total += stats.Records
		if err != nil {
			return fmt.Errorf("import of %s failed after %d record(s): %w", path, total, err)
		}
	}
	fmt.Fprintf(c.App.Writer, "imported %d record(s) into %s\n", total, d.Entity().StorageName())
	return nil
}
