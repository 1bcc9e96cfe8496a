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

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "reposit",
		Usage:     "Compile and run derived repository queries against a record store",
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Storage backend (badger, sqlite)",
				Value:   "badger",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the database (badger directory or sqlite file)",
			},
			&cli.StringFlag{
				Name:    "schema",
				Aliases: []string{"s"},
				Usage:   "Path to the YAML entity schema",
			},
			&cli.BoolFlag{
				Name:  "first-match",
				Usage: "Return the first record for single-result methods instead of failing on duplicates",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "explain",
				Usage:     "Compile a repository method and print the query it runs",
				ArgsUsage: "<entity> <method> [args...]",
				Action:    explainCommand,
			},
			{
				Name:      "find",
				Usage:     "Run a find method and print the matching records",
				ArgsUsage: "<entity> <method> [args...]",
				Action:    findCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (yaml, json)",
						Value:   "yaml",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records to return (0 for no limit)",
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of records to skip",
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Run a delete method",
				ArgsUsage: "<entity> <method> [args...]",
				Action:    deleteCommand,
			},
			{
				Name:      "import",
				Usage:     "Bulk-load YAML or JSON documents into an entity",
				ArgsUsage: "<entity> <file>...",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to save in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for each batch",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of batches saved concurrently",
						Value: 2,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Logs go to stderr so query output on stdout stays clean
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
