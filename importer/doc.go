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

// Package importer bulk-loads documents into a repository.
//
// Documents are YAML or JSON: a single mapping, a sequence of mappings, or
// a stream of YAML documents holding either. Keys are storage keys. Each
// document is converted to the entity type, so type errors surface before
// anything is written, then saved in batches through the CRUD delegate.
// Batches run concurrently on a worker pool and failed saves are retried
// with exponential backoff.
//
// Basic usage:
//
//	im, err := importer.New(crud, importer.DefaultConfig(), os.Stderr)
//	...
//	defer im.Release()
//	stats, err := im.ImportFile(ctx, "people.yaml")
package importer
