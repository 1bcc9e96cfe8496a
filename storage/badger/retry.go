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

package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/reposit/storage"
)

// retryConflicts runs a write transaction, retrying with exponential
// backoff while badger reports a conflict with a concurrent writer.
// Any other error is returned immediately.
func (b *Backend) retryConflicts(ctx context.Context, operation func() error) error {
	policy := storage.RetryPolicy{
		MaxAttempts: b.maxAttempts,
		BaseDelay:   b.baseDelay,
		Retryable:   isConflict,
	}
	return policy.Do(ctx, b.logger, operation)
}

func isConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}
