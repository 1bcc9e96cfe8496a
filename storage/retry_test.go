package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Success(t *testing.T) {
	attempts := 0
	err := RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}.Do(context.Background(), nil, func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestRetryPolicy_EventualSuccess(t *testing.T) {
	attempts := 0
	err := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}.Do(context.Background(), nil, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transaction conflict")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_AllAttemptsFail(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("disk full")
	err := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(), nil, func() error {
		attempts++
		return expectedErr
	})
	assert.Equal(t, expectedErr, err, "should return the last error unwrapped")
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_StopsOnPermanentError(t *testing.T) {
	errConflict := errors.New("conflict")
	errPermanent := errors.New("permanent")
	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errConflict) },
	}

	attempts := 0
	err := policy.Do(context.Background(), nil, func() error {
		attempts++
		if attempts == 1 {
			return errConflict
		}
		return errPermanent
	})
	assert.Equal(t, errPermanent, err)
	assert.Equal(t, 2, attempts, "non-retryable errors are returned immediately")
}

func TestRetryPolicy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Millisecond}.Do(ctx, nil, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryPolicy_ExponentialBackoff(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	last := time.Now()
	err := RetryPolicy{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond}.Do(context.Background(), nil, func() error {
		attempts++
		if attempts > 1 {
			delays = append(delays, time.Since(last))
		}
		last = time.Now()
		if attempts < 3 {
			return errors.New("error")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, delays, 2)
	assert.GreaterOrEqual(t, delays[0], 20*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 40*time.Millisecond)
}

func TestRetryPolicy_InvalidMaxAttempts(t *testing.T) {
	for _, max := range []int{0, -1} {
		attempts := 0
		err := RetryPolicy{MaxAttempts: max, BaseDelay: time.Millisecond}.Do(context.Background(), nil, func() error {
			attempts++
			return nil
		})
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Zero(t, attempts)
	}
}
