package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryBusy(t *testing.T) {
	busy := errors.New("database is locked (5) (SQLITE_BUSY)")

	t.Run("succeeds after busy attempts", func(t *testing.T) {
		calls := 0
		err := retryBusy(context.Background(), fastRetry(), func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := retryBusy(context.Background(), fastRetry(), func() error {
			calls++
			return busy
		})
		assert.ErrorIs(t, err, busy)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		other := errors.New("UNIQUE constraint failed: scans.id")
		calls := 0
		err := retryBusy(context.Background(), fastRetry(), func() error {
			calls++
			return other
		})
		assert.ErrorIs(t, err, other)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := retryBusy(ctx, fastRetry(), func() error {
			calls++
			return busy
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(errors.New("database is locked")))
	assert.True(t, isBusy(errors.New("sqlite: step: SQLITE_BUSY")))
	assert.False(t, isBusy(errors.New("no such table: scans")))
}
