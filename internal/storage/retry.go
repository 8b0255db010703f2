package storage

import (
	"context"
	"strings"
	"time"
)

// RetryConfig configures exponential backoff for writes that find the
// journal locked by another process
type RetryConfig struct {
	MaxRetries int           // Maximum number of attempts
	BaseDelay  time.Duration // Initial delay between attempts
	MaxDelay   time.Duration // Maximum delay between attempts
	Multiplier float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns the backoff used by SQLiteStorage
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  20 * time.Millisecond,
		MaxDelay:   500 * time.Millisecond,
		Multiplier: 2.0,
	}
}

// retryBusy runs fn until it succeeds, fails with an error other than a busy
// database, or the attempts are used up. Retry is skipped on context
// cancellation.
func retryBusy(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	backoff := config.BaseDelay

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		err := fn()
		if err == nil || !isBusy(err) {
			return err
		}

		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < config.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}

	return lastErr
}

// isBusy matches the lock contention errors of both drivers
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}
