package shared

import (
	"context"
	"time"
)

// Retry runs fn until it succeeds, fails terminally, or the attempt budget is
// spent. Only transient errors (TransientFetchError, ChainQueryError) are
// retried; the delay doubles between tries.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
