package util

import (
	"context"
	"time"
)

// Retry runs fn up to max+1 times with exponential backoff, stopping early
// on context cancellation.
func Retry(ctx context.Context, max int, backoff time.Duration, fn func() error) error {
	return RetryIf(ctx, max, backoff, nil, fn)
}

// RetryIf is Retry with a retryable predicate: a nil predicate retries every
// error, otherwise errors the predicate rejects are returned immediately.
func RetryIf(ctx context.Context, max int, backoff time.Duration, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; attempt <= max; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == max {
			break
		}
		wait := backoff * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
