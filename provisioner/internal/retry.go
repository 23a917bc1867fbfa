package internal

import (
	"context"
	"errors"
	"time"
)

// BaseDelay is the first backoff delay; it doubles after every failed attempt.
var BaseDelay = 100 * time.Millisecond

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// RetryWithContext calls fn up to maxAttempts times with exponential backoff
// (100ms, 200ms, 400ms, 800ms, ...). It returns the last error if all
// attempts fail, ctx.Err() if the context is cancelled during a backoff, and
// stops at once on an error wrapped with Permanent.
func RetryWithContext(ctx context.Context, maxAttempts int, fn func() error) error {
	_, err := RetryResultWithContext(ctx, maxAttempts, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryResultWithContext is like RetryWithContext but for functions that
// return a value.
func RetryResultWithContext[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var result T
	var err error
	for i := 0; i < maxAttempts; i++ {
		if result, err = fn(); err == nil {
			return result, nil
		}

		var permanent permanentError
		if errors.As(err, &permanent) {
			return result, permanent.err
		}

		if i < maxAttempts-1 {
			select {
			case <-time.After(BaseDelay * time.Duration(1<<i)):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
	return result, err
}
