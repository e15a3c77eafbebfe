package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetry is returned by functions passed to Blocking to ask for another attempt.
var ErrRetry = errors.New("retry")

// ErrExhausted is returned by a Limited backoff after its last attempt.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff waits for a fixed interval before each attempt.
func StaticBackoff(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
func ExponentialBackoff(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(interval)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			interval = time.Duration(float64(interval) * r)
			return nil
		}
	}
}

// Immediate does not wait at all.
func Immediate() Backoff {
	return func(ctx context.Context) error {
		return ctx.Err()
	}
}

// Limited allows at most `attempts` calls of b.
// Later calls return ErrExhausted.
func Limited(b Backoff, attempts int) Backoff {
	n := 0
	return func(ctx context.Context) error {
		if attempts <= n {
			return ErrExhausted
		}
		n += 1
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// # Args
//
// - ctx: context
//
// - b: backoff function. It is called before every attempt, including the first.
//
// - f: function to be called. If f returns ErrRetry, Blocking calls f again after backoff.
//
// # Returns
//
// - T: last return value of f
//
// - error: error returned by f, or by b when it gives up.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	for {
		if err := b(ctx); err != nil {
			return last, err
		}

		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if errors.Is(err, ErrRetry) {
			continue
		}
		return last, err
	}
}
