package resilience

import (
	"context"
)

// Do runs fn until it succeeds or the policy stops retrying. Only failures
// the policy answers with RetrySame are retried; context cancellation stops
// retries immediately.
func Do(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions returning a value.
func DoVal[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if p.Decide(KindOf(err), attempt) != RetrySame {
			return zero, lastErr
		}
		if werr := p.Wait(ctx, attempt, err); werr != nil {
			return zero, lastErr
		}
	}
}
