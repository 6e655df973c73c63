package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BaseBackoff is the delay before the first retry. Each further retry
// doubles it.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry attempt i (1-based).
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * BaseBackoff
}

// Permanent marks an error as non-retriable for Retry.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early on success, on a *Permanent error and when
// ctx ends. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var p *Permanent
		if errors.As(lastErr, &p) {
			return fmt.Errorf("%s: non-retriable error: %w", name, p.Err)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
