package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds how often and how long a remote call is retried. Backoff is
// exponential starting at Base.
type Policy struct {
	Attempts int
	Base     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Base: 100 * time.Millisecond}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Do surfaces it without further attempts.
// Business rejections such as an insufficient-stock response must not be
// retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn up to p.Attempts times, sleeping between attempts. A Permanent
// error or context cancellation stops the loop immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	delay := p.Base
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
