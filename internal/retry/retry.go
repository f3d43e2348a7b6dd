// Package retry runs calls with a per-attempt deadline and jittered
// exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Policy bounds how a call is attempted.
type Policy struct {
	Attempts       int           // total attempts, at least 1
	BaseDelay      time.Duration // doubled after every failed attempt
	AttemptTimeout time.Duration // deadline for a single attempt; 0 = none
}

// DefaultPolicy is two attempts of ten seconds each.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       2,
		BaseDelay:      200 * time.Millisecond,
		AttemptTimeout: 10 * time.Second,
	}
}

// Do calls fn until it succeeds, returns a *PermanentError, the attempts
// run out, or ctx is done. Each attempt gets its own context bounded by
// AttemptTimeout. The sleep between attempts is the current delay +-25%.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	delay := p.BaseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		err = runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		// The caller gave up; its error wins over the attempt's.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(delay)):
		}

		delay *= 2
	}

	return err
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := int64(d / 4)
	if spread == 0 {
		return d
	}
	return d - time.Duration(spread) + time.Duration(rand.Int64N(2*spread+1))
}
