// Package retry wraps remote calls with per-attempt timeouts and
// exponential backoff.
//
// Composition order matters: each attempt is individually time-bounded
// via a context deadline, and it is the bounded attempt that gets
// retried. A timed-out attempt is cancelled for real — the context
// handed to the call is done, so the underlying transport stops.
package retry

import (
	"context"
	"math/rand"
	"time"

	verrors "github.com/randalmurphal/vaultsync/pkg/vaultsync/errors"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// A policy with MaxRetries 3 invokes the function up to 4 times.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed backoff before jitter is applied.
	MaxDelay time.Duration

	// BackoffFactor is the multiplier applied to the delay after each attempt.
	BackoffFactor float64

	// AttemptTimeout bounds each individual attempt via a context
	// deadline. Zero means attempts inherit the caller's deadline only.
	AttemptTimeout time.Duration

	// RetryableFunc optionally overrides the default retryability check.
	RetryableFunc func(error) bool

	// JitterFunc returns the multiplicative jitter for one delay.
	// The default draws uniformly from [0.8, 1.2]. Tests inject a
	// deterministic source here.
	JitterFunc func() float64

	// SleepFunc waits out a backoff delay, returning early with the
	// context error if ctx is done. Tests inject a recorder here.
	SleepFunc func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is the standard retry policy for remote calls.
var DefaultPolicy = Policy{
	MaxRetries:     3,
	InitialDelay:   300 * time.Millisecond,
	MaxDelay:       5 * time.Second,
	BackoffFactor:  2.0,
	AttemptTimeout: 10 * time.Second,
}

// NoRetry disables retries; the function is invoked exactly once.
var NoRetry = Policy{}

// Result contains the outcome of a retried operation.
type Result[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent, backoff included.
	Duration time.Duration
}

// Do executes fn with per-attempt timeouts and exponential backoff.
//
// Terminal errors propagate immediately. Retryable errors wait
// min(MaxDelay, InitialDelay*BackoffFactor^attempt) * jitter before
// the next attempt, with jitter drawn uniformly from [0.8, 1.2].
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	delay := p.InitialDelay
	var lastErr error

	isRetryable := p.RetryableFunc
	if isRetryable == nil {
		isRetryable = verrors.IsRetryable
	}
	jitter := p.JitterFunc
	if jitter == nil {
		jitter = defaultJitter
	}
	sleep := p.SleepFunc
	if sleep == nil {
		sleep = defaultSleep
	}

	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		// Check context before each attempt
		if err := ctx.Err(); err != nil {
			return Result[T]{
				Err:      verrors.NewCategorized(err, verrors.CategoryClient, "context cancelled"),
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		result, err := runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return Result[T]{
				Value:    result,
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		}

		lastErr = err

		if !isRetryable(err) {
			return Result[T]{
				Err: &verrors.CategorizedError{
					Err:      err,
					Category: verrors.Categorize(err),
					Attempts: attempt + 1,
				},
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		}

		// Don't sleep after the last attempt
		if attempt < attempts-1 {
			if sleepErr := sleep(ctx, jitterDelay(delay, jitter())); sleepErr != nil {
				return Result[T]{
					Err:      verrors.NewCategorized(sleepErr, verrors.CategoryClient, "context cancelled during backoff"),
					Attempts: attempt + 1,
					Duration: time.Since(start),
				}
			}

			// Increase backoff for next attempt
			delay = time.Duration(float64(delay) * p.BackoffFactor)
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}

	return Result[T]{
		Err: &verrors.CategorizedError{
			Err:      lastErr,
			Category: verrors.Categorize(lastErr),
			Attempts: attempts,
			Context:  "max retries exceeded",
		},
		Attempts: attempts,
		Duration: time.Since(start),
	}
}

// runAttempt invokes fn once, bounded by timeout when one is set.
// An expired deadline surfaces as a TimeoutError so the next layer
// classifies it as transient.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return result, &verrors.TimeoutError{
			Operation: "remote call",
			Duration:  timeout.String(),
		}
	}
	return result, err
}

// jitterDelay applies multiplicative jitter to a computed delay.
func jitterDelay(base time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

// defaultJitter draws uniformly from [0.8, 1.2].
func defaultJitter() float64 {
	return 0.8 + rand.Float64()*0.4
}

// defaultSleep waits out the delay, respecting cancellation.
func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
