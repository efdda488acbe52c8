package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how an operation is retried. It carries no mutable
// state and may be shared across concurrent invocations.
type Policy struct {
	// MaxAttempts bounds the total number of attempts. Zero or negative
	// means unbounded; the caller's context is then the only stop signal.
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// Retryable decides whether an error is worth another attempt.
	// A nil predicate treats every error as retryable.
	Retryable func(error) bool
}

// ExhaustedError reports that an operation kept failing past MaxAttempts.
// It wraps the error from the final attempt, not the first.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Executor runs operations under a Policy. It keeps no per-call state,
// so one Executor serves any number of concurrent callers.
type Executor struct {
	sleep func(ctx context.Context, wait time.Duration) bool
}

// Option customizes executor behavior.
type Option func(*Executor)

// WithSleep overrides how the executor waits between attempts.
// The function must return false when the context ends the wait early.
func WithSleep(sleep func(ctx context.Context, wait time.Duration) bool) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// New constructs an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{sleep: sleepWithContext}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do attempts op under the given policy. The delay before attempt k is
// min(InitialDelay*Multiplier^(k-2), MaxDelay), perturbed both ways by up
// to JitterFraction of itself. A non-retryable error aborts immediately
// and is returned unchanged; exhausting attempts returns an
// ExhaustedError wrapping the most recent failure.
func (e *Executor) Do(ctx context.Context, policy Policy, op func(context.Context) error) error {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = policy.InitialDelay
	schedule.MaxInterval = policy.MaxDelay
	schedule.Multiplier = policy.Multiplier
	schedule.RandomizationFactor = policy.JitterFraction
	schedule.MaxElapsedTime = 0
	schedule.Reset()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Err: lastErr}
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			return &ExhaustedError{Attempts: attempt, Err: lastErr}
		}
		if !e.sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
