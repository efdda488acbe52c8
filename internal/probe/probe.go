package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkazakov/simstack/internal/retry"
	"github.com/dkazakov/simstack/internal/stack"
)

// Probe backoff defaults. The per-attempt timeout is deliberately much
// shorter than a service's MaxWait so a hung check cannot eat the budget.
const (
	defaultAttemptTimeout = 2 * time.Second
	probeInitialDelay     = 250 * time.Millisecond
	probeMaxDelay         = 5 * time.Second
	probeMultiplier       = 2.0
	probeJitterFraction   = 0.2
)

// TimeoutError reports that a service never passed its health check
// within its readiness deadline.
type TimeoutError struct {
	Service string
	Wait    time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("service %s not ready after %s: %v", e.Service, e.Wait, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// CheckFunc performs one readiness attempt against a service.
type CheckFunc func(ctx context.Context, desc stack.ServiceDescriptor) error

// Prober drives a descriptor's health check through backoff until the
// service answers or its deadline elapses.
type Prober struct {
	logger         zerolog.Logger
	executor       *retry.Executor
	attemptTimeout time.Duration
	check          CheckFunc
	onAttempt      func(service string)
}

// Option customizes prober behavior.
type Option func(*Prober)

// WithCheckFunc replaces the health-check dispatch, primarily for tests.
func WithCheckFunc(check CheckFunc) Option {
	return func(p *Prober) {
		p.check = check
	}
}

// WithAttemptTimeout overrides the per-attempt timeout.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(p *Prober) {
		p.attemptTimeout = timeout
	}
}

// WithAttemptObserver registers a callback invoked once per attempt.
func WithAttemptObserver(observe func(service string)) Option {
	return func(p *Prober) {
		p.onAttempt = observe
	}
}

// New constructs a Prober.
func New(logger zerolog.Logger, executor *retry.Executor, opts ...Option) *Prober {
	p := &Prober{
		logger:         logger,
		executor:       executor,
		attemptTimeout: defaultAttemptTimeout,
	}
	p.check = p.dispatch
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the backoff schedule probes run under. Attempts are
// unbounded; the service's MaxWait deadline ends the loop.
func Policy() retry.Policy {
	return retry.Policy{
		InitialDelay:   probeInitialDelay,
		MaxDelay:       probeMaxDelay,
		Multiplier:     probeMultiplier,
		JitterFraction: probeJitterFraction,
	}
}

// WaitReady repeats the descriptor's health check until it succeeds or
// MaxWait elapses. Success transitions the service Probing -> Ready;
// a missed deadline transitions it to Failed and returns a TimeoutError.
func (p *Prober) WaitReady(ctx context.Context, desc stack.ServiceDescriptor, tracker *stack.Tracker) error {
	started := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, desc.MaxWait)
	defer cancel()

	err := p.executor.Do(waitCtx, Policy(), func(ctx context.Context) error {
		if p.onAttempt != nil {
			p.onAttempt(desc.Name)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()
		return p.check(attemptCtx, desc)
	})
	if err == nil {
		if terr := tracker.Transition(desc.Name, stack.StateReady); terr != nil {
			return terr
		}
		p.logger.Info().
			Str("service", desc.Name).
			Str("health", string(desc.Health)).
			Dur("elapsed", time.Since(started)).
			Msg("service ready")
		return nil
	}

	if terr := tracker.Transition(desc.Name, stack.StateFailed); terr != nil {
		p.logger.Error().Err(terr).Str("service", desc.Name).Msg("state transition rejected")
	}
	p.logger.Error().
		Err(err).
		Str("service", desc.Name).
		Dur("elapsed", time.Since(started)).
		Msg("service never became ready")

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TimeoutError{Service: desc.Name, Wait: desc.MaxWait, Err: err}
	}
	return err
}

func (p *Prober) dispatch(ctx context.Context, desc stack.ServiceDescriptor) error {
	switch desc.Health {
	case stack.HealthTCP:
		return checkTCP(ctx, desc)
	case stack.HealthRPCPing:
		return checkRPCPing(ctx, desc)
	case stack.HealthSQLPing:
		return checkSQLPing(ctx, desc)
	case stack.HealthHTTP:
		return checkHTTP(ctx, desc)
	default:
		return fmt.Errorf("unknown health check %q", desc.Health)
	}
}
