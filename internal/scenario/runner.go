package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkazakov/simstack/internal/report"
	"github.com/dkazakov/simstack/internal/simclient"
)

const (
	defaultConcurrency     = 4
	defaultScenarioTimeout = 30 * time.Second
)

// Runner dispatches scenarios onto a bounded worker pool. Completion
// order is unspecified; the report always preserves submission order.
type Runner struct {
	logger         zerolog.Logger
	clients        *simclient.Clients
	concurrency    int
	defaultTimeout time.Duration
	onResult       func(report.Result)
}

// RunnerOption customizes runner behavior.
type RunnerOption func(*Runner)

// WithConcurrency bounds the number of simultaneously executing scenarios.
func WithConcurrency(limit int) RunnerOption {
	return func(r *Runner) {
		if limit > 0 {
			r.concurrency = limit
		}
	}
}

// WithDefaultTimeout sets the per-scenario timeout applied when a
// scenario does not carry its own.
func WithDefaultTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		if timeout > 0 {
			r.defaultTimeout = timeout
		}
	}
}

// WithResultObserver registers a callback invoked once per result.
func WithResultObserver(observe func(report.Result)) RunnerOption {
	return func(r *Runner) {
		r.onResult = observe
	}
}

// NewRunner constructs a Runner.
func NewRunner(logger zerolog.Logger, clients *simclient.Clients, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:         logger,
		clients:        clients,
		concurrency:    defaultConcurrency,
		defaultTimeout: defaultScenarioTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes all scenarios and reports in submission order. A run
// context that ends mid-flight records every unfinished scenario as
// timed out rather than dropping it.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) report.Report {
	startedAt := time.Now().UTC()
	results := make([]report.Result, len(scenarios))
	locks := tagLocks(scenarios)

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for i := range scenarios {
		wg.Add(1)
		go func(idx int, sc Scenario) {
			defer wg.Done()

			// Cancellation wins over a free worker slot; nothing new is
			// dispatched once the run deadline has passed.
			select {
			case <-ctx.Done():
				results[idx] = canceledResult(sc)
				return
			default:
			}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = canceledResult(sc)
				return
			}

			unlock := acquireTags(locks, sc.Tags)
			defer unlock()

			// The deadline may have passed while waiting for the slot
			// or the tags; the scenario must not start against a stack
			// that is already tearing down.
			if ctx.Err() != nil {
				results[idx] = canceledResult(sc)
				return
			}
			results[idx] = r.runOne(ctx, sc)
		}(i, scenarios[i])
	}
	wg.Wait()

	if r.onResult != nil {
		for _, result := range results {
			r.onResult(result)
		}
	}

	return report.Build(startedAt, time.Now().UTC(), results)
}

func (r *Runner) runOne(ctx context.Context, sc Scenario) report.Result {
	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	scCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- sc.Run(scCtx, r.clients)
	}()

	var err error
	timedOut := false
	select {
	case err = <-done:
	case <-scCtx.Done():
		timedOut = true
		cancel()
		// Hold the worker slot and isolation tags until the scenario
		// actually yields, so exclusivity survives a timeout.
		err = <-done
	}
	duration := time.Since(started)

	result := report.Result{ScenarioID: sc.ID, Duration: duration}
	switch {
	case timedOut:
		result.Outcome = report.OutcomeTimedOut
		result.Detail = fmt.Sprintf("timed out after %s", timeout)
	case err == nil:
		result.Outcome = report.OutcomePassed
	case isFailure(err):
		result.Outcome = report.OutcomeFailed
		result.Detail = err.Error()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		result.Outcome = report.OutcomeTimedOut
		result.Detail = err.Error()
	default:
		result.Outcome = report.OutcomeErrored
		result.Detail = err.Error()
	}

	event := r.logger.Info()
	if result.Outcome != report.OutcomePassed {
		event = r.logger.Error()
	}
	event.
		Str("scenario", sc.ID).
		Str("outcome", string(result.Outcome)).
		Dur("duration", duration).
		Msg("scenario finished")

	return result
}

func canceledResult(sc Scenario) report.Result {
	return report.Result{ScenarioID: sc.ID, Outcome: report.OutcomeTimedOut, Detail: "run canceled before dispatch"}
}

func isFailure(err error) bool {
	var failure *Failure
	return errors.As(err, &failure)
}

// tagLocks builds one mutex per isolation tag ahead of execution.
func tagLocks(scenarios []Scenario) map[string]*sync.Mutex {
	locks := make(map[string]*sync.Mutex)
	for _, sc := range scenarios {
		for _, tag := range sc.Tags {
			if _, ok := locks[tag]; !ok {
				locks[tag] = &sync.Mutex{}
			}
		}
	}
	return locks
}

// acquireTags locks a scenario's tags in sorted order so two scenarios
// holding overlapping tag sets cannot deadlock.
func acquireTags(locks map[string]*sync.Mutex, tags []string) func() {
	if len(tags) == 0 {
		return func() {}
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)

	for _, tag := range sorted {
		locks[tag].Lock()
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			locks[sorted[i]].Unlock()
		}
	}
}
