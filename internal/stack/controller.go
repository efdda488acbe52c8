package stack

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkazakov/simstack/internal/container"
)

const defaultStopGrace = 10 * time.Second

// StartupError reports a service that never reached Probing. It is not
// retried: a process that fails to launch will not launch by waiting.
type StartupError struct {
	Service  string
	ExitCode int
	Err      error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s failed to start: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("service %s exited with code %d before it could be probed", e.Service, e.ExitCode)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// ReadyWaiter gates a launched service on its health check.
type ReadyWaiter interface {
	WaitReady(ctx context.Context, desc ServiceDescriptor, tracker *Tracker) error
}

// Controller launches and tears down the container group as a unit.
// It is the only writer of service state.
type Controller struct {
	logger     zerolog.Logger
	runtime    container.Runtime
	prober     ReadyWaiter
	grace      time.Duration
	namePrefix string
}

// ControllerOption customizes controller behavior.
type ControllerOption func(*Controller)

// WithStopGrace sets how long Stop waits before force-terminating.
func WithStopGrace(grace time.Duration) ControllerOption {
	return func(c *Controller) {
		c.grace = grace
	}
}

// WithNamePrefix sets the container name prefix.
func WithNamePrefix(prefix string) ControllerOption {
	return func(c *Controller) {
		c.namePrefix = prefix
	}
}

// NewController constructs a Controller.
func NewController(logger zerolog.Logger, runtime container.Runtime, prober ReadyWaiter, opts ...ControllerOption) *Controller {
	c := &Controller{
		logger:     logger,
		runtime:    runtime,
		prober:     prober,
		grace:      defaultStopGrace,
		namePrefix: "simstack-",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches every service in ascending startup order. Services in
// the same rank launch and probe concurrently; a rank is not probed
// until every lower rank is Ready. Any failure stops what has already
// started, in reverse order, before the error is returned.
func (c *Controller) Start(ctx context.Context, registry *Registry) (*Handle, error) {
	tracker := NewTracker(registry)
	handle := &Handle{
		logger:  c.logger,
		runtime: c.runtime,
		tracker: tracker,
		grace:   c.grace,
		prefix:  c.namePrefix,
	}

	for _, rank := range registry.Ranks() {
		for _, desc := range rank {
			if err := c.launch(ctx, desc, tracker, handle); err != nil {
				c.teardown(ctx, handle)
				return nil, err
			}
		}
		if err := c.probeRank(ctx, rank, tracker); err != nil {
			c.teardown(ctx, handle)
			return nil, err
		}
	}

	c.logger.Info().Int("services", len(registry.Descriptors())).Msg("stack ready")
	return handle, nil
}

func (c *Controller) launch(ctx context.Context, desc ServiceDescriptor, tracker *Tracker, handle *Handle) error {
	if err := tracker.Transition(desc.Name, StateStarting); err != nil {
		return err
	}

	name := c.namePrefix + desc.Name
	spec := container.Spec{
		Image:         desc.Image,
		Env:           desc.Env,
		PublishedPort: desc.Port,
		TargetPort:    desc.TargetPort,
		Labels:        map[string]string{"simstack.managed": "true"},
	}

	c.logger.Info().
		Str("service", desc.Name).
		Str("image", desc.Image).
		Int("order", desc.StartupOrder).
		Msg("launching service")

	if err := c.runtime.Launch(ctx, name, spec); err != nil {
		_ = tracker.Transition(desc.Name, StateFailed)
		return &StartupError{Service: desc.Name, Err: err}
	}
	// The container exists from here on; teardown must remove it even
	// if it already exited.
	handle.markStarted(desc)

	status, err := c.runtime.Status(ctx, name)
	if err != nil {
		_ = tracker.Transition(desc.Name, StateFailed)
		return &StartupError{Service: desc.Name, Err: err}
	}
	if !status.Running {
		_ = tracker.Transition(desc.Name, StateFailed)
		c.logExitTail(ctx, desc.Name, name)
		return &StartupError{Service: desc.Name, ExitCode: status.ExitCode}
	}

	return tracker.Transition(desc.Name, StateProbing)
}

// probeRank waits for every service in the rank concurrently; probers
// for independent services do not serialize on each other.
func (c *Controller) probeRank(ctx context.Context, rank []ServiceDescriptor, tracker *Tracker) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	probeErrors := make(map[string]error)

	for _, desc := range rank {
		wg.Add(1)
		go func(desc ServiceDescriptor) {
			defer wg.Done()
			if err := c.prober.WaitReady(ctx, desc, tracker); err != nil {
				mu.Lock()
				probeErrors[desc.Name] = err
				mu.Unlock()
			}
		}(desc)
	}
	wg.Wait()

	if len(probeErrors) == 0 {
		return nil
	}
	names := make([]string, 0, len(probeErrors))
	for name := range probeErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	return probeErrors[names[0]]
}

func (c *Controller) teardown(ctx context.Context, handle *Handle) {
	// Startup may have failed because ctx itself was canceled; cleanup
	// still has to reach the daemon or the containers leak.
	if err := handle.Stop(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error().Err(err).Msg("best-effort teardown after startup failure")
	}
}

func (c *Controller) logExitTail(ctx context.Context, service, containerName string) {
	lines, err := c.runtime.TailLogs(ctx, containerName, 20)
	if err != nil {
		c.logger.Warn().Err(err).Str("service", service).Msg("could not read logs of failed service")
		return
	}
	for _, line := range lines {
		c.logger.Error().Str("service", service).Msg(line)
	}
}

// Handle exposes a started stack: per-service state, log tails, and an
// idempotent Stop.
type Handle struct {
	logger  zerolog.Logger
	runtime container.Runtime
	tracker *Tracker
	grace   time.Duration
	prefix  string

	mu      sync.Mutex
	started []ServiceDescriptor
	stopped bool
}

func (h *Handle) markStarted(desc ServiceDescriptor) {
	h.mu.Lock()
	h.started = append(h.started, desc)
	h.mu.Unlock()
}

// Tracker returns the shared service-state tracker.
func (h *Handle) Tracker() *Tracker {
	return h.tracker
}

// State returns the current lifecycle state of the named service.
func (h *Handle) State(service string) ServiceState {
	return h.tracker.State(service)
}

// Logs returns the most recent log lines for the named service.
func (h *Handle) Logs(ctx context.Context, service string, tail int) ([]string, error) {
	return h.runtime.TailLogs(ctx, h.prefix+service, tail)
}

// Stop terminates every started service in reverse startup order,
// waiting up to the grace period before the runtime force-kills.
// Calling Stop on an already-stopped stack is a no-op.
func (h *Handle) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	started := make([]ServiceDescriptor, len(h.started))
	copy(started, h.started)
	h.mu.Unlock()

	grace := int(h.grace / time.Second)
	var firstErr error
	for i := len(started) - 1; i >= 0; i-- {
		desc := started[i]
		// Failed is terminal; draining only applies to live services.
		if h.tracker.State(desc.Name) != StateFailed {
			_ = h.tracker.Transition(desc.Name, StateDraining)
		}

		h.logger.Info().Str("service", desc.Name).Msg("stopping service")
		if err := h.runtime.Terminate(ctx, h.prefix+desc.Name, grace); err != nil {
			h.logger.Error().Err(err).Str("service", desc.Name).Msg("terminate failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if h.tracker.State(desc.Name) == StateDraining {
			_ = h.tracker.Transition(desc.Name, StateStopped)
		}
	}
	return firstErr
}
