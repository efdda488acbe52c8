package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkazakov/simstack/internal/config"
	"github.com/dkazakov/simstack/internal/container"
	"github.com/dkazakov/simstack/internal/metrics"
	"github.com/dkazakov/simstack/internal/notify"
	"github.com/dkazakov/simstack/internal/probe"
	"github.com/dkazakov/simstack/internal/report"
	"github.com/dkazakov/simstack/internal/retry"
	"github.com/dkazakov/simstack/internal/scenario"
	"github.com/dkazakov/simstack/internal/server"
	"github.com/dkazakov/simstack/internal/simclient"
	"github.com/dkazakov/simstack/internal/stack"
)

// Exit codes. A stack that never became healthy is a different failure
// from a healthy stack whose scenarios failed; CI treats them differently.
const (
	ExitOK               = 0
	ExitScenarioFailures = 1
	ExitStackUnhealthy   = 2
)

const dockerTimeout = 30 * time.Second

// Harness wires the registry, controller, prober, scenario runner and
// report delivery into the two entry points the CLI exposes.
type Harness struct {
	logger    zerolog.Logger
	cfg       config.Config
	metrics   *metrics.Metrics
	runtime   container.Runtime
	check     probe.CheckFunc
	notifier  notify.Notifier
	scenarios []scenario.Scenario

	// registry survives startStack so Full can dial scenario clients.
	registry *stack.Registry
}

// Option customizes harness construction.
type Option func(*Harness)

// WithRuntime replaces the container runtime, primarily for tests.
func WithRuntime(runtime container.Runtime) Option {
	return func(h *Harness) {
		h.runtime = runtime
	}
}

// WithCheckFunc replaces the health-check dispatch, primarily for tests.
func WithCheckFunc(check probe.CheckFunc) Option {
	return func(h *Harness) {
		h.check = check
	}
}

// WithNotifier replaces report delivery.
func WithNotifier(notifier notify.Notifier) Option {
	return func(h *Harness) {
		h.notifier = notifier
	}
}

// WithScenarios replaces the default scenario suite.
func WithScenarios(scenarios []scenario.Scenario) Option {
	return func(h *Harness) {
		h.scenarios = scenarios
	}
}

// New constructs a Harness from configuration. Without options it talks
// to the local Docker daemon and runs the default suite.
func New(logger zerolog.Logger, cfg config.Config, opts ...Option) (*Harness, error) {
	h := &Harness{
		logger:    logger,
		cfg:       cfg,
		metrics:   metrics.New(),
		scenarios: DefaultSuite(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.runtime == nil {
		runtime, err := container.NewDockerRuntime(cfg.DockerHost, dockerTimeout)
		if err != nil {
			return nil, fmt.Errorf("docker runtime: %w", err)
		}
		h.runtime = runtime
	}

	if h.notifier == nil {
		h.notifier = defaultNotifier(logger, cfg)
	}

	return h, nil
}

func defaultNotifier(logger zerolog.Logger, cfg config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, "")
		if err != nil {
			logger.Error().Err(err).Msg("webhook notifier disabled")
		} else {
			notifiers = append(notifiers, webhook)
		}
	}
	notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.DryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier
}

// Smoke starts the stack, waits for every service to become ready, logs
// the state snapshot and tears the stack down again.
func (h *Harness) Smoke(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.RunDeadline)
	defer cancel()
	defer h.runtime.Close()

	server.Start(ctx, h.logger, h.metrics, h.cfg.MetricsPort)

	handle, err := h.startStack(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("stack never became healthy")
		return ExitStackUnhealthy, err
	}

	for service, state := range handle.Tracker().Snapshot() {
		h.logger.Info().Str("service", service).Str("state", string(state)).Msg("smoke check")
	}

	// Teardown must run even when the deadline or a signal ended the
	// run; a dead ctx would leak every container.
	if err := handle.Stop(context.WithoutCancel(ctx)); err != nil {
		return ExitScenarioFailures, fmt.Errorf("stack teardown: %w", err)
	}
	return ExitOK, nil
}

// Full runs the whole pipeline: stack up, scenario suite, report
// artifact, notifications, stack down. Teardown is best-effort on every
// path; a teardown error never masks the run result.
func (h *Harness) Full(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.RunDeadline)
	defer cancel()
	defer h.runtime.Close()

	server.Start(ctx, h.logger, h.metrics, h.cfg.MetricsPort)

	startedAt := time.Now().UTC()
	handle, err := h.startStack(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("stack never became healthy")
		rep := report.Unhealthy(startedAt, time.Now().UTC(), err)
		h.deliver(ctx, rep)
		return ExitStackUnhealthy, err
	}

	rep, runErr := h.runScenarios(ctx, handle)

	if stopErr := handle.Stop(context.WithoutCancel(ctx)); stopErr != nil {
		h.logger.Error().Err(stopErr).Msg("stack teardown failed")
	}

	if runErr != nil {
		return ExitScenarioFailures, runErr
	}

	h.deliver(ctx, rep)

	if !rep.AllPassed() {
		return ExitScenarioFailures, nil
	}
	return ExitOK, nil
}

func (h *Harness) startStack(ctx context.Context) (*stack.Handle, error) {
	registry, err := h.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	probeOpts := []probe.Option{probe.WithAttemptObserver(h.metrics.IncProbeAttempt)}
	if h.check != nil {
		probeOpts = append(probeOpts, probe.WithCheckFunc(h.check))
	}
	prober := probe.New(h.logger, retry.New(), probeOpts...)

	controller := stack.NewController(h.logger, h.runtime, prober,
		stack.WithStopGrace(h.cfg.StopGrace))

	started := time.Now()
	handle, err := controller.Start(ctx, registry)
	if err != nil {
		return nil, err
	}
	h.metrics.ObserveStartupDuration(time.Since(started))
	h.metrics.SetServicesReady(len(registry.Descriptors()))
	h.registry = registry
	return handle, nil
}

func (h *Harness) loadRegistry(ctx context.Context) (*stack.Registry, error) {
	overrides, err := stack.LoadOverrides(h.cfg.OverridesFile)
	if err != nil {
		return nil, err
	}
	return stack.LoadComposeFile(ctx, h.cfg.ComposeFile, overrides)
}

func (h *Harness) runScenarios(ctx context.Context, handle *stack.Handle) (report.Report, error) {
	clients, err := simclient.Dial(h.registry)
	if err != nil {
		return report.Report{}, fmt.Errorf("dial clients: %w", err)
	}
	defer clients.Close()

	runner := scenario.NewRunner(h.logger, clients,
		scenario.WithConcurrency(h.cfg.Concurrency),
		scenario.WithDefaultTimeout(h.cfg.ScenarioTimeout),
		scenario.WithResultObserver(func(result report.Result) {
			h.metrics.ObserveScenario(string(result.Outcome), result.Duration)
		}),
	)

	rep := runner.Run(ctx, h.scenarios)
	return rep, nil
}

func (h *Harness) deliver(ctx context.Context, rep report.Report) {
	writer := report.NewWriter(h.cfg.ReportPath, h.logger)
	if err := writer.Write(rep); err != nil {
		h.logger.Error().Err(err).Str("path", h.cfg.ReportPath).Msg("report write failed")
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := h.notifier.Notify(notifyCtx, "simstack", rep); err != nil {
		h.logger.Error().Err(err).Msg("report notification failed")
	}
}
