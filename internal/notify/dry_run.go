package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dkazakov/simstack/internal/report"
)

// DryRunNotifier logs the report summary without sending anything.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, run string, rep report.Report) error {
	n.logger.Info().
		Str("run", run).
		Bool("stack_healthy", rep.StackHealthy).
		Int("passed", rep.Counts.Passed).
		Int("failed", rep.Counts.Failed).
		Int("errored", rep.Counts.Errored).
		Int("timed_out", rep.Counts.TimedOut).
		Msg("[DRY-RUN] Would notify")
	return nil
}
