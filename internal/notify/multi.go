package notify

import (
	"context"

	"github.com/dkazakov/simstack/internal/report"
)

// MultiNotifier fans out notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that dispatches to all provided notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier == nil {
			continue
		}
		filtered = append(filtered, notifier)
	}
	return &MultiNotifier{notifiers: filtered}
}

// Notify implements Notifier.
func (m *MultiNotifier) Notify(ctx context.Context, run string, rep report.Report) error {
	var firstErr error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, run, rep); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
