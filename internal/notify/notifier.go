package notify

import (
	"context"

	"github.com/dkazakov/simstack/internal/report"
)

// Notifier delivers run reports to external systems.
type Notifier interface {
	Notify(ctx context.Context, run string, rep report.Report) error
}
