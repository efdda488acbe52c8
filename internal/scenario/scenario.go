package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/dkazakov/simstack/internal/simclient"
)

// Scenario is one self-contained test case against the live stack.
type Scenario struct {
	ID string
	// Tags name shared mutable data the scenario needs exclusively.
	// Scenarios sharing a tag are never scheduled concurrently.
	Tags []string
	// Timeout bounds one execution; zero uses the runner default.
	Timeout time.Duration
	// Run must honor ctx cancellation: the runner cancels it at the
	// scenario deadline and waits for Run to return.
	Run func(ctx context.Context, clients *simclient.Clients) error
}

// Failure marks an assertion violation, distinguishing a scenario that
// failed its checks from one that hit an unexpected fault.
type Failure struct {
	Msg string
}

func (f *Failure) Error() string {
	return f.Msg
}

// Failf returns an assertion failure.
func Failf(format string, args ...any) error {
	return &Failure{Msg: fmt.Sprintf(format, args...)}
}
