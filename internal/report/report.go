package report

import "time"

// Outcome classifies a single scenario execution.
type Outcome string

const (
	OutcomePassed   Outcome = "passed"
	OutcomeFailed   Outcome = "failed"
	OutcomeErrored  Outcome = "errored"
	OutcomeTimedOut Outcome = "timed_out"
)

// Result is the immutable record of one scenario execution.
type Result struct {
	ScenarioID string        `json:"scenario_id"`
	Outcome    Outcome       `json:"outcome"`
	Duration   time.Duration `json:"duration_ns"`
	Detail     string        `json:"detail,omitempty"`
}

// Counts aggregates results by outcome.
type Counts struct {
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Errored  int `json:"errored"`
	TimedOut int `json:"timed_out"`
}

// Report is the run artifact: results in submission order plus
// aggregates, serializable for CI consumption. StackHealthy separates
// "the stack never came up" from "the stack was up but scenarios
// failed"; the two must not be conflated downstream.
type Report struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	StackHealthy bool      `json:"stack_healthy"`
	StackError   string    `json:"stack_error,omitempty"`
	Counts       Counts    `json:"counts"`
	Results      []Result  `json:"results"`
}

// Build assembles a report from results in submission order.
func Build(startedAt, finishedAt time.Time, results []Result) Report {
	r := Report{
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		StackHealthy: true,
		Results:      results,
	}
	for _, result := range results {
		switch result.Outcome {
		case OutcomePassed:
			r.Counts.Passed++
		case OutcomeFailed:
			r.Counts.Failed++
		case OutcomeErrored:
			r.Counts.Errored++
		case OutcomeTimedOut:
			r.Counts.TimedOut++
		}
	}
	return r
}

// Unhealthy builds the artifact for a run where the stack never became
// ready and no scenario was dispatched.
func Unhealthy(startedAt, finishedAt time.Time, stackErr error) Report {
	r := Report{
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	if stackErr != nil {
		r.StackError = stackErr.Error()
	}
	return r
}

// AllPassed reports whether every scenario passed.
func (r Report) AllPassed() bool {
	return r.Counts.Failed == 0 && r.Counts.Errored == 0 && r.Counts.TimedOut == 0
}
