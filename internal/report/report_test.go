package report

import (
	"errors"
	"testing"
	"time"
)

func TestBuildCounts(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	rep := Build(started, finished, []Result{
		{ScenarioID: "a", Outcome: OutcomePassed},
		{ScenarioID: "b", Outcome: OutcomePassed},
		{ScenarioID: "c", Outcome: OutcomeFailed, Detail: "row mismatch"},
		{ScenarioID: "d", Outcome: OutcomeErrored, Detail: "connection reset"},
		{ScenarioID: "e", Outcome: OutcomeTimedOut},
	})

	if !rep.StackHealthy {
		t.Fatalf("expected healthy stack")
	}
	want := Counts{Passed: 2, Failed: 1, Errored: 1, TimedOut: 1}
	if rep.Counts != want {
		t.Fatalf("expected counts %+v, got %+v", want, rep.Counts)
	}
	if rep.AllPassed() {
		t.Fatalf("expected AllPassed false")
	}
	if !rep.StartedAt.Equal(started) || !rep.FinishedAt.Equal(finished) {
		t.Fatalf("timestamps not preserved")
	}
}

func TestBuildAllPassed(t *testing.T) {
	rep := Build(time.Now(), time.Now(), []Result{
		{ScenarioID: "a", Outcome: OutcomePassed},
	})
	if !rep.AllPassed() {
		t.Fatalf("expected AllPassed true")
	}
}

func TestUnhealthy(t *testing.T) {
	rep := Unhealthy(time.Now(), time.Now(), errors.New("service db not ready after 90s"))
	if rep.StackHealthy {
		t.Fatalf("expected unhealthy stack")
	}
	if rep.StackError != "service db not ready after 90s" {
		t.Fatalf("unexpected stack error %q", rep.StackError)
	}
	if len(rep.Results) != 0 {
		t.Fatalf("expected no results")
	}
	if !rep.AllPassed() {
		t.Fatalf("AllPassed is about scenarios only; got false")
	}
}

func TestUnhealthyNilError(t *testing.T) {
	rep := Unhealthy(time.Now(), time.Now(), nil)
	if rep.StackError != "" {
		t.Fatalf("expected empty stack error, got %q", rep.StackError)
	}
}
