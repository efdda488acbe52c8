package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingSleep(slept *[]time.Duration) func(context.Context, time.Duration) bool {
	return func(_ context.Context, wait time.Duration) bool {
		*slept = append(*slept, wait)
		return true
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var slept []time.Duration
	e := New(WithSleep(recordingSleep(&slept)))

	calls := 0
	err := e.Do(context.Background(), Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}

	// Jitter is zero, so the schedule is exact: 100ms, then 200ms.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %d (%v)", len(want), len(slept), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestDo_JitterStaysWithinFraction(t *testing.T) {
	var slept []time.Duration
	e := New(WithSleep(recordingSleep(&slept)))

	err := e.Do(context.Background(), Policy{
		MaxAttempts:    4,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}, func(context.Context) error {
		return errors.New("still failing")
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if len(slept) != 3 {
		t.Fatalf("expected 3 sleeps, got %d (%v)", len(slept), slept)
	}

	// Each sleep randomizes around the undamped schedule of
	// 100ms, 200ms, 400ms, staying within the jitter fraction.
	base := 100 * time.Millisecond
	for i, wait := range slept {
		low := time.Duration(float64(base) * 0.75)
		high := time.Duration(float64(base)*1.25) + time.Nanosecond
		if wait < low || wait > high {
			t.Fatalf("sleep %d outside jitter bounds [%v, %v]: %v", i, low, high, wait)
		}
		base *= 2
	}
}

func TestDo_CapsDelayAtMax(t *testing.T) {
	var slept []time.Duration
	e := New(WithSleep(recordingSleep(&slept)))

	calls := 0
	err := e.Do(context.Background(), Policy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     150 * time.Millisecond,
		Multiplier:   2.0,
	}, func(context.Context) error {
		calls++
		return errors.New("still failing")
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	for i, wait := range slept {
		if wait > 150*time.Millisecond {
			t.Fatalf("sleep %d exceeded max delay: %v", i, wait)
		}
	}
}

func TestDo_NonRetryableAbortsImmediately(t *testing.T) {
	var slept []time.Duration
	e := New(WithSleep(recordingSleep(&slept)))

	fatal := errors.New("fatal")
	calls := 0
	err := e.Do(context.Background(), Policy{
		MaxAttempts:  10,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Retryable: func(err error) bool {
			return !errors.Is(err, fatal)
		},
	}, func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error surfaced unchanged, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if len(slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", slept)
	}
}

func TestDo_ReturnsMostRecentError(t *testing.T) {
	e := New(WithSleep(recordingSleep(&[]time.Duration{})))

	first := errors.New("first")
	last := errors.New("last")
	calls := 0
	err := e.Do(context.Background(), Policy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, func(context.Context) error {
		calls++
		if calls == 1 {
			return first
		}
		return last
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !errors.Is(err, last) {
		t.Fatalf("expected the last error, got %v", exhausted.Err)
	}
	if errors.Is(exhausted.Err, first) {
		t.Fatalf("expected the first error to be discarded")
	}
	if exhausted.Attempts != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", exhausted.Attempts)
	}
}

func TestDo_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(WithSleep(func(ctx context.Context, _ time.Duration) bool {
		cancel()
		return false
	}))

	err := e.Do(ctx, Policy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, func(context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDo_UnboundedAttemptsEndWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	e := New(WithSleep(func(context.Context, time.Duration) bool {
		return true
	}))

	err := e.Do(ctx, Policy{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}, func(context.Context) error {
		calls++
		if calls == 50 {
			cancel()
		}
		return errors.New("never ready")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls < 50 {
		t.Fatalf("expected at least 50 attempts, got %d", calls)
	}
}
