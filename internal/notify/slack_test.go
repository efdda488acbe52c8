package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/dkazakov/simstack/internal/report"
)

func testSlackTiming() SlackOption {
	return WithSlackTiming(time.Millisecond, 10, time.Millisecond, 2*time.Millisecond, 50*time.Millisecond)
}

func TestSlackNotifierSkipsHealthyRun(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, testSlackTiming())

	rep := report.Build(time.Now(), time.Now(), []report.Result{
		{ScenarioID: "ping", Outcome: report.OutcomePassed},
	})
	if err := notifier.Notify(context.Background(), "nightly", rep); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected no posts for a healthy run, got %d", got)
	}
}

func TestSlackNotifierPostsProblems(t *testing.T) {
	var payloads []slack.WebhookMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg slack.WebhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		payloads = append(payloads, msg)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, testSlackTiming())

	rep := report.Build(time.Now(), time.Now(), []report.Result{
		{ScenarioID: "ping", Outcome: report.OutcomePassed, Duration: 5 * time.Millisecond},
		{ScenarioID: "db-roundtrip", Outcome: report.OutcomeFailed, Duration: 20 * time.Millisecond, Detail: "row mismatch"},
	})
	if err := notifier.Notify(context.Background(), "nightly", rep); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	if len(payloads) != 1 {
		t.Fatalf("expected 1 message, got %d", len(payloads))
	}
	if !strings.Contains(payloads[0].Text, "1 scenario problem(s)") {
		t.Fatalf("unexpected summary: %s", payloads[0].Text)
	}
	if payloads[0].Blocks == nil || len(payloads[0].Blocks.BlockSet) != 3 {
		t.Fatalf("expected header, context and one result block")
	}
}

func TestSlackNotifierUnhealthyStackSummary(t *testing.T) {
	rep := report.Unhealthy(time.Now(), time.Now(), errors.New("postgres exited"))
	messages := buildSlackMessages("nightly", rep)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if !strings.Contains(messages[0].Text, "stack never became healthy") {
		t.Fatalf("unexpected summary: %s", messages[0].Text)
	}
}

func TestSlackNotifierChunksLargeRuns(t *testing.T) {
	results := make([]report.Result, 0, slackMaxResults+5)
	for i := 0; i < slackMaxResults+5; i++ {
		results = append(results, report.Result{
			ScenarioID: fmt.Sprintf("scenario-%03d", i),
			Outcome:    report.OutcomeFailed,
		})
	}
	rep := report.Build(time.Now(), time.Now(), results)

	messages := buildSlackMessages("nightly", rep)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if msg.Blocks == nil {
			t.Fatalf("message %d has no blocks", i)
		}
		if len(msg.Blocks.BlockSet) > slackMaxBlocks {
			t.Fatalf("message %d exceeds block limit: %d", i, len(msg.Blocks.BlockSet))
		}
	}
	if !strings.Contains(messages[0].Text, "(part 1/2)") {
		t.Fatalf("expected part marker in summary: %s", messages[0].Text)
	}
}

func TestSlackNotifierRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&calls, 1)
		if count == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, testSlackTiming())

	rep := report.Build(time.Now(), time.Now(), []report.Result{
		{ScenarioID: "flaky", Outcome: report.OutcomeErrored, Detail: "boom"},
	})
	if err := notifier.Notify(context.Background(), "nightly", rep); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestSlackNotifierEmptyWebhookIsNoop(t *testing.T) {
	notifier := NewSlackNotifier(zerolog.Nop(), "")
	if _, ok := notifier.(*NoopNotifier); !ok {
		t.Fatalf("expected NoopNotifier, got %T", notifier)
	}
}
