package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/dkazakov/simstack/internal/report"
)

const (
	slackMaxBlocks = 50
	// slackReservedBlocks accounts for header block + context block in each message
	slackReservedBlocks = 2
	slackMaxResults     = slackMaxBlocks - slackReservedBlocks
)

type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier. Healthy all-passed runs are not posted;
// Slack only hears about runs somebody has to look at.
func (n *SlackNotifier) Notify(ctx context.Context, run string, rep report.Report) error {
	if rep.StackHealthy && rep.AllPassed() {
		return nil
	}
	runName := run
	if runName == "" {
		runName = "default"
	}
	messages := buildSlackMessages(runName, rep)
	for _, message := range messages {
		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal slack payload: %w", err)
		}
		if err := n.poster.deliver(ctx, payload); err != nil {
			return err
		}
	}

	n.logger.Debug().
		Str("run", runName).
		Int("messages", len(messages)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessages(run string, rep report.Report) []slack.WebhookMessage {
	problems := problemResults(rep)
	if len(problems) == 0 {
		return []slack.WebhookMessage{buildSlackMessage(run, rep, nil, 1, 1)}
	}

	total := len(problems)
	chunkTotal := (total + slackMaxResults - 1) / slackMaxResults
	messages := make([]slack.WebhookMessage, 0, chunkTotal)

	for i := 0; i < total; i += slackMaxResults {
		end := i + slackMaxResults
		if end > total {
			end = total
		}
		partIndex := (i / slackMaxResults) + 1
		messages = append(messages, buildSlackMessage(run, rep, problems[i:end], partIndex, chunkTotal))
	}
	return messages
}

func problemResults(rep report.Report) []report.Result {
	problems := make([]report.Result, 0)
	for _, result := range rep.Results {
		if result.Outcome != report.OutcomePassed {
			problems = append(problems, result)
		}
	}
	return problems
}

func buildSlackMessage(run string, rep report.Report, problems []report.Result, partIndex, partTotal int) slack.WebhookMessage {
	summary := summaryLine(run, rep)
	if partTotal > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, partIndex, partTotal)
	}
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Run: *%s*", run), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(
			"Passed %d · Failed %d · Errored %d · Timed out %d",
			rep.Counts.Passed, rep.Counts.Failed, rep.Counts.Errored, rep.Counts.TimedOut), false, false),
	}
	if partTotal > 1 {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Batch: %d/%d", partIndex, partTotal), false, false))
	}
	context := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, context}
	for _, result := range problems {
		blocks = append(blocks, buildResultBlock(result))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func summaryLine(run string, rep report.Report) string {
	if !rep.StackHealthy {
		return fmt.Sprintf("Run %s: stack never became healthy", run)
	}
	problems := rep.Counts.Failed + rep.Counts.Errored + rep.Counts.TimedOut
	return fmt.Sprintf("Run %s: %d scenario problem(s)", run, problems)
}

func buildResultBlock(result report.Result) slack.Block {
	title := fmt.Sprintf("*%s*: `%s` in %s", result.ScenarioID, result.Outcome, result.Duration.Round(time.Millisecond))
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)

	var fields []*slack.TextBlockObject
	if result.Detail != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Detail:*\n"+result.Detail, false, false))
	}

	return slack.NewSectionBlock(text, fields, nil)
}
