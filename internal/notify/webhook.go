package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkazakov/simstack/internal/report"
)

const defaultWebhookTemplate = `{"run":"{{ .Run }}","report":{{ toJson .Report }}}`

// WebhookPayload is the template context for webhook notifications.
type WebhookPayload struct {
	Run         string
	Report      report.Report
	GeneratedAt time.Time
}

// WebhookNotifier sends run reports to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *httpPoster
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, "application/json", defaultTiming),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, run string, rep report.Report) error {
	if n == nil {
		return nil
	}

	runName := run
	if runName == "" {
		runName = "default"
	}

	payload := WebhookPayload{
		Run:         runName,
		Report:      rep,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.poster.deliver(ctx, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Str("run", runName).
		Int("scenarios", len(rep.Results)).
		Msg("webhook notification sent")

	return nil
}
