package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const httpErrorBodyLimit = 1024

// timingConfig bounds a single report delivery: the per-request timeout,
// the pacing between consecutive posts (chunked messages share one
// poster), and the retry schedule for transient endpoint errors.
type timingConfig struct {
	timeout           time.Duration
	rateInterval      time.Duration
	rateBurst         int
	backoffMaxElapsed time.Duration
	backoffMax        time.Duration
	backoffInitial    time.Duration
}

var defaultTiming = timingConfig{
	timeout:           10 * time.Second,
	rateInterval:      1 * time.Second,
	rateBurst:         1,
	backoffMaxElapsed: 30 * time.Second,
	backoffMax:        10 * time.Second,
	backoffInitial:    1 * time.Second,
}

// httpPoster pushes report payloads to one webhook endpoint. A run
// produces a single report, so one limiter paces the poster as a
// whole rather than tracking senders individually.
type httpPoster struct {
	logger      zerolog.Logger
	name        string
	webhookURL  string
	contentType string
	client      *retryablehttp.Client
	timing      timingConfig
	limiter     *rate.Limiter
}

func newHTTPPoster(logger zerolog.Logger, name, webhookURL, contentType string, timing timingConfig) *httpPoster {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timing.timeout}

	return &httpPoster{
		logger:      logger,
		name:        name,
		webhookURL:  webhookURL,
		contentType: contentType,
		client:      client,
		timing:      timing,
		limiter:     rate.NewLimiter(rate.Every(timing.rateInterval), timing.rateBurst),
	}
}

// deliver paces, posts and retries one payload. Transient failures
// follow the backoff schedule; a Retry-After from the endpoint wins
// over the schedule; anything else aborts the delivery.
func (p *httpPoster) deliver(ctx context.Context, payload []byte) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = p.timing.backoffInitial
	schedule.MaxInterval = p.timing.backoffMax
	schedule.MaxElapsedTime = p.timing.backoffMaxElapsed
	schedule.Reset()

	for {
		err := p.postOnce(ctx, payload)
		if err == nil {
			return nil
		}

		var retryAfter *retryAfterError
		if errors.As(err, &retryAfter) {
			if !sleepWithContext(ctx, retryAfter.Duration) {
				return ctx.Err()
			}
			continue
		}
		var transient *retryableError
		if !errors.As(err, &transient) {
			return err
		}
		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		if !sleepWithContext(ctx, wait) {
			return ctx.Err()
		}
	}
}

func (p *httpPoster) postOnce(ctx context.Context, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.timing.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, p.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", p.contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("%s request failed: %w", p.name, err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, httpErrorBodyLimit))
	bodyText := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return &retryAfterError{
				Duration: wait,
				err:      fmt.Errorf("%s rate limited: %s", p.name, resp.Status),
			}
		}
		return &retryableError{err: fmt.Errorf("%s rate limited: %s", p.name, resp.Status)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &retryableError{err: fmt.Errorf("%s server error: %s", p.name, resp.Status)}
	case bodyText != "":
		return fmt.Errorf("%s request failed: %s (%s)", p.name, resp.Status, bodyText)
	default:
		return fmt.Errorf("%s request failed: %s", p.name, resp.Status)
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		wait := time.Until(when)
		if wait <= 0 {
			return 0, false
		}
		return wait, true
	}
	return 0, false
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

type retryAfterError struct {
	Duration time.Duration
	err      error
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("rate limited; retry after %s", e.Duration)
}

func (e *retryAfterError) Unwrap() error {
	return e.err
}
