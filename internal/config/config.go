package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envLogLevel        = "SIMSTACK_LOG_LEVEL"
	envComposeFile     = "SIMSTACK_COMPOSE_FILE"
	envOverridesFile   = "SIMSTACK_OVERRIDES_FILE"
	envDockerHost      = "SIMSTACK_DOCKER_HOST"
	envStopGrace       = "SIMSTACK_STOP_GRACE"
	envRunDeadline     = "SIMSTACK_RUN_DEADLINE"
	envConcurrency     = "SIMSTACK_CONCURRENCY"
	envScenarioTimeout = "SIMSTACK_SCENARIO_TIMEOUT"
	envReportPath      = "SIMSTACK_REPORT_PATH"
	envWebhookURL      = "SIMSTACK_WEBHOOK_URL"
	envSlackWebhookURL = "SIMSTACK_SLACK_WEBHOOK_URL"
	envMetricsPort     = "SIMSTACK_METRICS_PORT"
	envDryRun          = "SIMSTACK_DRY_RUN"
)

const (
	defaultComposeFile     = "docker-compose.yaml"
	defaultStopGrace       = 10 * time.Second
	defaultRunDeadline     = 10 * time.Minute
	defaultConcurrency     = 4
	defaultScenarioTimeout = 30 * time.Second
	defaultReportPath      = "simstack-report.json"
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	LogLevel        string
	ComposeFile     string
	OverridesFile   string
	DockerHost      string
	StopGrace       time.Duration
	RunDeadline     time.Duration
	Concurrency     int
	ScenarioTimeout time.Duration
	ReportPath      string
	WebhookURL      string
	SlackWebhookURL string
	MetricsPort     int
	DryRun          bool
}

// Load reads configuration from environment variables and a local .env
// file if present. Existing environment variables take precedence over
// values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:        "info",
		ComposeFile:     defaultComposeFile,
		StopGrace:       defaultStopGrace,
		RunDeadline:     defaultRunDeadline,
		Concurrency:     defaultConcurrency,
		ScenarioTimeout: defaultScenarioTimeout,
		ReportPath:      defaultReportPath,
	}

	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}
	if value, ok := lookupTrimmed(envComposeFile); ok {
		cfg.ComposeFile = value
	}
	if value, ok := lookupTrimmed(envOverridesFile); ok {
		cfg.OverridesFile = value
	}
	if value, ok := lookupTrimmed(envDockerHost); ok {
		cfg.DockerHost = value
	}
	if value, ok := lookupTrimmed(envReportPath); ok {
		cfg.ReportPath = value
	}
	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}
	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}

	var err error
	if cfg.StopGrace, err = durationVar(envStopGrace, cfg.StopGrace); err != nil {
		return Config{}, err
	}
	if cfg.RunDeadline, err = durationVar(envRunDeadline, cfg.RunDeadline); err != nil {
		return Config{}, err
	}
	if cfg.ScenarioTimeout, err = durationVar(envScenarioTimeout, cfg.ScenarioTimeout); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envConcurrency); ok {
		limit, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envConcurrency, err)
		}
		if limit <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envConcurrency)
		}
		cfg.Concurrency = limit
	}

	if value, ok := lookupTrimmed(envMetricsPort); ok {
		port, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envMetricsPort, err)
		}
		if port < 0 || port > 65535 {
			return Config{}, fmt.Errorf("%s out of range", envMetricsPort)
		}
		cfg.MetricsPort = port
	}

	if value, ok := lookupTrimmed(envDryRun); ok {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	if cfg.ComposeFile == "" {
		return Config{}, errors.New("SIMSTACK_COMPOSE_FILE must not be empty")
	}
	if cfg.ReportPath == "" {
		return Config{}, errors.New("SIMSTACK_REPORT_PATH must not be empty")
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func durationVar(name string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(name)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}
	return parsed, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
