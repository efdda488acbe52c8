package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkazakov/simstack/internal/config"
	"github.com/dkazakov/simstack/internal/harness"
	"github.com/dkazakov/simstack/internal/logging"
)

// rootFlags mirror the SIMSTACK_* environment variables; a set flag
// wins over the environment.
type rootFlags struct {
	composeFile   string
	overridesFile string
	reportPath    string
	concurrency   int
	runDeadline   time.Duration
	metricsPort   int
	dryRun        bool
}

func newRootCmd() (*cobra.Command, *rootFlags) {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "simstack",
		Short: "Integration-test harness for the simulation service stack",
		Long: `simstack brings up the containerized service stack, gates every
service on its health check, optionally runs the scenario suite against
the live stack and writes a machine-readable run report.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.composeFile, "compose-file", "", "docker-compose file describing the stack")
	cmd.PersistentFlags().StringVar(&flags.overridesFile, "overrides-file", "", "YAML file overriding per-service health settings")
	cmd.PersistentFlags().StringVar(&flags.reportPath, "report-path", "", "where to write the JSON run report")
	cmd.PersistentFlags().IntVar(&flags.concurrency, "concurrency", 0, "maximum scenarios running at once")
	cmd.PersistentFlags().DurationVar(&flags.runDeadline, "deadline", 0, "overall run deadline")
	cmd.PersistentFlags().IntVar(&flags.metricsPort, "metrics-port", 0, "port for the Prometheus endpoint, 0 disables")
	cmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "log notifications instead of sending them")

	return cmd, flags
}

func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("compose-file") {
		cfg.ComposeFile = flags.composeFile
	}
	if cmd.Flags().Changed("overrides-file") {
		cfg.OverridesFile = flags.overridesFile
	}
	if cmd.Flags().Changed("report-path") {
		cfg.ReportPath = flags.reportPath
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = flags.concurrency
	}
	if cmd.Flags().Changed("deadline") {
		cfg.RunDeadline = flags.runDeadline
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.MetricsPort = flags.metricsPort
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = flags.dryRun
	}
	return cfg, nil
}

// execute runs the CLI and returns the process exit code: 0 for a clean
// run, 1 for scenario failures or operational errors, 2 when the stack
// never became healthy.
func execute() int {
	root, flags := newRootCmd()

	exitCode := 0
	runMode := func(mode func(*harness.Harness, context.Context) (int, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				exitCode = 1
				return err
			}
			logger := logging.NewWithLevel(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			h, err := harness.New(logger, cfg)
			if err != nil {
				exitCode = 1
				return err
			}

			code, err := mode(h, ctx)
			exitCode = code
			return err
		}
	}

	root.AddCommand(newSmokeCmd(runMode))
	root.AddCommand(newFullCmd(runMode))

	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}
