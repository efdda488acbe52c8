package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dkazakov/simstack/internal/harness"
)

func newFullCmd(runMode func(func(*harness.Harness, context.Context) (int, error)) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "full",
		Short: "Start the stack, run the scenario suite, write the run report",
		Long: `full performs the complete pipeline: stack up, health gating,
concurrent scenario execution, JSON report artifact, notifications and
teardown. The exit code separates stack failures (2) from scenario
failures (1).`,
		RunE: runMode(func(h *harness.Harness, ctx context.Context) (int, error) {
			return h.Full(ctx)
		}),
	}
}
