package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dkazakov/simstack/internal/harness"
)

func newSmokeCmd(runMode func(func(*harness.Harness, context.Context) (int, error)) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Start the stack, wait for health, tear it down",
		Long: `smoke verifies the stack comes up: every service is launched in
startup order, gated on its health check, then shut down again. No
scenarios run.`,
		RunE: runMode(func(h *harness.Harness, ctx context.Context) (int, error) {
			return h.Smoke(ctx)
		}),
	}
}
