package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkazakov/simstack/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Start exposes the Prometheus registry on /metrics for the duration of
// a run. A port of zero disables the server.
func Start(ctx context.Context, logger zerolog.Logger, metricsCollector *metrics.Metrics, port int) {
	if port == 0 || metricsCollector == nil {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsCollector.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Int("port", port).Msg("metrics server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Int("port", port).Msg("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Int("port", port).Msg("metrics server shutdown failed")
		}
	}()
}
