package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// MonitoringHandler serves /healthz and /metrics.
func MonitoringHandler(log *slog.Logger, reg *prometheus.Registry, checks map[string]Pinger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", NewHealthChecker(log, checks))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// StartMonitoringServer serves the monitoring endpoints on port until ctx is cancelled.
func StartMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	checks map[string]Pinger,
	port int,
) error {
	return Serve(ctx, log, "monitoring", port, MonitoringHandler(log, reg, checks))
}

// Serve runs handler on port and shuts it down gracefully once ctx is done.
// It returns nil after a clean shutdown.
func Serve(ctx context.Context, log *slog.Logger, name string, port int, handler http.Handler) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	log.InfoContext(ctx, "Starting server", "server", name, "port", port)

	var err error
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.InfoContext(ctx, "Server shutting down", "server", name)
		if err = server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s server failed to shutdown: %w", name, err)
		}
		return nil
	case err = <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server failed: %w", name, err)
	}
}
