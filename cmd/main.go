package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnknownOlympus/custodian/internal/api"
	"github.com/UnknownOlympus/custodian/internal/config"
	"github.com/UnknownOlympus/custodian/internal/events"
	"github.com/UnknownOlympus/custodian/internal/i18n"
	"github.com/UnknownOlympus/custodian/internal/materialize"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/notifier"
	"github.com/UnknownOlympus/custodian/internal/projection"
	"github.com/UnknownOlympus/custodian/internal/reconcile"
	"github.com/UnknownOlympus/custodian/internal/repository"
	"github.com/UnknownOlympus/custodian/internal/repository/memory"
	"github.com/UnknownOlympus/custodian/internal/schedule"
	"github.com/UnknownOlympus/custodian/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"

	busDrainTimeout = 5 * time.Second
)

// taskStore is implemented by both the postgres repository and the in-memory store.
type taskStore interface {
	projection.Store
	materialize.Store
	reconcile.Store
}

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load application configuration.
	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	store, pinger, closeStore, err := setupStorage(ctx, logger, cfg, appMetrics)
	if err != nil {
		log.Fatalf("Failed to set up storage: %v", err)
	}
	defer closeStore()

	localizer, err := i18n.NewLocalizer()
	if err != nil {
		log.Fatalf("Failed to initialize localizer: %v", err)
	}

	resolver := schedule.NewResolver(logger, store, schedule.Options{
		DefaultTimezone:     cfg.Schedule.DefaultTimezone,
		RequireWorkingHours: cfg.Schedule.RequireWorkingHours,
	})
	engine := projection.NewEngine(logger, store, resolver, appMetrics, projection.Options{MaxDays: cfg.Projection.MaxDays})

	bus := events.NewBus(logger, cfg.Events.Buffer, appMetrics)
	if cfg.Telegram.Enabled {
		bot, errBot := notifier.NewTelegramSender(logger, cfg.Telegram.Token, cfg.Telegram.Timeout)
		if errBot != nil {
			log.Fatalf("Failed to create notifier: %v", errBot)
		}
		bus.Subscribe(notifier.New(logger, bot, store, localizer, appMetrics, cfg.Telegram.Language).Handle)
	}

	service := materialize.NewService(logger, store, resolver, bus, appMetrics, materialize.Options{})
	reconciler := reconcile.NewReconciler(logger, store, engine, service, bus, appMetrics, reconcile.Options{
		GracePeriod:         cfg.Reconcile.GracePeriod,
		RetentionDays:       cfg.Reconcile.RetentionDays,
		VirtualLookbackDays: cfg.Reconcile.VirtualLookbackDays,
	})

	var scheduler *reconcile.Scheduler
	if cfg.Reconcile.Enabled {
		scheduler = reconcile.NewScheduler(logger, reconciler,
			cfg.Reconcile.OverdueCron, cfg.Reconcile.RetentionCron, cfg.Reconcile.Timeout)
		if err = scheduler.Start(); err != nil {
			log.Fatalf("Failed to start reconcile scheduler: %v", err)
		}
	}

	handler := api.NewHandler(logger, engine, service, reconciler, localizer, appMetrics,
		api.Options{Language: cfg.Telegram.Language})

	// The bus runs on its own context and is drained after the servers stop.
	busCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()
	busDone := make(chan struct{})
	go func() {
		bus.Run(busCtx)
		close(busDone)
	}()

	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.", "storage", cfg.Storage)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(groupCtx, logger, "api", cfg.HTTP.Port, handler.Routes())
	})
	group.Go(func() error {
		return server.StartMonitoringServer(groupCtx, logger, reg, map[string]server.Pinger{"storage": pinger}, cfg.Monitoring.Port)
	})
	if err = group.Wait(); err != nil {
		logger.ErrorContext(ctx, "Server stopped with error", "error", err)
	}

	// Log that a shutdown signal has been received.
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	if scheduler != nil {
		scheduler.Stop()
	}

	bus.Close()
	select {
	case <-busDone:
	case <-time.After(busDrainTimeout):
		logger.WarnContext(ctx, "Event bus did not drain in time")
		cancelBus()
	}

	// Log graceful shutdown completion.
	logger.InfoContext(ctx, "Application stopped gracefully.")
}

// setupStorage opens the configured task store and returns it with its health pinger and closer.
func setupStorage(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	appMetrics *metrics.Metrics,
) (taskStore, server.Pinger, func(), error) {
	switch cfg.Storage {
	case config.StorageMemory:
		store := memory.New()
		if cfg.SeedFile != "" {
			if err := store.LoadSeedFile(cfg.SeedFile); err != nil {
				return nil, nil, nil, fmt.Errorf("failed to load seed: %w", err)
			}
		}
		logger.Warn("Using in-memory storage, data is lost on restart")
		return store, store, func() {}, nil
	default:
		dtb, err := repository.NewDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		if err = repository.Migrate(dtb); err != nil {
			dtb.Close()
			return nil, nil, nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
		return repository.NewRepository(logger, dtb, appMetrics), dtb, dtb.Close, nil
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified	 or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
