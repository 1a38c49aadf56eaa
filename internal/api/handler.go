// Package api exposes projection, materialization and reconciliation over HTTP.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/custodian/internal/i18n"
	"github.com/UnknownOlympus/custodian/internal/materialize"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/projection"
	"github.com/UnknownOlympus/custodian/internal/reconcile"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultLimit   = 100
	maxLimit       = 1000
	requestTimeout = 30 * time.Second
)

// Projector lists tasks for a range and scope.
type Projector interface {
	ProjectTasks(ctx context.Context, rng projection.DateRange, scope projection.Scope) ([]models.Task, error)
}

// Materializer applies a mutation to a task.
type Materializer interface {
	Materialize(ctx context.Context, req materialize.Request) (models.Task, error)
}

// Reconciler runs a reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context, kind reconcile.Kind, now time.Time) (reconcile.Result, error)
}

// Options tune the handler.
type Options struct {
	Language string // export language
	Now      func() time.Time
}

// Handler serves the HTTP API.
type Handler struct {
	log          *slog.Logger
	projector    Projector
	materializer Materializer
	reconciler   Reconciler
	localizer    *i18n.Localizer
	metrics      *metrics.Metrics
	lang         string
	now          func() time.Time
}

// NewHandler creates the API handler. Metrics may be nil.
func NewHandler(
	log *slog.Logger,
	projector Projector,
	materializer Materializer,
	reconciler Reconciler,
	localizer *i18n.Localizer,
	m *metrics.Metrics,
	opts Options,
) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		log:          log,
		projector:    projector,
		materializer: materializer,
		reconciler:   reconciler,
		localizer:    localizer,
		metrics:      m,
		lang:         opts.Language,
		now:          opts.Now,
	}
}

// Routes mounts the API under /api/v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireActor)

		// TASKS - projection, export and the materializing write path
		r.Get("/tasks", h.ServeTasks)
		r.Get("/tasks/export", h.ServeExport)
		r.With(RequireRole(models.RoleAdmin, models.RoleDeputy, models.RoleManager)).
			Post("/tasks/{taskID}/materialize", h.HandleMaterialize)

		// RECONCILE - manual trigger of the scheduled passes
		r.With(RequireRole(models.RoleAdmin, models.RoleDeputy, models.RoleSystem)).
			Post("/reconcile/{kind}", h.HandleReconcile)
	})

	return r
}
