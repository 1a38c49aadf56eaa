// Package reconcile holds the batch passes that fail stale tasks and purge expired checklists.
// Every pass is idempotent, so overlapping or repeated runs are safe.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/events"
	"github.com/UnknownOlympus/custodian/internal/lifecycle"
	"github.com/UnknownOlympus/custodian/internal/materialize"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/projection"
	"github.com/UnknownOlympus/custodian/internal/repository"
	"github.com/google/uuid"
)

// Kind names a reconciliation pass.
type Kind string

const (
	KindOverdueSweep     Kind = "overdue-sweep"
	KindRetentionCleanup Kind = "retention-cleanup"
)

// ParseKind validates a pass name.
func ParseKind(raw string) (Kind, error) {
	switch kind := Kind(raw); kind {
	case KindOverdueSweep, KindRetentionCleanup:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown reconcile kind %q", models.ErrValidation, raw)
	}
}

// Result summarises one pass.
type Result struct {
	Kind     Kind
	Affected int
	Skipped  int
}

// Store is the storage the passes need.
type Store interface {
	ListOverdueCandidates(ctx context.Context, statuses []models.TaskStatus, cutoff time.Time) ([]models.Task, error)
	ListExpiredChecklists(ctx context.Context, horizon civil.Date) ([]models.ChecklistSummary, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

// Projector lists virtual tasks for the overdue lookback.
type Projector interface {
	ProjectTasks(ctx context.Context, rng projection.DateRange, scope projection.Scope) ([]models.Task, error)
}

// Materializer persists overdue virtual tasks as failed.
type Materializer interface {
	Materialize(ctx context.Context, req materialize.Request) (models.Task, error)
}

// Options configure the passes.
type Options struct {
	GracePeriod         time.Duration
	RetentionDays       int
	VirtualLookbackDays int
}

// Reconciler runs the passes.
type Reconciler struct {
	log          *slog.Logger
	store        Store
	projector    Projector
	materializer Materializer
	publisher    events.Publisher
	metrics      *metrics.Metrics
	opts         Options
}

// SweepActor is recorded as the actor of tasks failed by the overdue sweep.
var SweepActor = models.Actor{ID: "reconcile:overdue-sweep", Role: models.RoleSystem}

// NewReconciler creates a reconciler. Projector and materializer may be nil to
// disable the virtual lookback; publisher and metrics may be nil.
func NewReconciler(
	log *slog.Logger,
	store Store,
	projector Projector,
	materializer Materializer,
	publisher events.Publisher,
	m *metrics.Metrics,
	opts Options,
) *Reconciler {
	return &Reconciler{
		log:          log,
		store:        store,
		projector:    projector,
		materializer: materializer,
		publisher:    publisher,
		metrics:      m,
		opts:         opts,
	}
}

// Run executes the pass named kind as of now.
func (r *Reconciler) Run(ctx context.Context, kind Kind, now time.Time) (Result, error) {
	switch kind {
	case KindOverdueSweep:
		return r.SweepOverdue(ctx, now)
	case KindRetentionCleanup:
		return r.CleanupRetention(ctx, now)
	default:
		return Result{Kind: kind}, fmt.Errorf("%w: unknown reconcile kind %q", models.ErrValidation, kind)
	}
}

// SweepOverdue fails materialized tasks whose window closed more than the grace
// period ago and, when a lookback is configured, overdue virtual tasks of the
// last days. In-progress and terminal tasks are never touched.
func (r *Reconciler) SweepOverdue(ctx context.Context, now time.Time) (Result, error) {
	result := Result{Kind: KindOverdueSweep}
	defer r.record(&result)

	cutoff := now.Add(-r.opts.GracePeriod)
	candidates, err := r.store.ListOverdueCandidates(ctx,
		[]models.TaskStatus{models.StatusOverdue, models.StatusNew, models.StatusAvailable}, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to list overdue candidates: %w", err)
	}

	for _, candidate := range candidates {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		changed, errSweep := r.failTask(ctx, candidate.ID, cutoff, now)
		switch {
		case errSweep != nil:
			r.log.WarnContext(ctx, "Failed to sweep overdue task", "task_id", candidate.ID, "error", errSweep)
			result.Skipped++
		case changed:
			result.Affected++
		}
	}

	if err = r.sweepVirtual(ctx, now, cutoff, &result); err != nil {
		return result, err
	}

	r.log.InfoContext(ctx, "Overdue sweep finished", "affected", result.Affected, "skipped", result.Skipped)

	return result, nil
}

// failTask moves one materialized task to FAILED if it still qualifies.
func (r *Reconciler) failTask(ctx context.Context, id string, cutoff, now time.Time) (bool, error) {
	var (
		failed models.Task
		prev   models.TaskStatus
	)
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		task, err := tx.GetTaskForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if task.Status.IsTerminal() || task.Status == models.StatusInProgress || !task.ScheduledEnd.Before(cutoff) {
			return nil
		}

		prev = task.Status
		// NEW and AVAILABLE records past their window are overdue in fact.
		next, err := lifecycle.Apply(models.StatusOverdue, models.Mutation{Kind: models.MutationFail}, SweepActor)
		if err != nil {
			return err
		}

		task.Status = next
		task.CompletedAt = &now
		task.CompletedBy = SweepActor.ID
		task.UpdatedAt = now
		if err = tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		if err = tx.AppendAudit(ctx, models.AuditEntry{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			ActorID:    SweepActor.ID,
			ActorRole:  SweepActor.Role,
			Action:     models.MutationFail,
			PrevStatus: prev,
			NewStatus:  next,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		failed = task
		return nil
	})
	if err != nil || failed.ID == "" {
		return false, err
	}

	if r.publisher != nil {
		r.publisher.Publish(events.Event{
			Type:       events.TaskFailed,
			Task:       failed,
			Actor:      SweepActor,
			PrevStatus: prev,
			At:         now,
		})
	}

	return true, nil
}

// sweepVirtual materializes overdue virtual tasks of the lookback window directly as FAILED.
func (r *Reconciler) sweepVirtual(ctx context.Context, now, cutoff time.Time, result *Result) error {
	if r.opts.VirtualLookbackDays <= 0 || r.projector == nil || r.materializer == nil {
		return nil
	}

	today := civil.DateOf(now)
	rng := projection.DateRange{From: today.AddDays(-r.opts.VirtualLookbackDays), To: today}
	tasks, err := r.projector.ProjectTasks(ctx, rng, projection.Scope{})
	if err != nil {
		return fmt.Errorf("failed to project lookback tasks: %w", err)
	}

	for _, task := range tasks {
		if !task.Virtual || task.Status != models.StatusOverdue || !task.ScheduledEnd.Before(cutoff) {
			continue
		}
		if err = ctx.Err(); err != nil {
			return err
		}

		_, err = r.materializer.Materialize(ctx, materialize.Request{
			WorkItemID: task.WorkItemID,
			Date:       task.Date,
			Mutation:   models.Mutation{Kind: models.MutationFail},
			Actor:      SweepActor,
		})
		switch {
		case errors.Is(err, models.ErrInvalidTransition):
			// materialized by someone else since the projection
			r.log.DebugContext(ctx, "Virtual task changed during sweep", "task_id", task.ID)
		case err != nil:
			r.log.WarnContext(ctx, "Failed to fail virtual task", "task_id", task.ID, "error", err)
			result.Skipped++
		default:
			result.Affected++
		}
	}

	return nil
}

// CleanupRetention deletes checklists older than the retention horizon whose
// tasks are all terminal and that carry no retention hold. Tasks cascade.
func (r *Reconciler) CleanupRetention(ctx context.Context, now time.Time) (Result, error) {
	result := Result{Kind: KindRetentionCleanup}
	defer r.record(&result)

	horizon := civil.DateOf(now).AddDays(-r.opts.RetentionDays)
	expired, err := r.store.ListExpiredChecklists(ctx, horizon)
	if err != nil {
		return result, fmt.Errorf("failed to list expired checklists: %w", err)
	}

	for _, checklist := range expired {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		var deleted bool
		errTx := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			r.log.InfoContext(ctx, "Deleting expired checklist",
				"checklist", checklist.ID,
				"facility", checklist.FacilityID,
				"date", checklist.Date.String(),
				"tasks", checklist.TaskCount,
			)
			var errDelete error
			deleted, errDelete = tx.DeleteChecklist(ctx, checklist.ID)
			return errDelete
		})
		switch {
		case errTx != nil:
			r.log.WarnContext(ctx, "Failed to delete checklist", "checklist", checklist.ID, "error", errTx)
			result.Skipped++
		case deleted:
			result.Affected++
		default:
			r.log.DebugContext(ctx, "Checklist no longer eligible for deletion", "checklist", checklist.ID)
		}
	}

	r.log.InfoContext(ctx, "Retention cleanup finished",
		"horizon", horizon.String(), "affected", result.Affected, "skipped", result.Skipped)

	return result, nil
}

func (r *Reconciler) record(result *Result) {
	if r.metrics == nil {
		return
	}
	r.metrics.ReconcileAffected.WithLabelValues(string(result.Kind)).Add(float64(result.Affected))
	r.metrics.ReconcileSkipped.WithLabelValues(string(result.Kind)).Add(float64(result.Skipped))
}
