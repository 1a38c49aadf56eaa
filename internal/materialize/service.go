// Package materialize turns virtual tasks into durable records and applies mutations to them.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/events"
	"github.com/UnknownOlympus/custodian/internal/hierarchy"
	"github.com/UnknownOlympus/custodian/internal/lifecycle"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/projection"
	"github.com/UnknownOlympus/custodian/internal/repository"
	"github.com/UnknownOlympus/custodian/internal/schedule"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Store is the storage the service needs.
type Store interface {
	GetWorkItem(ctx context.Context, id string) (models.RecurringWorkItem, error)
	GetFacility(ctx context.Context, id string) (models.Facility, error)
	AnchorPath(ctx context.Context, nodeID string) ([]hierarchy.Node, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

// Request asks to materialize one task and apply a mutation to it.
type Request struct {
	WorkItemID string `validate:"required,max=255"`
	Date       civil.Date
	Mutation   models.Mutation
	Actor      models.Actor
}

// Options configure a Service.
type Options struct {
	Now func() time.Time
}

// Service is the single write entry point for tasks.
type Service struct {
	log       *slog.Logger
	store     Store
	resolver  *schedule.Resolver
	publisher events.Publisher
	metrics   *metrics.Metrics
	validate  *validator.Validate
	now       func() time.Time
}

// NewService creates a materialization service. Publisher and metrics may be nil.
func NewService(
	log *slog.Logger,
	store Store,
	resolver *schedule.Resolver,
	publisher events.Publisher,
	m *metrics.Metrics,
	opts Options,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		log:       log,
		store:     store,
		resolver:  resolver,
		publisher: publisher,
		metrics:   m,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       opts.Now,
	}
}

// Materialize makes sure the task of (work item, date) exists, applies the
// mutation and returns the updated record. Concurrent calls for the same task
// converge on a single record. Nothing is written when an error is returned.
func (s *Service) Materialize(ctx context.Context, req Request) (models.Task, error) {
	task, err := s.materialize(ctx, req)
	if s.metrics != nil {
		s.metrics.Materializations.WithLabelValues(string(req.Mutation.Kind), outcome(err)).Inc()
	}
	return task, err
}

func (s *Service) materialize(ctx context.Context, req Request) (models.Task, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return models.Task{}, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	if !req.Date.IsValid() {
		return models.Task{}, fmt.Errorf("%w: invalid date %v", models.ErrValidation, req.Date)
	}

	id := models.NewTaskID(req.WorkItemID, req.Date).String()
	log := s.log.With("task_id", id, "mutation", req.Mutation.Kind, "actor", req.Actor.ID)

	now := s.now()
	// The seed is only used when no record exists yet. A stored record is never
	// checked against the current schedule.
	seed, seedErr := s.seed(ctx, req, now)

	var (
		result models.Task
		prev   models.TaskStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		task, errTx := tx.GetTaskForUpdate(ctx, id)
		switch {
		case errors.Is(errTx, models.ErrNotFound):
			if seedErr != nil {
				return seedErr
			}
			if task, errTx = s.create(ctx, tx, seed, now, log); errTx != nil {
				return errTx
			}
		case errTx != nil:
			return errTx
		}

		facility, errTx := tx.GetFacility(ctx, task.FacilityID)
		if errTx != nil {
			return errTx
		}

		prev = task.Status
		next, errTx := lifecycle.Apply(task.Status, req.Mutation, req.Actor)
		if errTx != nil {
			return errTx
		}
		if errTx = lifecycle.CheckRequirements(facility.Requirements, req.Mutation); errTx != nil {
			return errTx
		}

		task = apply(task, next, req, now)
		if errTx = tx.UpdateTask(ctx, task); errTx != nil {
			return errTx
		}
		if req.Mutation.Kind == models.MutationComment {
			errTx = tx.AddComment(ctx, models.Comment{
				ID:        uuid.NewString(),
				TaskID:    task.ID,
				ActorID:   req.Actor.ID,
				ActorRole: req.Actor.Role,
				Body:      req.Mutation.Comment,
				CreatedAt: now,
			})
			if errTx != nil {
				return errTx
			}
		}
		errTx = tx.AppendAudit(ctx, models.AuditEntry{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			ActorID:    req.Actor.ID,
			ActorRole:  req.Actor.Role,
			Action:     req.Mutation.Kind,
			PrevStatus: prev,
			NewStatus:  next,
			CreatedAt:  now,
		})
		if errTx != nil {
			return errTx
		}

		if task.Comments, errTx = tx.ListComments(ctx, task.ID); errTx != nil {
			return errTx
		}
		result = task

		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	log.InfoContext(ctx, "Task mutated", "prev_status", prev, "status", result.Status)
	if s.publisher != nil {
		s.publisher.Publish(events.Event{
			Type:       events.TypeFor(req.Mutation.Kind),
			Task:       result,
			Actor:      req.Actor,
			PrevStatus: prev,
			Comment:    req.Mutation.Comment,
			At:         now,
		})
	}

	return result, nil
}

// seed computes the record of a task that has not been materialized yet. Only
// dates the projection would show for the work item are accepted.
func (s *Service) seed(ctx context.Context, req Request, now time.Time) (models.Task, error) {
	item, err := s.store.GetWorkItem(ctx, req.WorkItemID)
	if err != nil {
		return models.Task{}, err
	}
	if !item.ActiveOn(req.Date) {
		return models.Task{}, fmt.Errorf("work item %s is not active on %s: %w", item.ID, req.Date, models.ErrNotFound)
	}
	if !schedule.Occurs(item.Frequency, req.Date) {
		return models.Task{}, fmt.Errorf("work item %s does not fire on %s: %w", item.ID, req.Date, models.ErrNotFound)
	}

	path, err := s.store.AnchorPath(ctx, item.Anchor.NodeID)
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to load anchor of work item %s: %w", item.ID, err)
	}
	loc, err := hierarchy.NewTree(path).Resolve(item.Anchor)
	if err != nil {
		return models.Task{}, fmt.Errorf("work item %s anchor: %w: %w", item.ID, models.ErrNotFound, err)
	}

	facility, err := s.store.GetFacility(ctx, loc.FacilityID)
	if err != nil {
		return models.Task{}, err
	}
	window, err := s.resolver.WindowFor(facility, req.Date)
	if err != nil {
		return models.Task{}, err
	}
	if !window.WorkingDay {
		return models.Task{}, fmt.Errorf("%s is not a working day of facility %s: %w", req.Date, facility.ID, models.ErrNotFound)
	}

	return projection.Instance(item, loc, s.resolver.Location(facility).String(), req.Date, window, now), nil
}

// create inserts the seed record or, when another transaction won the race, reads the winner's record.
func (s *Service) create(
	ctx context.Context,
	tx repository.Tx,
	seed models.Task,
	now time.Time,
	log *slog.Logger,
) (models.Task, error) {
	checklist, err := tx.EnsureChecklist(ctx, seed.FacilityID, seed.Date)
	if err != nil {
		return models.Task{}, err
	}

	seed.ChecklistID = checklist.ID
	seed.Virtual = false
	seed.CreatedAt = now
	seed.UpdatedAt = now

	inserted, err := tx.InsertTask(ctx, seed)
	if err != nil {
		return models.Task{}, err
	}
	if !inserted {
		log.DebugContext(ctx, "Lost materialization race, using existing record")
		if s.metrics != nil {
			s.metrics.RaceResolutions.Inc()
		}
	}

	task, err := tx.GetTaskForUpdate(ctx, seed.ID)
	if err != nil {
		return models.Task{}, fmt.Errorf("%w: failed to re-read task %s: %w", models.ErrConflict, seed.ID, err)
	}

	return task, nil
}

func apply(task models.Task, next models.TaskStatus, req Request, now time.Time) models.Task {
	switch req.Mutation.Kind {
	case models.MutationBegin:
		if task.Status != models.StatusInProgress {
			task.StartedAt = &now
			task.StartedBy = req.Actor.ID
		}
	case models.MutationComplete:
		task.CompletedAt = &now
		task.CompletedBy = req.Actor.ID
		task.CompletionComment = req.Mutation.Comment
		task.Photos = append(slices.Clone(task.Photos), req.Mutation.Photos...)
	case models.MutationFail:
		task.CompletedAt = &now
		task.CompletedBy = req.Actor.ID
	}

	task.Status = next
	task.Virtual = false
	task.UpdatedAt = now

	return task
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
