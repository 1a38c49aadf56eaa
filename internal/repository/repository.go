// Package repository is the PostgreSQL storage of the catalog, checklists and
// materialized tasks.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the set of writes a single materialization or reconciliation step performs atomically.
// Both the PostgreSQL repository and the in-memory store implement it.
type Tx interface {
	// GetTaskForUpdate returns the materialized task with its row locked, or models.ErrNotFound.
	GetTaskForUpdate(ctx context.Context, id string) (models.Task, error)
	// GetFacility returns the facility a stored task belongs to, or models.ErrNotFound.
	GetFacility(ctx context.Context, id string) (models.Facility, error)
	// ListComments returns the comments of a task in insertion order.
	ListComments(ctx context.Context, taskID string) ([]models.Comment, error)
	// EnsureChecklist creates the checklist for (facility, date) unless it exists and returns it.
	EnsureChecklist(ctx context.Context, facilityID string, date civil.Date) (models.Checklist, error)
	// InsertTask inserts task unless a task with the same id exists. It reports whether a row was inserted.
	InsertTask(ctx context.Context, task models.Task) (bool, error)
	// UpdateTask persists the mutable fields of task.
	UpdateTask(ctx context.Context, task models.Task) error
	// AddComment appends a comment to a task.
	AddComment(ctx context.Context, comment models.Comment) error
	// AppendAudit appends an audit entry.
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
	// DeleteChecklist deletes an unheld checklist whose tasks are all terminal. It reports whether it was deleted.
	DeleteChecklist(ctx context.Context, id string) (bool, error)
}

// Repository implements storage on top of a PostgreSQL connection pool.
type Repository struct {
	log     *slog.Logger
	db      Database
	metrics *metrics.Metrics
}

// NewRepository creates a new instance of Repository with the provided Database.
// Metrics may be nil.
func NewRepository(log *slog.Logger, db Database, m *metrics.Metrics) *Repository {
	return &Repository{log: log, db: db, metrics: m}
}

// WithinTx runs fn inside a single database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}

	return nil
}

func (r *Repository) observe(queryType string, start time.Time) {
	if r.metrics != nil {
		r.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
	}
}

// mapError turns PostgreSQL concurrency failures into models.ErrConflict.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505": // serialization_failure, deadlock_detected, unique_violation
			return fmt.Errorf("%w: %w", models.ErrConflict, err)
		}
	}

	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func dateArg(date civil.Date) time.Time {
	return date.In(time.UTC)
}
