package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListTasks returns materialized tasks dated within [from, to]. A nil facilityIDs
// means every facility.
func (r *Repository) ListTasks(
	ctx context.Context,
	from, to civil.Date,
	facilityIDs []string,
) ([]models.Task, error) {
	defer r.observe("list_tasks", time.Now())

	tasks, err := r.queryTasks(ctx, ListTasksSQL, dateArg(from), dateArg(to), facilityIDs)
	if err != nil || len(tasks) == 0 {
		return tasks, err
	}

	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	rows, err := r.db.Query(ctx, ListTaskCommentsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	comments, err := scanComments(rows)
	if err != nil {
		return nil, err
	}

	byTask := make(map[string][]models.Comment)
	for _, comment := range comments {
		byTask[comment.TaskID] = append(byTask[comment.TaskID], comment)
	}
	for i := range tasks {
		tasks[i].Comments = byTask[tasks[i].ID]
	}

	return tasks, nil
}

// ListOverdueCandidates returns tasks in one of statuses whose window ended before cutoff.
func (r *Repository) ListOverdueCandidates(
	ctx context.Context,
	statuses []models.TaskStatus,
	cutoff time.Time,
) ([]models.Task, error) {
	defer r.observe("list_overdue_candidates", time.Now())

	return r.queryTasks(ctx, ListOverdueCandidatesSQL, models.StatusStrings(statuses...), cutoff)
}

// ListExpiredChecklists returns unheld checklists dated before horizon whose tasks are all terminal.
func (r *Repository) ListExpiredChecklists(ctx context.Context, horizon civil.Date) ([]models.ChecklistSummary, error) {
	defer r.observe("list_expired_checklists", time.Now())

	rows, err := r.db.Query(ctx, ListExpiredChecklistsSQL,
		dateArg(horizon), models.StatusStrings(models.TerminalStatuses()...))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired checklists: %w", err)
	}
	defer rows.Close()

	var summaries []models.ChecklistSummary
	for rows.Next() {
		var summary models.ChecklistSummary
		var date time.Time
		errScan := rows.Scan(
			&summary.ID, &summary.FacilityID, &date, &summary.RetentionHold, &summary.CreatedAt, &summary.TaskCount,
		)
		if errScan != nil {
			return nil, fmt.Errorf("failed to scan checklist row: %w", errScan)
		}
		summary.Date = civil.DateOf(date)
		summaries = append(summaries, summary)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checklist rows: %w", err)
	}

	return summaries, nil
}

func (r *Repository) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, errScan := scanTask(rows)
		if errScan != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", errScan)
		}
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task rows: %w", err)
	}

	return tasks, nil
}

func scanTask(row scanner) (models.Task, error) {
	var (
		task   models.Task
		date   time.Time
		status string
	)

	err := row.Scan(
		&task.ID, &task.WorkItemID, &date, &task.ChecklistID, &task.FacilityID, &task.FacilityName,
		&task.Name, &task.Description, &task.WorkType, &task.Location, &task.Timezone,
		&task.ScheduledStart, &task.ScheduledEnd, &status,
		&task.StartedAt, &task.StartedBy, &task.CompletedAt, &task.CompletedBy, &task.CompletionComment, &task.Photos,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return models.Task{}, err
	}

	task.Date = civil.DateOf(date)
	task.Status = models.TaskStatus(status)

	return task, nil
}

// pgTx implements Tx on an open pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetTaskForUpdate(ctx context.Context, id string) (models.Task, error) {
	task, err := scanTask(t.tx.QueryRow(ctx, GetTaskForUpdateSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to lock task %s: %w", id, mapError(err))
	}

	return task, nil
}

func (t *pgTx) GetFacility(ctx context.Context, id string) (models.Facility, error) {
	facility, err := scanFacility(t.tx.QueryRow(ctx, GetFacilitySQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Facility{}, fmt.Errorf("facility %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Facility{}, fmt.Errorf("failed to get facility %s: %w", id, mapError(err))
	}

	return facility, nil
}

func (t *pgTx) ListComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	rows, err := t.tx.Query(ctx, ListCommentsSQL, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}

	return scanComments(rows)
}

// scanComments reads and closes rows of task_comments.
func scanComments(rows pgx.Rows) ([]models.Comment, error) {
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var comment models.Comment
		var role string
		errScan := rows.Scan(&comment.ID, &comment.TaskID, &comment.ActorID, &role, &comment.Body, &comment.CreatedAt)
		if errScan != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", errScan)
		}
		comment.ActorRole = models.Role(role)
		comments = append(comments, comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read comment rows: %w", err)
	}

	return comments, nil
}

func (t *pgTx) EnsureChecklist(ctx context.Context, facilityID string, date civil.Date) (models.Checklist, error) {
	_, err := t.tx.Exec(ctx, EnsureChecklistSQL, uuid.NewString(), facilityID, dateArg(date), time.Now())
	if err != nil {
		return models.Checklist{}, fmt.Errorf("failed to create checklist: %w", mapError(err))
	}

	var checklist models.Checklist
	var checklistDate time.Time
	err = t.tx.QueryRow(ctx, GetChecklistSQL, facilityID, dateArg(date)).Scan(
		&checklist.ID, &checklist.FacilityID, &checklistDate, &checklist.RetentionHold, &checklist.CreatedAt,
	)
	if err != nil {
		return models.Checklist{}, fmt.Errorf("failed to read checklist: %w", mapError(err))
	}
	checklist.Date = civil.DateOf(checklistDate)

	return checklist, nil
}

func (t *pgTx) InsertTask(ctx context.Context, task models.Task) (bool, error) {
	photos := task.Photos
	if photos == nil {
		photos = []string{}
	}

	tag, err := t.tx.Exec(ctx, InsertTaskSQL,
		task.ID, task.WorkItemID, dateArg(task.Date), task.ChecklistID, task.FacilityID, task.FacilityName,
		task.Name, task.Description, task.WorkType, task.Location, task.Timezone,
		task.ScheduledStart, task.ScheduledEnd, string(task.Status),
		task.StartedAt, task.StartedBy, task.CompletedAt, task.CompletedBy, task.CompletionComment, photos,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert task %s: %w", task.ID, mapError(err))
	}

	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) UpdateTask(ctx context.Context, task models.Task) error {
	photos := task.Photos
	if photos == nil {
		photos = []string{}
	}

	tag, err := t.tx.Exec(ctx, UpdateTaskSQL,
		task.ID, string(task.Status), task.StartedAt, task.StartedBy,
		task.CompletedAt, task.CompletedBy, task.CompletionComment, photos, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", task.ID, models.ErrNotFound)
	}

	return nil
}

func (t *pgTx) AddComment(ctx context.Context, comment models.Comment) error {
	_, err := t.tx.Exec(ctx, InsertCommentSQL,
		comment.ID, comment.TaskID, comment.ActorID, string(comment.ActorRole), comment.Body, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add comment to task %s: %w", comment.TaskID, mapError(err))
	}

	return nil
}

func (t *pgTx) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	_, err := t.tx.Exec(ctx, InsertAuditSQL,
		entry.ID, entry.TaskID, entry.ActorID, string(entry.ActorRole), string(entry.Action),
		string(entry.PrevStatus), string(entry.NewStatus), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry for task %s: %w", entry.TaskID, mapError(err))
	}

	return nil
}

func (t *pgTx) DeleteChecklist(ctx context.Context, id string) (bool, error) {
	tag, err := t.tx.Exec(ctx, DeleteChecklistSQL, id, models.StatusStrings(models.TerminalStatuses()...))
	if err != nil {
		return false, fmt.Errorf("failed to delete checklist %s: %w", id, mapError(err))
	}

	return tag.RowsAffected() == 1, nil
}
