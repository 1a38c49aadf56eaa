package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/materialize"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/projection"
	"github.com/UnknownOlympus/custodian/internal/report"
	"github.com/go-chi/chi/v5"
)

// TaskView is the JSON form of a task.
type TaskView struct {
	ID                string        `json:"id"`
	WorkItemID        string        `json:"work_item_id"`
	Date              string        `json:"date"`
	FacilityID        string        `json:"facility_id"`
	FacilityName      string        `json:"facility_name"`
	ChecklistID       string        `json:"checklist_id,omitempty"`
	Name              string        `json:"name"`
	Description       string        `json:"description,omitempty"`
	WorkType          string        `json:"work_type,omitempty"`
	Location          string        `json:"location"`
	Timezone          string        `json:"timezone"`
	ScheduledStart    time.Time     `json:"scheduled_start"`
	ScheduledEnd      time.Time     `json:"scheduled_end"`
	Status            string        `json:"status"`
	Virtual           bool          `json:"virtual"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	StartedBy         string        `json:"started_by,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	CompletedBy       string        `json:"completed_by,omitempty"`
	CompletionComment string        `json:"completion_comment,omitempty"`
	Photos            []string      `json:"photos"`
	Comments          []CommentView `json:"comments,omitempty"`
}

// CommentView is the JSON form of a task comment.
type CommentView struct {
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskList is a page of projected tasks.
type TaskList struct {
	Total int        `json:"total"`
	Items []TaskView `json:"items"`
}

// MaterializeBody is the mutation request. Text is the body of a comment
// mutation; Comment is the completion comment.
type MaterializeBody struct {
	Kind    string   `json:"kind"`
	Comment string   `json:"comment"`
	Text    string   `json:"text"`
	Photos  []string `json:"photos"`
}

// NewTaskView renders a projected or materialized task for the API.
func NewTaskView(task models.Task) TaskView {
	view := TaskView{
		ID:                task.ID,
		WorkItemID:        task.WorkItemID,
		Date:              task.Date.String(),
		FacilityID:        task.FacilityID,
		FacilityName:      task.FacilityName,
		ChecklistID:       task.ChecklistID,
		Name:              task.Name,
		Description:       task.Description,
		WorkType:          task.WorkType,
		Location:          task.Location,
		Timezone:          task.Timezone,
		ScheduledStart:    task.ScheduledStart,
		ScheduledEnd:      task.ScheduledEnd,
		Status:            string(task.Status),
		Virtual:           task.Virtual,
		StartedAt:         task.StartedAt,
		StartedBy:         task.StartedBy,
		CompletedAt:       task.CompletedAt,
		CompletedBy:       task.CompletedBy,
		CompletionComment: task.CompletionComment,
		Photos:            task.Photos,
	}
	if view.Photos == nil {
		view.Photos = []string{}
	}
	for _, comment := range task.Comments {
		view.Comments = append(view.Comments, CommentView{
			ActorID:   comment.ActorID,
			ActorRole: string(comment.ActorRole),
			Body:      comment.Body,
			CreatedAt: comment.CreatedAt,
		})
	}
	return view
}

// ServeTasks returns the projection for ?from=&to=&facility=&assignee=, paginated.
// Managers only ever see their own facilities.
func (h *Handler) ServeTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.project(r)
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	page := TaskList{Total: len(tasks), Items: []TaskView{}}
	if offset < len(tasks) {
		end := min(offset+limit, len(tasks))
		for _, task := range tasks[offset:end] {
			page.Items = append(page.Items, NewTaskView(task))
		}
	}

	writeJSON(w, http.StatusOK, page)
}

// ServeExport returns the same projection as an xlsx workbook.
func (h *Handler) ServeExport(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.project(r)
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	start := time.Now()
	buffer, err := report.GenerateWorkbook(tasks, h.localizer, h.lang)
	if errors.Is(err, report.ErrNoTasks) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ReportGeneration.WithLabelValues("xlsx").Observe(time.Since(start).Seconds())
	}

	filename := fmt.Sprintf("tasks_%s_%s.xlsx",
		r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err = buffer.WriteTo(w); err != nil {
		h.log.ErrorContext(r.Context(), "Failed to write export", "error", err)
	}
}

// HandleMaterialize applies the body's mutation to the task named in the path.
func (h *Handler) HandleMaterialize(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	id, err := models.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	var body MaterializeBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err = decoder.Decode(&body); err != nil {
		writeError(h.log, w, r, fmt.Errorf("%w: malformed body: %w", models.ErrValidation, err))
		return
	}

	mutation := models.Mutation{
		Kind:    models.MutationKind(strings.ToLower(body.Kind)),
		Comment: body.Comment,
		Photos:  body.Photos,
	}
	if mutation.Kind == models.MutationComment && body.Text != "" {
		mutation.Comment = body.Text
	}
	if mutation.Kind == models.MutationFail {
		writeError(h.log, w, r, fmt.Errorf("%w: tasks are failed by the overdue sweep only", models.ErrValidation))
		return
	}

	task, err := h.materializer.Materialize(r.Context(), materialize.Request{
		WorkItemID: id.WorkItemID,
		Date:       id.Date,
		Mutation:   mutation,
		Actor:      actor,
	})
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, NewTaskView(task))
}

// project parses the range and scope of r and runs the projection.
func (h *Handler) project(r *http.Request) ([]models.Task, error) {
	actor, _ := ActorFromContext(r.Context())
	query := r.URL.Query()

	today := civil.DateOf(h.now())
	from, err := dateParam(query.Get("from"), today)
	if err != nil {
		return nil, err
	}
	to, err := dateParam(query.Get("to"), from)
	if err != nil {
		return nil, err
	}

	scope := projection.Scope{
		FacilityID: query.Get("facility"),
		AssigneeID: query.Get("assignee"),
	}
	if actor.Role == models.RoleManager {
		scope.AssigneeID = actor.ID
	}

	return h.projector.ProjectTasks(r.Context(), projection.DateRange{From: from, To: to}, scope)
}

func dateParam(raw string, fallback civil.Date) (civil.Date, error) {
	if raw == "" {
		return fallback, nil
	}
	date, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: invalid date %q", models.ErrValidation, raw)
	}
	return date, nil
}

func pageParams(r *http.Request) (int, int, error) {
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if limit <= 0 || limit > maxLimit || offset < 0 {
		return 0, 0, fmt.Errorf("%w: limit must be in 1..%d and offset not negative", models.ErrValidation, maxLimit)
	}
	return limit, offset, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrValidation, name)
	}
	return value, nil
}
