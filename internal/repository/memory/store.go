// Package memory is an in-process implementation of the task storage used for
// local runs and tests. A transaction holds the task lock for its whole
// duration and restores a snapshot when it fails. Catalog reads take a
// separate lock, so they are allowed inside a transaction.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/hierarchy"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/repository"
	"github.com/google/uuid"
)

const maxPathDepth = 32

type checklistKey struct {
	facilityID string
	date       civil.Date
}

// Store keeps the catalog, checklists, tasks, comments and audit trail in memory.
type Store struct {
	catalogMu  sync.RWMutex
	facilities map[string]models.Facility
	nodes      map[string]hierarchy.Node
	workItems  map[string]models.RecurringWorkItem

	mu         sync.RWMutex
	checklists map[string]models.Checklist
	byDay      map[checklistKey]string
	tasks      map[string]models.Task
	comments   map[string][]models.Comment
	audit      []models.AuditEntry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		facilities: make(map[string]models.Facility),
		nodes:      make(map[string]hierarchy.Node),
		workItems:  make(map[string]models.RecurringWorkItem),
		checklists: make(map[string]models.Checklist),
		byDay:      make(map[checklistKey]string),
		tasks:      make(map[string]models.Task),
		comments:   make(map[string][]models.Comment),
	}
}

// AddFacility inserts or replaces a facility.
func (s *Store) AddFacility(facility models.Facility) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.facilities[facility.ID] = facility
}

// AddNode inserts or replaces a hierarchy node.
func (s *Store) AddNode(node hierarchy.Node) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.nodes[node.ID] = node
}

// RemoveNode deletes a hierarchy node without touching its children.
func (s *Store) RemoveNode(id string) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	delete(s.nodes, id)
}

// AddWorkItem inserts or replaces a catalog entry.
func (s *Store) AddWorkItem(item models.RecurringWorkItem) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.workItems[item.ID] = item
}

// SetRetentionHold flags a checklist so retention cleanup keeps it.
func (s *Store) SetRetentionHold(checklistID string, hold bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	checklist, ok := s.checklists[checklistID]
	if !ok {
		return fmt.Errorf("checklist %s: %w", checklistID, models.ErrNotFound)
	}
	checklist.RetentionHold = hold
	s.checklists[checklistID] = checklist

	return nil
}

// Checklists returns all checklists ordered by date.
func (s *Store) Checklists() []models.Checklist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Collect(maps.Values(s.checklists))
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AuditEntries returns a copy of the audit trail in append order.
func (s *Store) AuditEntries() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audit)
}

// GetTask returns a materialized task with its comments.
func (s *Store) GetTask(_ context.Context, id string) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	task.Comments = slices.Clone(s.comments[id])
	return task, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) ListFacilities(context.Context) ([]models.Facility, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	out := slices.Collect(maps.Values(s.facilities))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetFacility(_ context.Context, id string) (models.Facility, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	facility, ok := s.facilities[id]
	if !ok {
		return models.Facility{}, fmt.Errorf("facility %s: %w", id, models.ErrNotFound)
	}
	return facility, nil
}

func (s *Store) ListNodes(context.Context) ([]hierarchy.Node, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return slices.Collect(maps.Values(s.nodes)), nil
}

func (s *Store) AnchorPath(_ context.Context, nodeID string) ([]hierarchy.Node, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	var path []hierarchy.Node
	for id := nodeID; id != "" && len(path) < maxPathDepth; {
		node, ok := s.nodes[id]
		if !ok {
			break
		}
		path = append(path, node)
		id = node.ParentID
	}
	slices.Reverse(path)

	return path, nil
}

func (s *Store) ListWorkItems(context.Context) ([]models.RecurringWorkItem, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	out := slices.Collect(maps.Values(s.workItems))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetWorkItem(_ context.Context, id string) (models.RecurringWorkItem, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	item, ok := s.workItems[id]
	if !ok {
		return models.RecurringWorkItem{}, fmt.Errorf("work item %s: %w", id, models.ErrNotFound)
	}
	return item, nil
}

func (s *Store) ListTasks(_ context.Context, from, to civil.Date, facilityIDs []string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, task := range s.tasks {
		if task.Date.Before(from) || task.Date.After(to) {
			continue
		}
		if facilityIDs != nil && !slices.Contains(facilityIDs, task.FacilityID) {
			continue
		}
		task.Comments = slices.Clone(s.comments[task.ID])
		out = append(out, task)
	}
	sortTasks(out)

	return out, nil
}

func (s *Store) ListOverdueCandidates(
	_ context.Context,
	statuses []models.TaskStatus,
	cutoff time.Time,
) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, task := range s.tasks {
		if slices.Contains(statuses, task.Status) && task.ScheduledEnd.Before(cutoff) {
			out = append(out, task)
		}
	}
	sortTasks(out)

	return out, nil
}

func (s *Store) ListExpiredChecklists(_ context.Context, horizon civil.Date) ([]models.ChecklistSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ChecklistSummary
	for _, checklist := range s.checklists {
		if !checklist.Date.Before(horizon) || checklist.RetentionHold {
			continue
		}
		count, open := s.checklistTasks(checklist.ID)
		if open > 0 {
			continue
		}
		out = append(out, models.ChecklistSummary{Checklist: checklist, TaskCount: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

// WithinTx runs fn while holding the store lock. Changes are discarded when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}

	return nil
}

// checklistTasks counts all and non-terminal tasks of a checklist. Callers hold the lock.
func (s *Store) checklistTasks(checklistID string) (int, int) {
	var count, open int
	for _, task := range s.tasks {
		if task.ChecklistID != checklistID {
			continue
		}
		count++
		if !task.Status.IsTerminal() {
			open++
		}
	}
	return count, open
}

type snapshot struct {
	checklists map[string]models.Checklist
	byDay      map[checklistKey]string
	tasks      map[string]models.Task
	comments   map[string][]models.Comment
	audit      []models.AuditEntry
}

func (s *Store) snapshot() snapshot {
	comments := make(map[string][]models.Comment, len(s.comments))
	for id, list := range s.comments {
		comments[id] = slices.Clone(list)
	}
	return snapshot{
		checklists: maps.Clone(s.checklists),
		byDay:      maps.Clone(s.byDay),
		tasks:      maps.Clone(s.tasks),
		comments:   comments,
		audit:      slices.Clone(s.audit),
	}
}

func (s *Store) restore(snap snapshot) {
	s.checklists = snap.checklists
	s.byDay = snap.byDay
	s.tasks = snap.tasks
	s.comments = snap.comments
	s.audit = snap.audit
}

func sortTasks(tasks []models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].ScheduledStart.Equal(tasks[j].ScheduledStart) {
			return tasks[i].ScheduledStart.Before(tasks[j].ScheduledStart)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// memTx implements repository.Tx. The task lock is already held.
type memTx struct {
	s *Store
}

func (t *memTx) GetTaskForUpdate(_ context.Context, id string) (models.Task, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return models.Task{}, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	task.Photos = slices.Clone(task.Photos)
	return task, nil
}

func (t *memTx) GetFacility(ctx context.Context, id string) (models.Facility, error) {
	return t.s.GetFacility(ctx, id)
}

func (t *memTx) ListComments(_ context.Context, taskID string) ([]models.Comment, error) {
	return slices.Clone(t.s.comments[taskID]), nil
}

func (t *memTx) EnsureChecklist(_ context.Context, facilityID string, date civil.Date) (models.Checklist, error) {
	key := checklistKey{facilityID: facilityID, date: date}
	if id, ok := t.s.byDay[key]; ok {
		return t.s.checklists[id], nil
	}

	checklist := models.Checklist{
		ID:         uuid.NewString(),
		FacilityID: facilityID,
		Date:       date,
		CreatedAt:  time.Now(),
	}
	t.s.checklists[checklist.ID] = checklist
	t.s.byDay[key] = checklist.ID

	return checklist, nil
}

func (t *memTx) InsertTask(_ context.Context, task models.Task) (bool, error) {
	if _, ok := t.s.tasks[task.ID]; ok {
		return false, nil
	}
	if _, ok := t.s.checklists[task.ChecklistID]; !ok {
		return false, fmt.Errorf("checklist %s: %w", task.ChecklistID, models.ErrNotFound)
	}

	task.Virtual = false
	task.Comments = nil
	task.Photos = slices.Clone(task.Photos)
	t.s.tasks[task.ID] = task

	return true, nil
}

func (t *memTx) UpdateTask(_ context.Context, task models.Task) error {
	current, ok := t.s.tasks[task.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, models.ErrNotFound)
	}

	current.Status = task.Status
	current.StartedAt = task.StartedAt
	current.StartedBy = task.StartedBy
	current.CompletedAt = task.CompletedAt
	current.CompletedBy = task.CompletedBy
	current.CompletionComment = task.CompletionComment
	current.Photos = slices.Clone(task.Photos)
	current.UpdatedAt = task.UpdatedAt
	t.s.tasks[task.ID] = current

	return nil
}

func (t *memTx) AddComment(_ context.Context, comment models.Comment) error {
	if _, ok := t.s.tasks[comment.TaskID]; !ok {
		return fmt.Errorf("task %s: %w", comment.TaskID, models.ErrNotFound)
	}
	t.s.comments[comment.TaskID] = append(t.s.comments[comment.TaskID], comment)
	return nil
}

func (t *memTx) AppendAudit(_ context.Context, entry models.AuditEntry) error {
	t.s.audit = append(t.s.audit, entry)
	return nil
}

func (t *memTx) DeleteChecklist(_ context.Context, id string) (bool, error) {
	checklist, ok := t.s.checklists[id]
	if !ok || checklist.RetentionHold {
		return false, nil
	}
	if _, open := t.s.checklistTasks(id); open > 0 {
		return false, nil
	}

	for taskID, task := range t.s.tasks {
		if task.ChecklistID == id {
			delete(t.s.tasks, taskID)
			delete(t.s.comments, taskID)
		}
	}
	delete(t.s.checklists, id)
	delete(t.s.byDay, checklistKey{facilityID: checklist.FacilityID, date: checklist.Date})

	return true, nil
}
