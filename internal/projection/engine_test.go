package projection_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/hierarchy"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/projection"
	"github.com/UnknownOlympus/custodian/internal/repository"
	"github.com/UnknownOlympus/custodian/internal/repository/memory"
	"github.com/UnknownOlympus/custodian/internal/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	thursday = civil.Date{Year: 2025, Month: 11, Day: 20}
	saturday = civil.Date{Year: 2025, Month: 11, Day: 22}
	moscow   = mustLocation("Europe/Moscow")
)

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore() *memory.Store {
	store := memory.New()
	store.AddFacility(models.Facility{
		ID:           "F1",
		Name:         "Pepsi plant",
		OwnerID:      "u1",
		Timezone:     "Europe/Moscow",
		WorkingHours: &models.WorkingHours{Start: civil.Time{Hour: 8}, End: civil.Time{Hour: 20}},
	})
	store.AddFacility(models.Facility{ID: "F2", Name: "Arena", OwnerID: "u2", Timezone: "Europe/Moscow"})
	store.AddNode(hierarchy.Node{ID: "F1", Kind: hierarchy.KindFacility, Name: "Pepsi plant"})
	store.AddNode(hierarchy.Node{ID: "F2", Kind: hierarchy.KindFacility, Name: "Arena"})
	store.AddNode(hierarchy.Node{ID: "R1", ParentID: "F1", Kind: hierarchy.KindRoom, Name: "Room 101"})
	store.AddNode(hierarchy.Node{ID: "R9", ParentID: "deleted", Kind: hierarchy.KindRoom, Name: "Lost room"})
	store.AddWorkItem(models.RecurringWorkItem{
		ID: "W1", Name: "Mop", Frequency: models.FrequencyDaily,
		Anchor: models.Anchor{Kind: models.AnchorFacility, NodeID: "F1"},
	})
	store.AddWorkItem(models.RecurringWorkItem{
		ID: "W2", Name: "Dust", Frequency: models.FrequencyDaily,
		Anchor: models.Anchor{Kind: models.AnchorRoom, NodeID: "R1"},
	})
	store.AddWorkItem(models.RecurringWorkItem{
		ID: "W3", Name: "Sweep", Frequency: models.FrequencyDaily,
		Anchor: models.Anchor{Kind: models.AnchorFacility, NodeID: "F2"},
	})
	store.AddWorkItem(models.RecurringWorkItem{
		ID: "W9", Name: "Orphan", Frequency: models.FrequencyDaily,
		Anchor: models.Anchor{Kind: models.AnchorRoom, NodeID: "R9"},
	})
	return store
}

func newEngine(store *memory.Store, now time.Time) *projection.Engine {
	resolver := schedule.NewResolver(discardLogger(), store, schedule.Options{DefaultTimezone: "UTC"})
	return projection.NewEngine(discardLogger(), store, resolver, metrics.NewMetrics(prometheus.NewRegistry()),
		projection.Options{Now: func() time.Time { return now }})
}

func atMoscow(hour, minute int) time.Time {
	return time.Date(2025, 11, 20, hour, minute, 0, 0, moscow)
}

func byID(tasks []models.Task) map[string]models.Task {
	out := make(map[string]models.Task, len(tasks))
	for _, task := range tasks {
		out[task.ID] = task
	}
	return out
}

func TestProjectTasks(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	day := projection.DateRange{From: thursday, To: thursday}
	w1 := models.NewTaskID("W1", thursday).String()

	t.Run("success - status follows the window", func(t *testing.T) {
		t.Parallel()
		store := newStore()

		cases := map[time.Time]models.TaskStatus{
			atMoscow(7, 0):  models.StatusNew,
			atMoscow(7, 59): models.StatusNew,
			atMoscow(8, 0):  models.StatusAvailable,
			atMoscow(10, 0): models.StatusAvailable,
			atMoscow(20, 1): models.StatusOverdue,
		}
		for now, want := range cases {
			tasks, err := newEngine(store, now).ProjectTasks(ctx, day, projection.Scope{FacilityID: "F1"})
			require.NoError(t, err)

			task, ok := byID(tasks)[w1]
			require.True(t, ok)
			assert.Equal(t, want, task.Status, now)
			assert.True(t, task.Virtual)
		}
	})

	t.Run("success - deterministic", func(t *testing.T) {
		t.Parallel()
		engine := newEngine(newStore(), atMoscow(10, 0))

		first, err := engine.ProjectTasks(ctx, day, projection.Scope{})
		require.NoError(t, err)
		second, err := engine.ProjectTasks(ctx, day, projection.Scope{})
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("success - orphans are skipped and rest is sorted", func(t *testing.T) {
		t.Parallel()
		tasks, err := newEngine(newStore(), atMoscow(10, 0)).ProjectTasks(ctx, day, projection.Scope{})

		require.NoError(t, err)
		ids := make([]string, 0, len(tasks))
		for _, task := range tasks {
			ids = append(ids, task.ID)
		}
		// F2 has no hours, so its window opens at midnight, before F1's 08:00.
		assert.Equal(t, []string{
			"W3-2025-11-20",
			"W2-2025-11-20",
			"W1-2025-11-20",
		}, ids)
		assert.Equal(t, "Room 101", byID(tasks)["W2-2025-11-20"].Location)
		assert.Equal(t, "Europe/Moscow", byID(tasks)["W2-2025-11-20"].Timezone)
	})

	t.Run("success - assignee scope", func(t *testing.T) {
		t.Parallel()
		tasks, err := newEngine(newStore(), atMoscow(10, 0)).ProjectTasks(ctx, day, projection.Scope{AssigneeID: "u2"})

		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "W3-2025-11-20", tasks[0].ID)

		tasks, err = newEngine(newStore(), atMoscow(10, 0)).ProjectTasks(ctx, day, projection.Scope{AssigneeID: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("success - weekend has no virtual tasks", func(t *testing.T) {
		t.Parallel()
		weekend := projection.DateRange{From: saturday, To: saturday.AddDays(1)}

		tasks, err := newEngine(newStore(), atMoscow(10, 0)).ProjectTasks(ctx, weekend, projection.Scope{})

		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("success - materialized wins", func(t *testing.T) {
		t.Parallel()
		store := newStore()
		completedAt := atMoscow(10, 5)
		materialize(t, store, models.Task{
			ID: w1, WorkItemID: "W1", Date: thursday, FacilityID: "F1", FacilityName: "Pepsi plant", Name: "Mop",
			ScheduledStart: atMoscow(8, 0), ScheduledEnd: atMoscow(20, 0),
			Status: models.StatusCompleted, CompletedAt: &completedAt, CompletedBy: "u1",
		})

		tasks, err := newEngine(store, atMoscow(21, 0)).ProjectTasks(ctx, day, projection.Scope{FacilityID: "F1"})

		require.NoError(t, err)
		task := byID(tasks)[w1]
		assert.Equal(t, models.StatusCompleted, task.Status)
		assert.False(t, task.Virtual)
		assert.Equal(t, models.StatusOverdue, byID(tasks)["W2-2025-11-20"].Status)
	})

	t.Run("success - materialized backlog on a non working day", func(t *testing.T) {
		t.Parallel()
		store := newStore()
		id := models.NewTaskID("W1", saturday).String()
		materialize(t, store, models.Task{
			ID: id, WorkItemID: "W1", Date: saturday, FacilityID: "F1", Name: "Mop",
			ScheduledStart: atMoscow(8, 0).AddDate(0, 0, 2), ScheduledEnd: atMoscow(20, 0).AddDate(0, 0, 2),
			Status: models.StatusInProgress,
		})

		tasks, err := newEngine(store, atMoscow(10, 0)).ProjectTasks(ctx,
			projection.DateRange{From: saturday, To: saturday}, projection.Scope{})

		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, id, tasks[0].ID)
	})

	t.Run("error - invalid range", func(t *testing.T) {
		t.Parallel()
		engine := newEngine(newStore(), atMoscow(10, 0))

		_, err := engine.ProjectTasks(ctx, projection.DateRange{From: saturday, To: thursday}, projection.Scope{})
		require.ErrorIs(t, err, models.ErrValidation)

		_, err = engine.ProjectTasks(ctx, projection.DateRange{From: thursday, To: thursday.AddDays(100)}, projection.Scope{})
		require.ErrorIs(t, err, models.ErrValidation)
	})
}

func materialize(t *testing.T, store *memory.Store, task models.Task) {
	t.Helper()
	err := store.WithinTx(t.Context(), func(ctx context.Context, tx repository.Tx) error {
		checklist, err := tx.EnsureChecklist(ctx, task.FacilityID, task.Date)
		if err != nil {
			return err
		}
		task.ChecklistID = checklist.ID
		_, err = tx.InsertTask(ctx, task)
		return err
	})
	require.NoError(t, err)
}
