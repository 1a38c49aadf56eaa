package schedule_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type directory map[string]models.Facility

func (d directory) GetFacility(_ context.Context, id string) (models.Facility, error) {
	facility, ok := d[id]
	if !ok {
		return models.Facility{}, models.ErrNotFound
	}
	return facility, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveWindow(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	monday := civil.Date{Year: 2025, Month: 3, Day: 3}
	saturday := civil.Date{Year: 2025, Month: 3, Day: 8}

	dir := directory{
		"F1": {
			ID:           "F1",
			Timezone:     "Europe/Moscow",
			WorkingHours: &models.WorkingHours{Start: civil.Time{Hour: 9}, End: civil.Time{Hour: 18}},
		},
		"F2": {ID: "F2", Timezone: "UTC"},
		"F3": {
			ID:           "F3",
			Timezone:     "UTC",
			WorkingHours: &models.WorkingHours{Start: civil.Time{Hour: 18}, End: civil.Time{Hour: 9}},
		},
		"F4": {ID: "F4", Timezone: "Mars/Olympus_Mons", WorkingDays: []time.Weekday{time.Saturday}},
	}
	resolver := schedule.NewResolver(discardLogger(), dir, schedule.Options{DefaultTimezone: "UTC"})

	t.Run("success - working hours in facility timezone", func(t *testing.T) {
		t.Parallel()
		window, err := resolver.ResolveWindow(ctx, "F1", monday)

		require.NoError(t, err)
		assert.True(t, window.WorkingDay)
		assert.Equal(t, time.Date(2025, 3, 3, 6, 0, 0, 0, time.UTC), window.Start.UTC())
		assert.Equal(t, time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC), window.End.UTC())
	})

	t.Run("success - no hours means the whole day", func(t *testing.T) {
		t.Parallel()
		window, err := resolver.ResolveWindow(ctx, "F2", monday)

		require.NoError(t, err)
		assert.True(t, window.WorkingDay)
		assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), window.Start)
		assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), window.End)
	})

	t.Run("success - weekend is not a working day", func(t *testing.T) {
		t.Parallel()
		window, err := resolver.ResolveWindow(ctx, "F1", saturday)

		require.NoError(t, err)
		assert.False(t, window.WorkingDay)
		assert.True(t, window.Start.IsZero())
	})

	t.Run("success - custom working days with unknown timezone", func(t *testing.T) {
		t.Parallel()
		window, err := resolver.ResolveWindow(ctx, "F4", saturday)

		require.NoError(t, err)
		assert.True(t, window.WorkingDay)
		assert.Equal(t, time.UTC, window.Start.Location())

		window, err = resolver.ResolveWindow(ctx, "F4", monday)
		require.NoError(t, err)
		assert.False(t, window.WorkingDay)
	})

	t.Run("error - end before start", func(t *testing.T) {
		t.Parallel()
		_, err := resolver.ResolveWindow(ctx, "F3", monday)

		require.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("error - unknown facility", func(t *testing.T) {
		t.Parallel()
		_, err := resolver.ResolveWindow(ctx, "nope", monday)

		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("success - working hours required", func(t *testing.T) {
		t.Parallel()
		strict := schedule.NewResolver(discardLogger(), dir, schedule.Options{RequireWorkingHours: true})

		window, err := strict.ResolveWindow(ctx, "F2", monday)
		require.NoError(t, err)
		assert.False(t, window.WorkingDay)

		window, err = strict.ResolveWindow(ctx, "F1", monday)
		require.NoError(t, err)
		assert.True(t, window.WorkingDay)
	})
}
