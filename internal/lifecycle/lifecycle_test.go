package lifecycle_test

import (
	"testing"
	"time"

	"github.com/UnknownOlympus/custodian/internal/lifecycle"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	manager = models.Actor{ID: "u1", Role: models.RoleManager}
	system  = models.Actor{ID: "reconcile:overdue-sweep", Role: models.RoleSystem}
)

func TestDerive(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, loc)
	end := time.Date(2025, 3, 3, 18, 0, 0, 0, loc)

	at := func(hour, minute int) time.Time {
		return time.Date(2025, 3, 3, hour, minute, 0, 0, loc)
	}

	assert.Equal(t, models.StatusNew, lifecycle.Derive(start, end, at(8, 59)))
	assert.Equal(t, models.StatusAvailable, lifecycle.Derive(start, end, at(9, 0)))
	assert.Equal(t, models.StatusAvailable, lifecycle.Derive(start, end, at(18, 0)))
	assert.Equal(t, models.StatusOverdue, lifecycle.Derive(start, end, at(18, 1)))
	// same instant expressed in UTC
	assert.Equal(t, models.StatusAvailable, lifecycle.Derive(start, end, at(9, 0).UTC()))
}

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  models.TaskStatus
		mutation models.Mutation
		actor    models.Actor
		want     models.TaskStatus
		wantErr  error
	}{
		{"begin available", models.StatusAvailable, models.Mutation{Kind: models.MutationBegin}, manager, models.StatusInProgress, nil},
		{"begin overdue", models.StatusOverdue, models.Mutation{Kind: models.MutationBegin}, manager, models.StatusInProgress, nil},
		{"begin again", models.StatusInProgress, models.Mutation{Kind: models.MutationBegin}, manager, models.StatusInProgress, nil},
		{"begin new", models.StatusNew, models.Mutation{Kind: models.MutationBegin}, manager, models.StatusNew, models.ErrInvalidTransition},
		{"complete available", models.StatusAvailable, models.Mutation{Kind: models.MutationComplete}, manager, models.StatusCompleted, nil},
		{"complete in progress with photo", models.StatusInProgress, models.Mutation{Kind: models.MutationComplete, Photos: []string{"p"}}, manager, models.StatusCompletedWithPhoto, nil},
		{"complete overdue", models.StatusOverdue, models.Mutation{Kind: models.MutationComplete}, manager, models.StatusCompleted, nil},
		{"complete new", models.StatusNew, models.Mutation{Kind: models.MutationComplete}, manager, models.StatusNew, models.ErrInvalidTransition},
		{"complete completed", models.StatusCompleted, models.Mutation{Kind: models.MutationComplete}, manager, models.StatusCompleted, models.ErrInvalidTransition},
		{"begin failed", models.StatusFailed, models.Mutation{Kind: models.MutationBegin}, manager, models.StatusFailed, models.ErrInvalidTransition},
		{"comment terminal", models.StatusCompletedWithPhoto, models.Mutation{Kind: models.MutationComment, Comment: "ok"}, manager, models.StatusCompletedWithPhoto, nil},
		{"comment new", models.StatusNew, models.Mutation{Kind: models.MutationComment, Comment: "ok"}, manager, models.StatusNew, nil},
		{"fail overdue", models.StatusOverdue, models.Mutation{Kind: models.MutationFail}, system, models.StatusFailed, nil},
		{"fail by user", models.StatusOverdue, models.Mutation{Kind: models.MutationFail}, manager, models.StatusOverdue, models.ErrInvalidTransition},
		{"fail in progress", models.StatusInProgress, models.Mutation{Kind: models.MutationFail}, system, models.StatusInProgress, models.ErrInvalidTransition},
		{"fail completed", models.StatusCompleted, models.Mutation{Kind: models.MutationFail}, system, models.StatusCompleted, models.ErrInvalidTransition},
		{"unknown", models.StatusAvailable, models.Mutation{Kind: "teleport"}, manager, models.StatusAvailable, models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := lifecycle.Apply(tt.current, tt.mutation, tt.actor)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckRequirements(t *testing.T) {
	t.Parallel()
	photoRequired := models.CompletionRequirements{Photo: true}
	complete := models.Mutation{Kind: models.MutationComplete}

	t.Run("error - photo required but missing", func(t *testing.T) {
		t.Parallel()
		err := lifecycle.CheckRequirements(photoRequired, complete)

		require.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("success - photo provided", func(t *testing.T) {
		t.Parallel()
		withPhoto := complete
		withPhoto.Photos = []string{"https://photos/1.jpg"}

		require.NoError(t, lifecycle.CheckRequirements(photoRequired, withPhoto))
	})

	t.Run("error - not enough photos", func(t *testing.T) {
		t.Parallel()
		req := models.CompletionRequirements{Photo: true, MinPhotos: 2}
		withPhoto := complete
		withPhoto.Photos = []string{"https://photos/1.jpg"}

		require.ErrorIs(t, lifecycle.CheckRequirements(req, withPhoto), models.ErrValidation)
	})

	t.Run("error - comment required but blank", func(t *testing.T) {
		t.Parallel()
		req := models.CompletionRequirements{Comment: true}
		blank := complete
		blank.Comment = "   "

		require.ErrorIs(t, lifecycle.CheckRequirements(req, blank), models.ErrValidation)
	})

	t.Run("error - empty comment mutation", func(t *testing.T) {
		t.Parallel()
		err := lifecycle.CheckRequirements(models.CompletionRequirements{}, models.Mutation{Kind: models.MutationComment})

		require.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("success - begin ignores requirements", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, lifecycle.CheckRequirements(photoRequired, models.Mutation{Kind: models.MutationBegin}))
	})
}
