// Package lifecycle is the task status state machine.
//
// Virtual tasks get their status from Derive. Materialized tasks only move
// through Apply and are never re-derived from their window.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/UnknownOlympus/custodian/internal/models"
)

// Derive computes the status of a virtual task at instant now for the inclusive window [start, end].
func Derive(start, end, now time.Time) models.TaskStatus {
	switch {
	case now.Before(start):
		return models.StatusNew
	case now.After(end):
		return models.StatusOverdue
	default:
		return models.StatusAvailable
	}
}

// Apply returns the status a task moves to when mutation is applied by actor.
// Comments never change status and are accepted in every state.
func Apply(current models.TaskStatus, mutation models.Mutation, actor models.Actor) (models.TaskStatus, error) {
	switch mutation.Kind {
	case models.MutationComment:
		return current, nil
	case models.MutationBegin:
		switch current {
		case models.StatusAvailable, models.StatusOverdue, models.StatusInProgress:
			return models.StatusInProgress, nil
		}
	case models.MutationComplete:
		switch current {
		case models.StatusAvailable, models.StatusInProgress, models.StatusOverdue:
			if len(mutation.Photos) > 0 {
				return models.StatusCompletedWithPhoto, nil
			}
			return models.StatusCompleted, nil
		}
	case models.MutationFail:
		if actor.Role != models.RoleSystem {
			return current, fmt.Errorf("%w: only reconciliation may fail a task", models.ErrInvalidTransition)
		}
		if current == models.StatusOverdue {
			return models.StatusFailed, nil
		}
	default:
		return current, fmt.Errorf("%w: unknown mutation %q", models.ErrValidation, mutation.Kind)
	}

	return current, fmt.Errorf("%w: cannot %s a task in status %s", models.ErrInvalidTransition, mutation.Kind, current)
}

// CheckRequirements validates a mutation against facility completion rules.
// Comment mutations must always carry text.
func CheckRequirements(req models.CompletionRequirements, mutation models.Mutation) error {
	switch mutation.Kind {
	case models.MutationComment:
		if strings.TrimSpace(mutation.Comment) == "" {
			return fmt.Errorf("%w: comment text is required", models.ErrValidation)
		}
	case models.MutationComplete:
		if need := req.RequiredPhotos(); len(mutation.Photos) < need {
			return fmt.Errorf("%w: completion requires at least %d photo(s), got %d",
				models.ErrValidation, need, len(mutation.Photos))
		}
		if req.Comment && strings.TrimSpace(mutation.Comment) == "" {
			return fmt.Errorf("%w: completion requires a comment", models.ErrValidation)
		}
	}

	return nil
}
