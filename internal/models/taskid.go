package models

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// dateSuffixLen is the width of the ISO calendar date suffix, "2006-01-02".
const dateSuffixLen = 10

// TaskID is the deterministic identity of a task: one recurring work item on one calendar date.
// Projection and materialization derive it independently and always agree.
//
// The external form is "<workItemID>-<YYYY-MM-DD>". The date suffix has a fixed width,
// so parsing from the right is unambiguous even when the work item id itself contains dashes,
// and two different (workItemID, date) pairs never encode to the same string.
type TaskID struct {
	WorkItemID string
	Date       civil.Date
}

// NewTaskID builds the identity for a work item on a date.
func NewTaskID(workItemID string, date civil.Date) TaskID {
	return TaskID{WorkItemID: workItemID, Date: date}
}

// String returns the external identifier.
func (id TaskID) String() string {
	return id.WorkItemID + "-" + id.Date.String()
}

// ParseTaskID decodes an external identifier produced by TaskID.String.
func ParseTaskID(raw string) (TaskID, error) {
	const minLen = dateSuffixLen + 2 // at least one id character and the separator
	if len(raw) < minLen {
		return TaskID{}, fmt.Errorf("%w: task id %q is too short", ErrValidation, raw)
	}

	sep := len(raw) - dateSuffixLen - 1
	if raw[sep] != '-' {
		return TaskID{}, fmt.Errorf("%w: task id %q has no date suffix", ErrValidation, raw)
	}

	date, err := civil.ParseDate(raw[sep+1:])
	if err != nil {
		return TaskID{}, fmt.Errorf("%w: task id %q has invalid date: %w", ErrValidation, raw, err)
	}

	return TaskID{WorkItemID: raw[:sep], Date: date}, nil
}
