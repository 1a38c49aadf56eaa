package models

// TaskStatus is the lifecycle state of a task, virtual or materialized.
type TaskStatus string

const (
	StatusNew                TaskStatus = "NEW"
	StatusAvailable          TaskStatus = "AVAILABLE"
	StatusInProgress         TaskStatus = "IN_PROGRESS"
	StatusOverdue            TaskStatus = "OVERDUE"
	StatusCompleted          TaskStatus = "COMPLETED"
	StatusCompletedWithPhoto TaskStatus = "COMPLETED_WITH_PHOTO"
	StatusFailed             TaskStatus = "FAILED"
)

// TerminalStatuses lists statuses that accept no further status transition.
func TerminalStatuses() []TaskStatus {
	return []TaskStatus{StatusCompleted, StatusCompletedWithPhoto, StatusFailed}
}

// IsTerminal reports whether no further status transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithPhoto, StatusFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNew, StatusAvailable, StatusInProgress, StatusOverdue,
		StatusCompleted, StatusCompletedWithPhoto, StatusFailed:
		return true
	default:
		return false
	}
}

// StatusStrings converts statuses to plain strings, e.g. for SQL array arguments.
func StatusStrings(statuses ...TaskStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
