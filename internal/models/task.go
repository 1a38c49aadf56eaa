package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// Role is the already-authenticated role of the caller.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDeputy  Role = "deputy"
	RoleManager Role = "manager"
	RoleSystem  Role = "system"
)

// Actor is whoever triggers a mutation: a person or a reconciliation job.
type Actor struct {
	ID   string `validate:"required"`
	Role Role   `validate:"required,oneof=admin deputy manager system"`
}

// IsAdministrative reports whether the actor may run administrative operations.
func (a Actor) IsAdministrative() bool {
	return a.Role == RoleAdmin || a.Role == RoleDeputy || a.Role == RoleSystem
}

// MutationKind is the user or system action that triggers materialization.
type MutationKind string

const (
	MutationBegin    MutationKind = "begin"
	MutationComplete MutationKind = "complete"
	MutationComment  MutationKind = "comment"
	MutationFail     MutationKind = "fail"
)

// Mutation is applied to a task right after it is materialized.
type Mutation struct {
	Kind    MutationKind `validate:"required,oneof=begin complete comment fail"`
	Comment string       `validate:"max=4000"`
	Photos  []string     `validate:"max=20,dive,required,max=2048"`
}

// Task is either a virtual instance computed on the fly or a materialized record.
type Task struct {
	ID                string
	WorkItemID        string
	Date              civil.Date
	FacilityID        string
	FacilityName      string
	ChecklistID       string // empty while virtual
	Name              string
	Description       string
	WorkType          string
	Location          string
	Timezone          string
	ScheduledStart    time.Time
	ScheduledEnd      time.Time
	Status            TaskStatus
	Virtual           bool
	StartedAt         *time.Time
	StartedBy         string
	CompletedAt       *time.Time
	CompletedBy       string
	CompletionComment string
	Photos            []string
	Comments          []Comment
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Comment is an annotation appended to a materialized task. It never changes status.
type Comment struct {
	ID        string
	TaskID    string
	ActorID   string
	ActorRole Role
	Body      string
	CreatedAt time.Time
}

// Checklist groups all materialized tasks of one facility on one date.
type Checklist struct {
	ID            string
	FacilityID    string
	Date          civil.Date
	RetentionHold bool
	CreatedAt     time.Time
}

// ChecklistSummary is a checklist with the number of tasks it owns.
type ChecklistSummary struct {
	Checklist
	TaskCount int
}

// AuditEntry records one successful mutation. Entries are append-only.
type AuditEntry struct {
	ID         string
	TaskID     string
	ActorID    string
	ActorRole  Role
	Action     MutationKind
	PrevStatus TaskStatus
	NewStatus  TaskStatus
	CreatedAt  time.Time
}
