package domain

import "time"

// ActorType indicates who performed a recorded change.
type ActorType string

const (
	ActorTypeStudent ActorType = "STUDENT"
	ActorTypeHandler ActorType = "HANDLER"
	ActorTypeSystem  ActorType = "SYSTEM"
)

// ConcernChangeType captures what changed in a history entry.
type ConcernChangeType string

const (
	ChangeTypeStatus     ConcernChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee   ConcernChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority   ConcernChangeType = "PRIORITY_CHANGE"
	ChangeTypeEscalation ConcernChangeType = "ESCALATION"
	ChangeTypeResolution ConcernChangeType = "RESOLUTION"
	ChangeTypeDispute    ConcernChangeType = "DISPUTE"
)

// ConcernHistory is an immutable audit trail entry.
type ConcernHistory struct {
	ID            string
	ConcernID     string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    ConcernChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
