package domain

import "time"

// CrossDepartmentType distinguishes planned rebalancing from emergencies.
type CrossDepartmentType string

const (
	CrossDepartmentNormal    CrossDepartmentType = "NORMAL"
	CrossDepartmentEmergency CrossDepartmentType = "EMERGENCY"
)

// CrossDepartmentStatus tracks the life of a cross-department loan.
type CrossDepartmentStatus string

const (
	CrossDepartmentActive    CrossDepartmentStatus = "ACTIVE"
	CrossDepartmentCompleted CrossDepartmentStatus = "COMPLETED"
)

// CrossDepartmentAssignment links a concern to a handler outside its
// owning department. Append-only except for the single completion mutation.
type CrossDepartmentAssignment struct {
	ID                    string
	ConcernID             string
	RequestingDepartment  string
	HandlerID             string
	HandlerDepartment     *string
	AssignmentType        CrossDepartmentType
	Status                CrossDepartmentStatus
	EstimatedDuration     time.Duration
	ActualDuration        *time.Duration
	CreatedAt             time.Time
	CompletedAt           *time.Time
}
