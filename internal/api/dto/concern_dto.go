package dto

import (
	"time"

	"github.com/spec-kit/concern-service/internal/domain"
)

// SubmitConcernRequest is the student submission payload.
type SubmitConcernRequest struct {
	DepartmentID string                       `json:"department_id"`
	FacilityID   *string                      `json:"facility_id,omitempty"`
	Subject      string                       `json:"subject"`
	Description  string                       `json:"description"`
	Attachments  []domain.AttachmentReference `json:"attachments,omitempty"`
}

// RejectConcernRequest carries the rejection reason.
type RejectConcernRequest struct {
	Reason string `json:"reason"`
}

// UpdateStatusRequest carries a handler-driven status change.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// ConfirmResolutionRequest carries the student's confirmation.
type ConfirmResolutionRequest struct {
	Notes  string `json:"notes,omitempty"`
	Rating *int   `json:"rating,omitempty"`
}

// DisputeResolutionRequest carries the student's dispute reason.
type DisputeResolutionRequest struct {
	Reason string `json:"reason"`
}

// AssignRequest carries a manual assignment target.
type AssignRequest struct {
	HandlerID string `json:"handler_id"`
}

// EscalateRequest carries an optional manual escalation reason.
type EscalateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ExecuteProposalRequest carries one rebalance proposal to execute.
type ExecuteProposalRequest struct {
	ConcernID string `json:"concern_id"`
	HandlerID string `json:"handler_id"`
}

// EmergencyRequest declares an emergency takeover.
type EmergencyRequest struct {
	Reason   string `json:"reason"`
	Priority string `json:"priority,omitempty"`
}

// ConcernSummary is the list-view projection of a concern.
type ConcernSummary struct {
	ID              string     `json:"id"`
	ReferenceNumber string     `json:"reference_number"`
	DepartmentID    string     `json:"department_id"`
	Subject         string     `json:"subject"`
	Category        string     `json:"category"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	EscalationLevel string     `json:"escalation_level"`
	AssignedTo      *string    `json:"assigned_to,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// ConcernDetail extends the summary with the full record and audit trail.
type ConcernDetail struct {
	ConcernSummary
	StudentID        string                       `json:"student_id"`
	FacilityID       *string                      `json:"facility_id,omitempty"`
	Description      string                       `json:"description"`
	EscalationReason string                       `json:"escalation_reason,omitempty"`
	Archived         bool                         `json:"archived"`
	Attachments      []domain.AttachmentReference `json:"attachments,omitempty"`
	ApprovedAt       *time.Time                   `json:"approved_at,omitempty"`
	AssignedAt       *time.Time                   `json:"assigned_at,omitempty"`
	EscalatedAt      *time.Time                   `json:"escalated_at,omitempty"`
	ConfirmedAt      *time.Time                   `json:"confirmed_at,omitempty"`
	DisputedAt       *time.Time                   `json:"disputed_at,omitempty"`
	History          []HistoryEntry               `json:"history,omitempty"`
}

// HistoryEntry is one audit trail record.
type HistoryEntry struct {
	ChangedByType string         `json:"changed_by_type"`
	ChangedByID   *string        `json:"changed_by_id,omitempty"`
	ChangeType    string         `json:"change_type"`
	OldValue      map[string]any `json:"old_value,omitempty"`
	NewValue      map[string]any `json:"new_value,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// PriorityAnalysisView echoes the classifier output on submission.
type PriorityAnalysisView struct {
	Priority       string  `json:"priority"`
	Category       string  `json:"category"`
	DepartmentHint string  `json:"department_hint,omitempty"`
	Sentiment      string  `json:"sentiment"`
	AutoEscalation bool    `json:"auto_escalation"`
	Confidence     float64 `json:"confidence"`
}

// AssignmentView describes the submission-time assignment outcome.
type AssignmentView struct {
	HandlerID       *string `json:"handler_id,omitempty"`
	CrossDepartment bool    `json:"cross_department"`
	NoAssignee      bool    `json:"no_assignee"`
	Reason          string  `json:"reason,omitempty"`
}

// SubmitConcernResponse is the submission result envelope.
type SubmitConcernResponse struct {
	Concern    ConcernSummary       `json:"concern"`
	Analysis   PriorityAnalysisView `json:"analysis"`
	Assignment AssignmentView       `json:"assignment"`
}
