package events

import (
	"time"

	"github.com/spec-kit/concern-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventConcernSubmitted     EventType = "concern_submitted"
	EventConcernApproved      EventType = "concern_approved"
	EventConcernRejected      EventType = "concern_rejected"
	EventConcernStatusChanged EventType = "concern_status_changed"
	EventConcernAssigned      EventType = "concern_assigned"
	EventConcernEscalated     EventType = "concern_escalated"
	EventConcernReminderSent  EventType = "concern_reminder_sent"
	EventResolutionConfirmed  EventType = "resolution_confirmed"
	EventResolutionDisputed   EventType = "resolution_disputed"
	EventEmergencyActivated   EventType = "emergency_activated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type      domain.ActorType `json:"type"`
	StudentID *string          `json:"student_id,omitempty"`
	HandlerID *string          `json:"handler_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ConcernID string      `json:"concern_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ConcernSubmittedPayload payload.
type ConcernSubmittedPayload struct {
	ReferenceNumber string                 `json:"reference_number"`
	DepartmentID    string                 `json:"department_id"`
	Priority        domain.ConcernPriority `json:"priority"`
	Category        string                 `json:"category"`
	Subject         string                 `json:"subject"`
	AutoEscalation  bool                   `json:"auto_escalation"`
}

// ConcernStatusChangedPayload payload.
type ConcernStatusChangedPayload struct {
	OldStatus domain.ConcernStatus `json:"old_status"`
	NewStatus domain.ConcernStatus `json:"new_status"`
	Note      string               `json:"note,omitempty"`
}

// ConcernAssignedPayload payload.
type ConcernAssignedPayload struct {
	HandlerID     *string `json:"handler_id,omitempty"`
	PrevHandlerID *string `json:"prev_handler_id,omitempty"`
	DepartmentID  string  `json:"department_id"`
	CrossDept     bool    `json:"cross_department"`
}

// ConcernEscalatedPayload payload.
type ConcernEscalatedPayload struct {
	Level         domain.EscalationLevel `json:"level"`
	Reason        string                 `json:"reason"`
	NewHandlerID  *string                `json:"new_handler_id,omitempty"`
	PrevHandlerID *string                `json:"prev_handler_id,omitempty"`
}

// ConcernReminderPayload payload.
type ConcernReminderPayload struct {
	HandlerID    string  `json:"handler_id"`
	ElapsedHours float64 `json:"elapsed_hours"`
}

// ResolutionConfirmedPayload payload.
type ResolutionConfirmedPayload struct {
	Rating *int   `json:"rating,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// ResolutionDisputedPayload payload.
type ResolutionDisputedPayload struct {
	Reason string `json:"reason"`
}

// EmergencyActivatedPayload payload.
type EmergencyActivatedPayload struct {
	HandlerID string                 `json:"handler_id"`
	Priority  domain.ConcernPriority `json:"priority"`
	Reason    string                 `json:"reason"`
}
