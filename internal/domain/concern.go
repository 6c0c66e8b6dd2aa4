package domain

import "time"

// ConcernStatus enumerates lifecycle states for concerns.
type ConcernStatus string

const (
	ConcernStatusPending          ConcernStatus = "PENDING"
	ConcernStatusApproved         ConcernStatus = "APPROVED"
	ConcernStatusRejected         ConcernStatus = "REJECTED"
	ConcernStatusCancelled        ConcernStatus = "CANCELLED"
	ConcernStatusInProgress       ConcernStatus = "IN_PROGRESS"
	ConcernStatusStaffResolved    ConcernStatus = "STAFF_RESOLVED"
	ConcernStatusStudentConfirmed ConcernStatus = "STUDENT_CONFIRMED"
	ConcernStatusDisputed         ConcernStatus = "DISPUTED"
	ConcernStatusClosed           ConcernStatus = "CLOSED"
)

// IsTerminal reports whether no further transitions are legal from s.
func (s ConcernStatus) IsTerminal() bool {
	switch s {
	case ConcernStatusStudentConfirmed, ConcernStatusClosed, ConcernStatusRejected, ConcernStatusCancelled:
		return true
	}
	return false
}

// ConcernPriority enumerates SLA urgency.
type ConcernPriority string

const (
	ConcernPriorityLow    ConcernPriority = "LOW"
	ConcernPriorityMedium ConcernPriority = "MEDIUM"
	ConcernPriorityHigh   ConcernPriority = "HIGH"
	ConcernPriorityUrgent ConcernPriority = "URGENT"
)

// EscalationLevel is the authority tier a concern has been raised to.
type EscalationLevel string

const (
	EscalationNone           EscalationLevel = "NONE"
	EscalationStaff          EscalationLevel = "STAFF"
	EscalationDepartmentHead EscalationLevel = "DEPARTMENT_HEAD"
	EscalationAdmin          EscalationLevel = "ADMIN"
)

// Rank orders levels so threshold comparisons stay explicit.
func (l EscalationLevel) Rank() int {
	switch l {
	case EscalationStaff:
		return 1
	case EscalationDepartmentHead:
		return 2
	case EscalationAdmin:
		return 3
	}
	return 0
}

// AttachmentReference stores metadata for blobs submitted with a concern.
type AttachmentReference struct {
	StorageKey string    `json:"storage_key"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Concern is the aggregate for student support requests.
type Concern struct {
	ID               string
	ReferenceNumber  string
	StudentID        string
	DepartmentID     string
	FacilityID       *string
	AssignedTo       *string
	ApprovedBy       *string
	Subject          string
	Description      string
	Category         string
	Priority         ConcernPriority
	Status           ConcernStatus
	EscalationLevel  EscalationLevel
	EscalationReason string
	Archived         bool
	Attachments      []AttachmentReference
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ApprovedAt       *time.Time
	RejectedAt       *time.Time
	AssignedAt       *time.Time
	ResolvedAt       *time.Time
	ConfirmedAt      *time.Time
	DisputedAt       *time.Time
	ClosedAt         *time.Time
	EscalatedAt      *time.Time
	ArchivedAt       *time.Time
	LastReminderAt   *time.Time
}

// Open reports whether the concern still counts toward handler workload.
func (c *Concern) Open() bool {
	return !c.Archived && !c.Status.IsTerminal()
}

// Confirmable reports whether the owning student may confirm or dispute.
func (c *Concern) Confirmable() bool {
	return c.Status == ConcernStatusStaffResolved
}
