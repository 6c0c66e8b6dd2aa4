package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/spec-kit/concern-service/internal/domain"
)

// allowedTransitions is the legal status graph. Anything not listed is an
// invalid transition. PENDING -> IN_PROGRESS exists for assignment-driven
// moves (escalation forces IN_PROGRESS regardless of approval).
var allowedTransitions = map[domain.ConcernStatus][]domain.ConcernStatus{
	domain.ConcernStatusPending: {
		domain.ConcernStatusApproved,
		domain.ConcernStatusRejected,
		domain.ConcernStatusCancelled,
		domain.ConcernStatusInProgress,
	},
	domain.ConcernStatusApproved: {
		domain.ConcernStatusInProgress,
		domain.ConcernStatusCancelled,
	},
	domain.ConcernStatusInProgress: {
		domain.ConcernStatusStaffResolved,
		domain.ConcernStatusCancelled,
		domain.ConcernStatusClosed,
	},
	domain.ConcernStatusStaffResolved: {
		domain.ConcernStatusStudentConfirmed,
		domain.ConcernStatusDisputed,
		domain.ConcernStatusInProgress,
	},
	domain.ConcernStatusDisputed: {
		domain.ConcernStatusInProgress,
		domain.ConcernStatusClosed,
	},
}

func isValidTransition(current, next domain.ConcernStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// studentReservedTargets are transitions only the owning student may make,
// and only through ConfirmResolution / DisputeResolution.
func isStudentReservedTarget(status domain.ConcernStatus) bool {
	return status == domain.ConcernStatusStudentConfirmed || status == domain.ConcernStatusDisputed
}

// Capability checks. Each returns an explicit allow/deny with a reason so
// authorization lives in one place instead of per endpoint.

func canApprove(actor *domain.Handler, concern *domain.Concern) (bool, string) {
	if actor == nil || !actor.Active {
		return false, "handler required"
	}
	switch actor.Role {
	case domain.HandlerRoleAdmin:
		return true, ""
	case domain.HandlerRoleDepartmentHead:
		if actor.InDepartment(concern.DepartmentID) {
			return true, ""
		}
		return false, "department head of another department"
	}
	return false, "approval requires department head or admin"
}

func canReject(actor *domain.Handler, concern *domain.Concern) (bool, string) {
	return canApprove(actor, concern)
}

func canUpdateStatus(actor *domain.Handler, concern *domain.Concern) (bool, string) {
	if actor == nil || !actor.Active {
		return false, "handler required"
	}
	if actor.Role == domain.HandlerRoleAdmin {
		return true, ""
	}
	if actor.InDepartment(concern.DepartmentID) {
		return true, ""
	}
	if concern.AssignedTo != nil && *concern.AssignedTo == actor.ID {
		return true, ""
	}
	return false, "no access to this concern"
}

func canAssign(actor *domain.Handler, concern *domain.Concern) (bool, string) {
	if actor == nil || !actor.Active {
		return false, "handler required"
	}
	switch actor.Role {
	case domain.HandlerRoleAdmin:
		return true, ""
	case domain.HandlerRoleDepartmentHead:
		if actor.InDepartment(concern.DepartmentID) {
			return true, ""
		}
		return false, "department head of another department"
	}
	return false, "assignment requires department head or admin"
}

func canEscalate(actor *domain.Handler, concern *domain.Concern) (bool, string) {
	return canAssign(actor, concern)
}

func canConfirm(studentID string, concern *domain.Concern) (bool, string) {
	if concern.StudentID != studentID {
		return false, "only the owning student may confirm"
	}
	return true, ""
}

func canDispute(studentID string, concern *domain.Concern) (bool, string) {
	if concern.StudentID != studentID {
		return false, "only the owning student may dispute"
	}
	return true, ""
}

// ChatGateway is the external messaging collaborator. The orchestrator
// opens a channel on assignment/approval, closes it on confirmation, and
// reopens it on dispute; delivery guarantees belong to the collaborator.
type ChatGateway interface {
	Open(ctx context.Context, concern *domain.Concern, authorID string, message string) error
	Close(ctx context.Context, concernID string) error
	Reopen(ctx context.Context, concernID string) error
}

// ConcernLocks serializes state transitions per concern and assignment
// commits globally, so a concern is never concurrently assigned and
// escalated to different handlers and the capacity cap holds at commit.
type ConcernLocks struct {
	mu       sync.Mutex
	perID    map[string]*sync.Mutex
	assignMu sync.Mutex
}

// NewConcernLocks constructs the lock registry.
func NewConcernLocks() *ConcernLocks {
	return &ConcernLocks{perID: make(map[string]*sync.Mutex)}
}

// LockConcern acquires the per-concern mutex and returns its release func.
func (l *ConcernLocks) LockConcern(id string) func() {
	l.mu.Lock()
	m, ok := l.perID[id]
	if !ok {
		m = &sync.Mutex{}
		l.perID[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// LockAssignments serializes handler selection plus commit so the
// commit-time workload re-check cannot race another assignment.
func (l *ConcernLocks) LockAssignments() func() {
	l.assignMu.Lock()
	return l.assignMu.Unlock
}

func escalationReason(elapsedHours float64, level domain.EscalationLevel) string {
	return fmt.Sprintf("no resolution after %.1f hours, escalated to %s", elapsedHours, level)
}
