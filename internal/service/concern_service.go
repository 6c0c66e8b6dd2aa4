package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/events"
	"github.com/spec-kit/concern-service/internal/persistence"
	"github.com/spec-kit/concern-service/internal/repository"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

const minReasonLength = 10

// normalCrossDeptDuration is the estimated duration stamped on planned
// (non-emergency) cross-department assignments.
const normalCrossDeptDuration = 4 * time.Hour

// ConcernService coordinates the concern lifecycle: submission,
// classification, assignment, and the confirmation/dispute flow.
type ConcernService struct {
	concerns    repository.ConcernRepository
	handlers    repository.HandlerRepository
	students    repository.StudentRepository
	departments repository.DepartmentRepository
	crossDept   repository.CrossDepartmentRepository
	history     repository.HistoryRepository
	sequencer   persistence.ReferenceSequencer
	workload    *WorkloadTracker
	chat        ChatGateway
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	locks       *ConcernLocks
	capacityCap int
	now         func() time.Time
}

// ConcernDependencies bundles collaborators for the concern service.
type ConcernDependencies struct {
	ConcernRepo    repository.ConcernRepository
	HandlerRepo    repository.HandlerRepository
	StudentRepo    repository.StudentRepository
	DepartmentRepo repository.DepartmentRepository
	CrossDeptRepo  repository.CrossDepartmentRepository
	HistoryRepo    repository.HistoryRepository
	Sequencer      persistence.ReferenceSequencer
	Chat           ChatGateway
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Locks          *ConcernLocks
	CapacityCap    int
	Now            func() time.Time
}

// NewConcernService constructs the service.
func NewConcernService(deps ConcernDependencies) *ConcernService {
	locks := deps.Locks
	if locks == nil {
		locks = NewConcernLocks()
	}
	capacity := deps.CapacityCap
	if capacity <= 0 {
		capacity = 10
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConcernService{
		concerns:    deps.ConcernRepo,
		handlers:    deps.HandlerRepo,
		students:    deps.StudentRepo,
		departments: deps.DepartmentRepo,
		crossDept:   deps.CrossDeptRepo,
		history:     deps.HistoryRepo,
		sequencer:   deps.Sequencer,
		workload:    NewWorkloadTracker(deps.ConcernRepo),
		chat:        deps.Chat,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		locks:       locks,
		capacityCap: capacity,
		now:         now,
	}
}

// Locks exposes the shared lock registry for sibling services.
func (s *ConcernService) Locks() *ConcernLocks { return s.locks }

// Workload exposes the workload tracker for sibling services.
func (s *ConcernService) Workload() *WorkloadTracker { return s.workload }

// CapacityCap returns the per-handler assignment cap.
func (s *ConcernService) CapacityCap() int { return s.capacityCap }

// SubmitConcernInput describes a concern submission payload.
type SubmitConcernInput struct {
	DepartmentID string
	FacilityID   *string
	Subject      string
	Description  string
	Attachments  []domain.AttachmentReference
}

// SubmitConcernResult bundles the created concern, the classifier output,
// and the automatic assignment outcome.
type SubmitConcernResult struct {
	Concern    *domain.Concern
	Analysis   PriorityAnalysis
	Assignment AssignmentOutcome
}

// Submit creates a concern for a student, classifies its text, and
// synchronously attempts automatic assignment. NoAssigneeAvailable is a
// valid outcome: the concern stays unassigned pending manual review.
func (s *ConcernService) Submit(ctx context.Context, studentID string, input SubmitConcernInput) (*SubmitConcernResult, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("student", map[string]any{"student_id": studentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !student.Active {
		return nil, apperrors.NewForbidden("student account inactive")
	}
	dept, err := s.departments.GetByID(ctx, input.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": input.DepartmentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !dept.IsActive {
		return nil, apperrors.NewConflict("department inactive", map[string]any{"department_id": dept.ID})
	}
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	if subject == "" || description == "" {
		return nil, apperrors.NewValidationError("subject and description required", nil)
	}

	analysis := ClassifyConcern(subject, description)

	reference, err := s.sequencer.Next(ctx, s.now())
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	concern := &domain.Concern{
		ReferenceNumber: reference,
		StudentID:       student.ID,
		DepartmentID:    dept.ID,
		FacilityID:      input.FacilityID,
		Subject:         subject,
		Description:     description,
		Category:        analysis.Category,
		Priority:        analysis.Priority,
		Status:          domain.ConcernStatusPending,
		EscalationLevel: domain.EscalationNone,
		Attachments:     input.Attachments,
	}
	if err := s.concerns.Create(ctx, concern); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventConcernSubmitted,
		ConcernID: concern.ID,
		Actor:     studentActor(student.ID),
		Payload: events.ConcernSubmittedPayload{
			ReferenceNumber: concern.ReferenceNumber,
			DepartmentID:    concern.DepartmentID,
			Priority:        concern.Priority,
			Category:        concern.Category,
			Subject:         concern.Subject,
			AutoEscalation:  analysis.AutoEscalation,
		},
	})

	outcome, err := s.autoAssign(ctx, concern)
	if err != nil {
		// Submission already succeeded; a failed assignment attempt leaves
		// the concern unassigned for the next sweep or manual review.
		s.logger.Warn("automatic assignment failed",
			zap.String("concern_id", concern.ID), zap.Error(err))
		outcome = AssignmentOutcome{NoAssignee: true, Reason: "assignment attempt failed"}
	}

	return &SubmitConcernResult{Concern: concern, Analysis: analysis, Assignment: outcome}, nil
}

// autoAssign picks the best available handler for a fresh concern:
// in-department staff first, then the cross-department pool.
func (s *ConcernService) autoAssign(ctx context.Context, concern *domain.Concern) (AssignmentOutcome, error) {
	release := s.locks.LockAssignments()
	defer release()

	pool, crossDepartment, err := s.candidatePool(ctx, concern.DepartmentID, false)
	if err != nil {
		return AssignmentOutcome{}, err
	}
	if len(pool) == 0 {
		return AssignmentOutcome{NoAssignee: true, Reason: "no active handlers"}, nil
	}

	workloads, stats, err := s.workload.Snapshot(ctx, pool)
	if err != nil {
		return AssignmentOutcome{}, err
	}
	for _, candidate := range RankCandidates(BuildCandidates(pool, workloads, stats)) {
		if candidate.Workload >= s.capacityCap {
			continue
		}
		// The snapshot may be stale; re-check at commit time under the
		// assignment lock to bound overshoot.
		count, err := s.workload.HandlerWorkload(ctx, candidate.Handler.ID)
		if err != nil {
			return AssignmentOutcome{}, err
		}
		if count >= s.capacityCap {
			continue
		}
		handler := candidate.Handler
		opts := AssignmentCommitOptions{
			OpenChat:          true,
			Welcome:           "Hello! I have been assigned to your concern and will follow up shortly.",
			CrossDepartment:   crossDepartment,
			EstimatedDuration: normalCrossDeptDuration,
		}
		if err := s.commitAssignment(ctx, concern, &handler, systemActor(), opts); err != nil {
			return AssignmentOutcome{}, err
		}
		outcome := AssignmentOutcome{Handler: &handler, CrossDepartment: crossDepartment}
		if crossDepartment {
			outcome.SourceDept = handler.DepartmentID
		}
		return outcome, nil
	}
	return AssignmentOutcome{NoAssignee: true, Reason: "no handler with spare capacity"}, nil
}

// candidatePool returns the assignment pool for a department: active
// in-department staff and department heads, or the cross-department pool
// when the department has none (or an emergency forces widening).
func (s *ConcernService) candidatePool(ctx context.Context, departmentID string, forceCross bool) ([]domain.Handler, bool, error) {
	active := true
	if !forceCross {
		pool, err := s.handlers.List(ctx, repository.HandlerFilter{
			DepartmentID: &departmentID,
			Roles:        []domain.HandlerRole{domain.HandlerRoleStaff, domain.HandlerRoleDepartmentHead},
			Active:       &active,
		})
		if err != nil {
			return nil, false, err
		}
		if len(pool) > 0 {
			return pool, false, nil
		}
	}
	capable := true
	pool, err := s.handlers.List(ctx, repository.HandlerFilter{
		ExcludeDepartmentID: &departmentID,
		Active:              &active,
		CrossDeptCapable:    &capable,
	})
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

// Approve moves a pending concern to approved and opens its chat channel.
func (s *ConcernService) Approve(ctx context.Context, actor *domain.Handler, concernID string) (*domain.Concern, error) {
	release := s.locks.LockConcern(concernID)
	defer release()

	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, err
	}
	if ok, reason := canApprove(actor, concern); !ok {
		return nil, apperrors.NewForbidden(reason)
	}
	if concern.Status != domain.ConcernStatusPending {
		return nil, apperrors.NewInvalidState("only pending concerns can be approved", map[string]any{
			"concern_id": concern.ID,
			"status":     concern.Status,
		})
	}

	now := s.now()
	oldStatus := concern.Status
	concern.Status = domain.ConcernStatusApproved
	concern.ApprovedAt = &now
	concern.ApprovedBy = &actor.ID
	if err := s.concerns.Update(ctx, concern); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordStatusChange(ctx, domain.ActorTypeHandler, &actor.ID, concern.ID, oldStatus, concern.Status, "approved")

	// Initial system message is authored by the assigned handler when one
	// exists, otherwise by the approver.
	author := actor.ID
	if concern.AssignedTo != nil {
		author = *concern.AssignedTo
	}
	if err := s.chat.Open(ctx, concern, author, "Your concern has been approved and is being worked on."); err != nil {
		s.logger.Warn("chat open failed", zap.String("concern_id", concern.ID), zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventConcernApproved,
		ConcernID: concern.ID,
		Actor:     handlerActor(actor.ID),
		Payload: events.ConcernStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: concern.Status,
		},
	})
	return concern, nil
}

// Reject declines a pending concern. A substantive reason is required.
func (s *ConcernService) Reject(ctx context.Context, actor *domain.Handler, concernID, reason string) (*domain.Concern, error) {
	if len(strings.TrimSpace(reason)) < minReasonLength {
		return nil, apperrors.NewValidationError("rejection reason too short", map[string]any{
			"min_length": minReasonLength,
		})
	}

	release := s.locks.LockConcern(concernID)
	defer release()

	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, err
	}
	if ok, denyReason := canReject(actor, concern); !ok {
		return nil, apperrors.NewForbidden(denyReason)
	}
	if concern.Status != domain.ConcernStatusPending {
		return nil, apperrors.NewInvalidState("only pending concerns can be rejected", map[string]any{
			"concern_id": concern.ID,
			"status":     concern.Status,
		})
	}

	now := s.now()
	oldStatus := concern.Status
	concern.Status = domain.ConcernStatusRejected
	concern.RejectedAt = &now
	if err := s.concerns.Update(ctx, concern); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordStatusChange(ctx, domain.ActorTypeHandler, &actor.ID, concern.ID, oldStatus, concern.Status, reason)

	s.publishEvent(ctx, events.Event{
		Type:      events.EventConcernRejected,
		ConcernID: concern.ID,
		Actor:     handlerActor(actor.ID),
		Payload: events.ConcernStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: concern.Status,
			Note:      reason,
		},
	})
	return concern, nil
}

// UpdateStatus performs a handler-driven status change. Transitions into
// STUDENT_CONFIRMED or DISPUTED are reserved to the owning student.
func (s *ConcernService) UpdateStatus(ctx context.Context, actor *domain.Handler, concernID string, newStatus domain.ConcernStatus, note string) (*domain.Concern, error) {
	release := s.locks.LockConcern(concernID)
	defer release()

	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, err
	}
	if ok, reason := canUpdateStatus(actor, concern); !ok {
		return nil, apperrors.NewForbidden(reason)
	}
	if isStudentReservedTarget(newStatus) {
		return nil, apperrors.NewForbidden("transition reserved to the owning student")
	}
	if !isValidTransition(concern.Status, newStatus) {
		return nil, apperrors.NewInvalidState("illegal status transition", map[string]any{
			"concern_id": concern.ID,
			"from":       concern.Status,
			"to":         newStatus,
		})
	}

	now := s.now()
	oldStatus := concern.Status
	concern.Status = newStatus
	switch newStatus {
	case domain.ConcernStatusStaffResolved:
		concern.ResolvedAt = &now
	case domain.ConcernStatusClosed:
		concern.ClosedAt = &now
	}
	if err := s.concerns.Update(ctx, concern); err != nil {
		return nil, apperrors.MapError(err)
	}
	if newStatus == domain.ConcernStatusClosed {
		s.completeCrossDepartment(ctx, concern.ID)
	}
	s.recordStatusChange(ctx, domain.ActorTypeHandler, &actor.ID, concern.ID, oldStatus, newStatus, note)

	s.publishEvent(ctx, events.Event{
		Type:      events.EventConcernStatusChanged,
		ConcernID: concern.ID,
		Actor:     handlerActor(actor.ID),
		Payload: events.ConcernStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Note:      note,
		},
	})
	return concern, nil
}

// ConfirmResolution lets the owning student accept a staff resolution.
// The concern is archived and its chat channel closed.
func (s *ConcernService) ConfirmResolution(ctx context.Context, studentID, concernID, notes string, rating *int) (*domain.Concern, error) {
	release := s.locks.LockConcern(concernID)
	defer release()

	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, err
	}
	if ok, reason := canConfirm(studentID, concern); !ok {
		return nil, apperrors.NewForbidden(reason)
	}
	if !concern.Confirmable() {
		return nil, apperrors.NewInvalidState("concern not confirmable", map[string]any{
			"concern_id": concern.ID,
			"status":     concern.Status,
		})
	}

	now := s.now()
	oldStatus := concern.Status
	concern.Status = domain.ConcernStatusStudentConfirmed
	concern.ConfirmedAt = &now
	concern.Archived = true
	concern.ArchivedAt = &now
	if err := s.concerns.Update(ctx, concern); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.completeCrossDepartment(ctx, concern.ID)

	if err := s.chat.Close(ctx, concern.ID); err != nil {
		s.logger.Warn("chat close failed", zap.String("concern_id", concern.ID), zap.Error(err))
	}

	newValue := map[string]any{"status": concern.Status, "notes": notes}
	if rating != nil {
		newValue["rating"] = *rating
	}
	s.recordHistory(ctx, &domain.ConcernHistory{
		ConcernID:     concern.ID,
		ChangedByType: domain.ActorTypeStudent,
		ChangedByID:   &studentID,
		ChangeType:    domain.ChangeTypeResolution,
		OldValue:      map[string]any{"status": oldStatus},
		NewValue:      newValue,
	})

	s.publishEvent(ctx, events.Event{
		Type:      events.EventResolutionConfirmed,
		ConcernID: concern.ID,
		Actor:     studentActor(studentID),
		Payload: events.ResolutionConfirmedPayload{
			Rating: rating,
			Notes:  notes,
		},
	})
	return concern, nil
}

// DisputeResolution lets the owning student reject a staff resolution.
// Assignment and escalation state stay untouched; a human acts next.
func (s *ConcernService) DisputeResolution(ctx context.Context, studentID, concernID, reason string) (*domain.Concern, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("dispute reason required", nil)
	}

	release := s.locks.LockConcern(concernID)
	defer release()

	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, err
	}
	if ok, denyReason := canDispute(studentID, concern); !ok {
		return nil, apperrors.NewForbidden(denyReason)
	}
	if !concern.Confirmable() {
		return nil, apperrors.NewInvalidState("concern not disputable", map[string]any{
			"concern_id": concern.ID,
			"status":     concern.Status,
		})
	}

	now := s.now()
	oldStatus := concern.Status
	concern.Status = domain.ConcernStatusDisputed
	concern.DisputedAt = &now
	if err := s.concerns.Update(ctx, concern); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.chat.Reopen(ctx, concern.ID); err != nil {
		s.logger.Warn("chat reopen failed", zap.String("concern_id", concern.ID), zap.Error(err))
	}

	s.recordHistory(ctx, &domain.ConcernHistory{
		ConcernID:     concern.ID,
		ChangedByType: domain.ActorTypeStudent,
		ChangedByID:   &studentID,
		ChangeType:    domain.ChangeTypeDispute,
		OldValue:      map[string]any{"status": oldStatus},
		NewValue:      map[string]any{"status": concern.Status, "reason": reason},
	})

	s.publishEvent(ctx, events.Event{
		Type:      events.EventResolutionDisputed,
		ConcernID: concern.ID,
		Actor:     studentActor(studentID),
		Payload:   events.ResolutionDisputedPayload{Reason: reason},
	})
	return concern, nil
}

// Assign manually assigns a concern to a handler. A later manual
// reassignment overwrites the previous one; the audit record keeps the
// prior handler.
func (s *ConcernService) Assign(ctx context.Context, actor *domain.Handler, concernID, handlerID string) (*domain.Concern, error) {
	release := s.locks.LockConcern(concernID)
	defer release()
	releaseAssign := s.locks.LockAssignments()
	defer releaseAssign()

	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, err
	}
	if ok, reason := canAssign(actor, concern); !ok {
		return nil, apperrors.NewForbidden(reason)
	}
	if concern.Status.IsTerminal() {
		return nil, apperrors.NewInvalidState("concern already terminal", map[string]any{
			"concern_id": concern.ID,
			"status":     concern.Status,
		})
	}
	assignee, err := s.handlers.GetByID(ctx, handlerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("handler", map[string]any{"handler_id": handlerID})
		}
		return nil, apperrors.MapError(err)
	}
	if !assignee.Active {
		return nil, apperrors.NewConflict("assignee inactive", map[string]any{"handler_id": handlerID})
	}
	count, err := s.workload.HandlerWorkload(ctx, assignee.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if count >= s.capacityCap {
		return nil, apperrors.NewConflict("handler at capacity", map[string]any{
			"handler_id": assignee.ID,
			"workload":   count,
			"cap":        s.capacityCap,
		})
	}

	opts := AssignmentCommitOptions{
		OpenChat:          true,
		Welcome:           "Hello! I have been assigned to your concern and will follow up shortly.",
		CrossDepartment:   !assignee.InDepartment(concern.DepartmentID),
		EstimatedDuration: normalCrossDeptDuration,
	}
	if err := s.commitAssignment(ctx, concern, assignee, handlerActor(actor.ID), opts); err != nil {
		return nil, apperrors.MapError(err)
	}
	return concern, nil
}

// AssignmentCommitOptions tunes how an assignment is committed.
type AssignmentCommitOptions struct {
	ForceInProgress   bool
	OpenChat          bool
	Welcome           string
	CrossDepartment   bool
	Emergency         bool
	EstimatedDuration time.Duration
}

// CommitAssignment persists an assignment in one write. The caller may
// have staged extra field changes (escalation metadata, priority) on the
// concern; a failure here leaves nothing persisted. Callers must hold the
// relevant locks.
func (s *ConcernService) CommitAssignment(ctx context.Context, concern *domain.Concern, assignee *domain.Handler, actor events.Actor, opts AssignmentCommitOptions) error {
	return s.commitAssignment(ctx, concern, assignee, actor, opts)
}

func (s *ConcernService) commitAssignment(ctx context.Context, concern *domain.Concern, assignee *domain.Handler, actor events.Actor, opts AssignmentCommitOptions) error {
	now := s.now()
	prev := concern.AssignedTo
	concern.AssignedTo = &assignee.ID
	concern.AssignedAt = &now
	if opts.ForceInProgress ||
		concern.Status == domain.ConcernStatusApproved ||
		concern.Status == domain.ConcernStatusDisputed {
		concern.Status = domain.ConcernStatusInProgress
	}
	if err := s.concerns.Update(ctx, concern); err != nil {
		return err
	}

	if opts.CrossDepartment {
		assignmentType := domain.CrossDepartmentNormal
		if opts.Emergency {
			assignmentType = domain.CrossDepartmentEmergency
		}
		record := &domain.CrossDepartmentAssignment{
			ConcernID:            concern.ID,
			RequestingDepartment: concern.DepartmentID,
			HandlerID:            assignee.ID,
			HandlerDepartment:    assignee.DepartmentID,
			AssignmentType:       assignmentType,
			Status:               domain.CrossDepartmentActive,
			EstimatedDuration:    opts.EstimatedDuration,
		}
		if err := s.crossDept.Create(ctx, record); err != nil {
			s.logger.Error("cross-department record failed",
				zap.String("concern_id", concern.ID), zap.Error(err))
		}
	}

	actorID := actor.HandlerID
	s.recordHistory(ctx, &domain.ConcernHistory{
		ConcernID:     concern.ID,
		ChangedByType: actor.Type,
		ChangedByID:   actorID,
		ChangeType:    domain.ChangeTypeAssignee,
		OldValue:      map[string]any{"assigned_to": prev},
		NewValue:      map[string]any{"assigned_to": concern.AssignedTo},
	})

	s.publishEvent(ctx, events.Event{
		Type:      events.EventConcernAssigned,
		ConcernID: concern.ID,
		Actor:     actor,
		Payload: events.ConcernAssignedPayload{
			HandlerID:     concern.AssignedTo,
			PrevHandlerID: prev,
			DepartmentID:  concern.DepartmentID,
			CrossDept:     opts.CrossDepartment,
		},
	})

	if opts.OpenChat {
		if err := s.chat.Open(ctx, concern, assignee.ID, opts.Welcome); err != nil {
			s.logger.Warn("chat open failed", zap.String("concern_id", concern.ID), zap.Error(err))
		}
	}
	return nil
}

// completeCrossDepartment closes out an active cross-department loan, if
// any, when a concern reaches confirmation or closure.
func (s *ConcernService) completeCrossDepartment(ctx context.Context, concernID string) {
	record, err := s.crossDept.GetActiveByConcern(ctx, concernID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("cross-department lookup failed", zap.String("concern_id", concernID), zap.Error(err))
		}
		return
	}
	if err := s.crossDept.Complete(ctx, record.ID, s.now()); err != nil {
		s.logger.Warn("cross-department completion failed", zap.String("concern_id", concernID), zap.Error(err))
	}
}

// GetForStudent fetches a concern ensuring ownership.
func (s *ConcernService) GetForStudent(ctx context.Context, studentID, concernID string) (*domain.Concern, []domain.ConcernHistory, error) {
	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, nil, err
	}
	if concern.StudentID != studentID {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	history, err := s.history.ListByConcern(ctx, concern.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return concern, history, nil
}

// ListForStudent returns concerns filed by a student.
func (s *ConcernService) ListForStudent(ctx context.Context, studentID string, filter repository.ConcernFilter) ([]domain.Concern, error) {
	filter.StudentID = &studentID
	concerns, err := s.concerns.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return concerns, nil
}

// ListForHandler returns concerns within the handler's scope: admins see
// everything, others see their department and their own assignments.
func (s *ConcernService) ListForHandler(ctx context.Context, actor *domain.Handler, filter repository.ConcernFilter) ([]domain.Concern, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("handler required")
	}
	if actor.Role != domain.HandlerRoleAdmin {
		if actor.DepartmentID != nil {
			filter.DepartmentID = actor.DepartmentID
		} else {
			filter.AssignedTo = &actor.ID
		}
	}
	concerns, err := s.concerns.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return concerns, nil
}

// GetForHandler fetches a concern ensuring handler scope.
func (s *ConcernService) GetForHandler(ctx context.Context, actor *domain.Handler, concernID string) (*domain.Concern, []domain.ConcernHistory, error) {
	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, nil, err
	}
	if ok, reason := canUpdateStatus(actor, concern); !ok {
		return nil, nil, apperrors.NewForbidden(reason)
	}
	history, err := s.history.ListByConcern(ctx, concern.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return concern, history, nil
}

func (s *ConcernService) getConcern(ctx context.Context, concernID string) (*domain.Concern, error) {
	concern, err := s.concerns.GetByID(ctx, concernID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("concern", map[string]any{"concern_id": concernID})
		}
		return nil, apperrors.MapError(err)
	}
	return concern, nil
}

func (s *ConcernService) recordStatusChange(ctx context.Context, actorType domain.ActorType, actorID *string, concernID string, oldStatus, newStatus domain.ConcernStatus, note string) {
	s.recordHistory(ctx, &domain.ConcernHistory{
		ConcernID:     concernID,
		ChangedByType: actorType,
		ChangedByID:   actorID,
		ChangeType:    domain.ChangeTypeStatus,
		OldValue:      map[string]any{"status": oldStatus},
		NewValue:      map[string]any{"status": newStatus, "note": note},
	})
}

func (s *ConcernService) recordHistory(ctx context.Context, entry *domain.ConcernHistory) {
	if s.history == nil {
		return
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("history record failed",
			zap.String("concern_id", entry.ConcernID), zap.Error(err))
	}
}

func (s *ConcernService) publishEvent(ctx context.Context, event events.Event) {
	dispatchEvent(ctx, s.dispatcher, s.logger, s.now, event)
}

// dispatchEvent stamps an event with an ID and timestamp and publishes it.
// Every service publishes through here so no event leaves unstamped.
func dispatchEvent(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, now func() time.Time, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func studentActor(id string) events.Actor {
	return events.Actor{Type: domain.ActorTypeStudent, StudentID: &id}
}

func handlerActor(id string) events.Actor {
	return events.Actor{Type: domain.ActorTypeHandler, HandlerID: &id}
}

func systemActor() events.Actor {
	return events.Actor{Type: domain.ActorTypeSystem}
}
