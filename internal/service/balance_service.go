package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/concern-service/internal/config"
	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/events"
	"github.com/spec-kit/concern-service/internal/repository"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

// Load ratio thresholds: open concerns per active staff member.
const (
	highLoadRatio = 5.0
	lowLoadRatio  = 1.0
)

// DepartmentLoad is one department's open-concern pressure.
type DepartmentLoad struct {
	DepartmentID string  `json:"department_id"`
	Name         string  `json:"name"`
	OpenConcerns int     `json:"open_concerns"`
	ActiveStaff  int     `json:"active_staff"`
	LoadRatio    float64 `json:"load_ratio"`
	Overloaded   bool    `json:"overloaded"`
	Underloaded  bool    `json:"underloaded"`
}

// RebalanceProposal suggests moving one queued concern to a handler in
// another department. Proposals are advisory; nothing moves until one is
// explicitly executed.
type RebalanceProposal struct {
	ConcernID         string  `json:"concern_id"`
	ReferenceNumber   string  `json:"reference_number"`
	HandlerID         string  `json:"handler_id"`
	HandlerDepartment *string `json:"handler_department,omitempty"`
	HandlerWorkload   int     `json:"handler_workload"`
}

// BalanceService measures per-department load and moves work across
// department boundaries, by proposal or by emergency.
type BalanceService struct {
	concerns    repository.ConcernRepository
	handlers    repository.HandlerRepository
	departments repository.DepartmentRepository
	concernSvc  *ConcernService
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	cfg         config.EscalationConfig
	now         func() time.Time
}

// BalanceDependencies bundles collaborators for the balance service.
type BalanceDependencies struct {
	ConcernRepo    repository.ConcernRepository
	HandlerRepo    repository.HandlerRepository
	DepartmentRepo repository.DepartmentRepository
	ConcernService *ConcernService
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Config         config.EscalationConfig
	Now            func() time.Time
}

// NewBalanceService constructs the service.
func NewBalanceService(deps BalanceDependencies) *BalanceService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{
		concerns:    deps.ConcernRepo,
		handlers:    deps.HandlerRepo,
		departments: deps.DepartmentRepo,
		concernSvc:  deps.ConcernService,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		cfg:         deps.Config,
		now:         now,
	}
}

// DepartmentLoads computes the load ratio for every active department.
// A department with no active staff and open concerns is overloaded by
// definition.
func (s *BalanceService) DepartmentLoads(ctx context.Context) ([]DepartmentLoad, error) {
	departments, err := s.departments.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	active := true
	loads := make([]DepartmentLoad, 0, len(departments))
	for i := range departments {
		dept := departments[i]
		open, err := s.concerns.CountOpenByDepartment(ctx, dept.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		staff, err := s.handlers.List(ctx, repository.HandlerFilter{
			DepartmentID: &dept.ID,
			Roles:        []domain.HandlerRole{domain.HandlerRoleStaff, domain.HandlerRoleDepartmentHead},
			Active:       &active,
		})
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		load := DepartmentLoad{
			DepartmentID: dept.ID,
			Name:         dept.Name,
			OpenConcerns: open,
			ActiveStaff:  len(staff),
		}
		if len(staff) > 0 {
			load.LoadRatio = float64(open) / float64(len(staff))
			load.Overloaded = load.LoadRatio > highLoadRatio
			load.Underloaded = load.LoadRatio < lowLoadRatio
		} else {
			load.Overloaded = open > 0
		}
		loads = append(loads, load)
	}
	sort.Slice(loads, func(i, j int) bool { return loads[i].LoadRatio > loads[j].LoadRatio })
	return loads, nil
}

// Rebalance proposes cross-department assignments for an overloaded
// department's queue: unassigned concerns first, oldest first, matched to
// cross-department-capable handlers elsewhere with spare capacity.
func (s *BalanceService) Rebalance(ctx context.Context, departmentID string) ([]RebalanceProposal, error) {
	if _, err := s.departments.GetByID(ctx, departmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": departmentID})
		}
		return nil, apperrors.MapError(err)
	}

	queued, err := s.queuedConcerns(ctx, departmentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(queued) == 0 {
		return nil, nil
	}

	active, capable := true, true
	pool, err := s.handlers.List(ctx, repository.HandlerFilter{
		ExcludeDepartmentID: &departmentID,
		Active:              &active,
		CrossDeptCapable:    &capable,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	workloads, stats, err := s.concernSvc.Workload().Snapshot(ctx, pool)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	ranked := RankCandidates(BuildCandidates(pool, workloads, stats))

	capacity := s.concernSvc.CapacityCap()
	proposals := make([]RebalanceProposal, 0, len(queued))
	next := 0
	for i := range queued {
		// Walk the ranked pool, simulating the workload each proposal
		// would add so one handler is not proposed past the cap.
		for next < len(ranked) && ranked[next].Workload >= capacity {
			next++
		}
		if next >= len(ranked) {
			break
		}
		proposals = append(proposals, RebalanceProposal{
			ConcernID:         queued[i].ID,
			ReferenceNumber:   queued[i].ReferenceNumber,
			HandlerID:         ranked[next].Handler.ID,
			HandlerDepartment: ranked[next].Handler.DepartmentID,
			HandlerWorkload:   ranked[next].Workload,
		})
		ranked[next].Workload++
	}
	return proposals, nil
}

// queuedConcerns returns a department's backlog eligible for rebalancing:
// open, unassigned first, oldest first. The whole queue, not a page: an
// overloaded department's backlog is exactly what must not be truncated.
func (s *BalanceService) queuedConcerns(ctx context.Context, departmentID string) ([]domain.Concern, error) {
	queue, err := s.concerns.ListOpenByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(queue, func(i, j int) bool {
		iUnassigned := queue[i].AssignedTo == nil
		jUnassigned := queue[j].AssignedTo == nil
		if iUnassigned != jUnassigned {
			return iUnassigned
		}
		return queue[i].CreatedAt.Before(queue[j].CreatedAt)
	})
	return queue, nil
}

// ExecuteProposal carries out one previously proposed move. It assigns
// exactly like a normal assignment, plus a planned cross-department
// record. The capacity cap is re-checked at commit time.
func (s *BalanceService) ExecuteProposal(ctx context.Context, actor *domain.Handler, concernID, handlerID string) (*domain.Concern, error) {
	release := s.concernSvc.Locks().LockConcern(concernID)
	defer release()
	releaseAssign := s.concernSvc.Locks().LockAssignments()
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
	handler, err := s.getHandler(ctx, handlerID)
	if err != nil {
		return nil, err
	}
	if !handler.Active || !handler.CrossDepartmentCapable {
		return nil, apperrors.NewConflict("handler not eligible for cross-department work", map[string]any{
			"handler_id": handlerID,
		})
	}
	if handler.InDepartment(concern.DepartmentID) {
		return nil, apperrors.NewConflict("handler already in the concern's department", map[string]any{
			"handler_id": handlerID,
		})
	}
	overloaded, err := s.concernSvc.Workload().Overloaded(ctx, handler.ID, s.concernSvc.CapacityCap())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if overloaded {
		return nil, apperrors.NewConflict("handler at capacity", map[string]any{"handler_id": handlerID})
	}

	opts := AssignmentCommitOptions{
		OpenChat:          true,
		Welcome:           "Hello! I have been assigned to your concern and will follow up shortly.",
		CrossDepartment:   true,
		EstimatedDuration: normalCrossDeptDuration,
	}
	if err := s.concernSvc.CommitAssignment(ctx, concern, handler, handlerActor(actor.ID), opts); err != nil {
		return nil, apperrors.MapError(err)
	}
	return concern, nil
}

// ActivateEmergency bypasses proposal review: it immediately loans the
// lowest-workload cross-department-capable handler outside the concern's
// department, ignoring the capacity cap, forces the given priority
// (default urgent) and IN_PROGRESS status, and records an emergency
// cross-department assignment.
func (s *BalanceService) ActivateEmergency(ctx context.Context, actor *domain.Handler, concernID, reason string, priority domain.ConcernPriority) (*domain.Concern, *domain.Handler, error) {
	if reason == "" {
		return nil, nil, apperrors.NewValidationError("emergency reason required", nil)
	}
	if priority == "" {
		priority = domain.ConcernPriorityUrgent
	}

	release := s.concernSvc.Locks().LockConcern(concernID)
	defer release()
	releaseAssign := s.concernSvc.Locks().LockAssignments()
	defer releaseAssign()

	concern, err := s.getConcern(ctx, concernID)
	if err != nil {
		return nil, nil, err
	}
	if ok, denyReason := canEscalate(actor, concern); !ok {
		return nil, nil, apperrors.NewForbidden(denyReason)
	}
	if concern.Status.IsTerminal() {
		return nil, nil, apperrors.NewInvalidState("concern already terminal", map[string]any{
			"concern_id": concern.ID,
			"status":     concern.Status,
		})
	}

	active, capable := true, true
	pool, err := s.handlers.List(ctx, repository.HandlerFilter{
		ExcludeDepartmentID: &concern.DepartmentID,
		Active:              &active,
		CrossDeptCapable:    &capable,
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if len(pool) == 0 {
		return nil, nil, apperrors.NewConflict("no cross-department handler available", map[string]any{
			"concern_id": concern.ID,
		})
	}
	workloads, stats, err := s.concernSvc.Workload().Snapshot(ctx, pool)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	// Emergencies ignore the capacity cap: someone must take it now.
	assignee := RankCandidates(BuildCandidates(pool, workloads, stats))[0].Handler

	concern.Priority = priority
	opts := AssignmentCommitOptions{
		ForceInProgress:   true,
		OpenChat:          true,
		Welcome:           "This concern has been flagged as an emergency; I am taking it over immediately.",
		CrossDepartment:   true,
		Emergency:         true,
		EstimatedDuration: s.cfg.EmergencyDuration(),
	}
	if err := s.concernSvc.CommitAssignment(ctx, concern, &assignee, handlerActor(actor.ID), opts); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventEmergencyActivated,
		ConcernID: concern.ID,
		Actor:     handlerActor(actor.ID),
		Payload: events.EmergencyActivatedPayload{
			HandlerID: assignee.ID,
			Priority:  priority,
			Reason:    reason,
		},
	})
	return concern, &assignee, nil
}

func (s *BalanceService) getConcern(ctx context.Context, concernID string) (*domain.Concern, error) {
	concern, err := s.concerns.GetByID(ctx, concernID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("concern", map[string]any{"concern_id": concernID})
		}
		return nil, apperrors.MapError(err)
	}
	return concern, nil
}

func (s *BalanceService) getHandler(ctx context.Context, handlerID string) (*domain.Handler, error) {
	handler, err := s.handlers.GetByID(ctx, handlerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("handler", map[string]any{"handler_id": handlerID})
		}
		return nil, apperrors.MapError(err)
	}
	return handler, nil
}

func (s *BalanceService) publishEvent(ctx context.Context, event events.Event) {
	dispatchEvent(ctx, s.dispatcher, s.logger, s.now, event)
}
