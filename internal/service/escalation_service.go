package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/concern-service/internal/config"
	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/events"
	"github.com/spec-kit/concern-service/internal/repository"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

// escalationThresholds holds the age thresholds for one priority, in hours
// since submission.
type escalationThresholds struct {
	Reminder time.Duration
	Staff    time.Duration
	DeptHead time.Duration
	Admin    time.Duration
}

// thresholdsFor maps concern priority to its escalation schedule. Higher
// priorities age faster.
func thresholdsFor(priority domain.ConcernPriority) escalationThresholds {
	switch priority {
	case domain.ConcernPriorityUrgent:
		return escalationThresholds{
			Reminder: 2 * time.Hour,
			Staff:    6 * time.Hour,
			DeptHead: 12 * time.Hour,
			Admin:    24 * time.Hour,
		}
	case domain.ConcernPriorityHigh:
		return escalationThresholds{
			Reminder: 6 * time.Hour,
			Staff:    24 * time.Hour,
			DeptHead: 48 * time.Hour,
			Admin:    72 * time.Hour,
		}
	default:
		return escalationThresholds{
			Reminder: 24 * time.Hour,
			Staff:    72 * time.Hour,
			DeptHead: 120 * time.Hour,
			Admin:    168 * time.Hour,
		}
	}
}

// targetLevel returns the highest escalation level whose threshold the
// concern's age has crossed. A sweep that was delayed jumps straight to
// the highest crossed level instead of stepping through intermediates.
func targetLevel(age time.Duration, t escalationThresholds) domain.EscalationLevel {
	switch {
	case age >= t.Admin:
		return domain.EscalationAdmin
	case age >= t.DeptHead:
		return domain.EscalationDepartmentHead
	case age >= t.Staff:
		return domain.EscalationStaff
	default:
		return domain.EscalationNone
	}
}

// escalationAnchor is the instant a concern's escalation clock starts:
// its assignment time, or its creation time if it was never assigned.
func escalationAnchor(c *domain.Concern) time.Time {
	if c.AssignedAt != nil {
		return *c.AssignedAt
	}
	return c.CreatedAt
}

// SweepSkip records a concern the sweep looked at but did not act on.
type SweepSkip struct {
	ConcernID string `json:"concern_id"`
	Reason    string `json:"reason"`
}

// SweepResult summarizes one escalation sweep.
type SweepResult struct {
	Scanned   int         `json:"scanned"`
	Escalated int         `json:"escalated"`
	Reminded  int         `json:"reminded"`
	Skipped   []SweepSkip `json:"skipped,omitempty"`
}

// EscalationService ages unresolved concerns through the escalation
// ladder and sends reminders ahead of the first escalation.
type EscalationService struct {
	concerns     repository.ConcernRepository
	handlers     repository.HandlerRepository
	departments  repository.DepartmentRepository
	concernSvc   *ConcernService
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	cfg          config.EscalationConfig
	now          func() time.Time

	sweepMu sync.Mutex
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	ConcernRepo    repository.ConcernRepository
	HandlerRepo    repository.HandlerRepository
	DepartmentRepo repository.DepartmentRepository
	ConcernService *ConcernService
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Config         config.EscalationConfig
	Now            func() time.Time
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
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

// RunSweep scans every escalatable concern once and applies reminders and
// escalations. Sweeps are serialized; a second caller waits for the first.
// Per-concern failures are recorded as skips, never aborting the sweep.
func (s *EscalationService) RunSweep(ctx context.Context) (*SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	concerns, err := s.concerns.ListForEscalation(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	result := &SweepResult{Scanned: len(concerns)}
	var resultMu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	limit := s.cfg.SweepConcurrency
	if limit <= 0 {
		limit = 8
	}
	group.SetLimit(limit)

	for i := range concerns {
		id := concerns[i].ID
		group.Go(func() error {
			action, skip := s.sweepOne(groupCtx, id)
			resultMu.Lock()
			defer resultMu.Unlock()
			switch action {
			case sweepEscalated:
				result.Escalated++
			case sweepReminded:
				result.Reminded++
			case sweepSkipped:
				result.Skipped = append(result.Skipped, *skip)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("escalation sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("escalated", result.Escalated),
		zap.Int("reminded", result.Reminded),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

type sweepAction int

const (
	sweepNoop sweepAction = iota
	sweepEscalated
	sweepReminded
	sweepSkipped
)

// sweepOne re-fetches the concern under its lock so the decision is made
// against current state, then applies at most one action.
func (s *EscalationService) sweepOne(ctx context.Context, concernID string) (sweepAction, *SweepSkip) {
	release := s.concernSvc.Locks().LockConcern(concernID)
	defer release()

	concern, err := s.concerns.GetByID(ctx, concernID)
	if err != nil {
		return sweepSkipped, &SweepSkip{ConcernID: concernID, Reason: "fetch failed"}
	}
	if concern.Status.IsTerminal() || concern.Archived {
		return sweepNoop, nil
	}

	now := s.now()
	age := now.Sub(escalationAnchor(concern))
	thresholds := thresholdsFor(concern.Priority)

	target := targetLevel(age, thresholds)
	if target.Rank() > concern.EscalationLevel.Rank() {
		if concern.EscalatedAt != nil && now.Sub(*concern.EscalatedAt) < s.cfg.EscalationCooldown() {
			return sweepSkipped, &SweepSkip{ConcernID: concernID, Reason: "escalation cooldown"}
		}
		if err := s.escalate(ctx, concern, target, age); err != nil {
			s.logger.Warn("escalation failed",
				zap.String("concern_id", concernID), zap.Error(err))
			return sweepSkipped, &SweepSkip{ConcernID: concernID, Reason: err.Error()}
		}
		return sweepEscalated, nil
	}

	// Reminder window: past the reminder threshold but not due for an
	// escalation, and only when someone is assigned to remind.
	if age >= thresholds.Reminder && concern.AssignedTo != nil {
		if concern.LastReminderAt != nil && now.Sub(*concern.LastReminderAt) < s.cfg.ReminderCooldown() {
			return sweepNoop, nil
		}
		if err := s.remind(ctx, concern, age); err != nil {
			return sweepSkipped, &SweepSkip{ConcernID: concernID, Reason: err.Error()}
		}
		return sweepReminded, nil
	}
	return sweepNoop, nil
}

// escalate raises a concern to the target level and reassigns it to the
// least-loaded handler in that level's pool. The level change and the
// reassignment land in one write.
func (s *EscalationService) escalate(ctx context.Context, concern *domain.Concern, target domain.EscalationLevel, age time.Duration) error {
	releaseAssign := s.concernSvc.Locks().LockAssignments()
	defer releaseAssign()

	pool, err := s.escalationPool(ctx, concern, target)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		return apperrors.NewConflict("no handler available at escalation level", map[string]any{
			"concern_id": concern.ID,
			"level":      target,
		})
	}

	workloads, stats, err := s.concernSvc.Workload().Snapshot(ctx, pool)
	if err != nil {
		return err
	}
	ranked := RankCandidates(BuildCandidates(pool, workloads, stats))
	// Escalation ignores the capacity cap: an aged concern must land on a
	// responsible handler even if everyone at the level is saturated.
	assignee := ranked[0].Handler

	prev := concern.AssignedTo
	now := s.now()
	elapsedHours := age.Hours()
	concern.EscalationLevel = target
	concern.EscalatedAt = &now
	reason := escalationReason(elapsedHours, target)
	concern.EscalationReason = reason
	opts := AssignmentCommitOptions{
		ForceInProgress: true,
		OpenChat:        false,
	}
	if err := s.concernSvc.CommitAssignment(ctx, concern, &assignee, systemActor(), opts); err != nil {
		return err
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventConcernEscalated,
		ConcernID: concern.ID,
		Actor:     systemActor(),
		Payload: events.ConcernEscalatedPayload{
			Level:         target,
			Reason:        reason,
			NewHandlerID:  concern.AssignedTo,
			PrevHandlerID: prev,
		},
	})
	return nil
}

// escalationPool returns the handler pool for a level: staff escalation
// prefers in-department staff excluding the current assignee, department
// head escalation targets the department's heads, admin escalation
// targets admins anywhere.
func (s *EscalationService) escalationPool(ctx context.Context, concern *domain.Concern, level domain.EscalationLevel) ([]domain.Handler, error) {
	active := true
	switch level {
	case domain.EscalationStaff:
		pool, err := s.handlers.List(ctx, repository.HandlerFilter{
			DepartmentID: &concern.DepartmentID,
			Roles:        []domain.HandlerRole{domain.HandlerRoleStaff, domain.HandlerRoleDepartmentHead},
			Active:       &active,
		})
		if err != nil {
			return nil, err
		}
		if concern.AssignedTo == nil {
			return pool, nil
		}
		filtered := pool[:0]
		for _, h := range pool {
			if h.ID != *concern.AssignedTo {
				filtered = append(filtered, h)
			}
		}
		return filtered, nil
	case domain.EscalationDepartmentHead:
		return s.handlers.List(ctx, repository.HandlerFilter{
			DepartmentID: &concern.DepartmentID,
			Roles:        []domain.HandlerRole{domain.HandlerRoleDepartmentHead},
			Active:       &active,
		})
	case domain.EscalationAdmin:
		return s.handlers.List(ctx, repository.HandlerFilter{
			Roles:  []domain.HandlerRole{domain.HandlerRoleAdmin},
			Active: &active,
		})
	}
	return nil, nil
}

// remind stamps the reminder time and notifies the assigned handler.
func (s *EscalationService) remind(ctx context.Context, concern *domain.Concern, age time.Duration) error {
	now := s.now()
	concern.LastReminderAt = &now
	if err := s.concerns.Update(ctx, concern); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventConcernReminderSent,
		ConcernID: concern.ID,
		Actor:     systemActor(),
		Payload: events.ConcernReminderPayload{
			HandlerID:    *concern.AssignedTo,
			ElapsedHours: age.Hours(),
		},
	})
	return nil
}

// ManualEscalate raises a concern one level on request from a department
// head or admin, bypassing the age thresholds and cooldowns.
func (s *EscalationService) ManualEscalate(ctx context.Context, actor *domain.Handler, concernID, reason string) (*domain.Concern, error) {
	release := s.concernSvc.Locks().LockConcern(concernID)
	defer release()

	concern, err := s.concerns.GetByID(ctx, concernID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ok, denyReason := canEscalate(actor, concern); !ok {
		return nil, apperrors.NewForbidden(denyReason)
	}
	if concern.Status.IsTerminal() {
		return nil, apperrors.NewInvalidState("concern already terminal", map[string]any{
			"concern_id": concern.ID,
			"status":     concern.Status,
		})
	}

	var target domain.EscalationLevel
	switch concern.EscalationLevel {
	case domain.EscalationNone:
		target = domain.EscalationStaff
	case domain.EscalationStaff:
		target = domain.EscalationDepartmentHead
	case domain.EscalationDepartmentHead:
		target = domain.EscalationAdmin
	default:
		return nil, apperrors.NewConflict("concern already at highest escalation level", map[string]any{
			"concern_id": concern.ID,
		})
	}

	age := s.now().Sub(escalationAnchor(concern))
	if err := s.escalate(ctx, concern, target, age); err != nil {
		return nil, apperrors.MapError(err)
	}
	if reason != "" {
		concern.EscalationReason = reason
		if err := s.concerns.Update(ctx, concern); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	return concern, nil
}

func (s *EscalationService) publishEvent(ctx context.Context, event events.Event) {
	dispatchEvent(ctx, s.dispatcher, s.logger, s.now, event)
}
