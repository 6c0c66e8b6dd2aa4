package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/events"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

func TestSweepEscalatesThenRemindsWithCooldown(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-sec", "Campus Security")
	env.addStudent(t, "stu-1")
	env.addHandler(t, "h-s1", "dept-sec", domain.HandlerRoleStaff, false)
	env.addHandler(t, "h-s2", "dept-sec", domain.HandlerRoleStaff, false)

	result := env.submit(t, "stu-1", "dept-sec", "URGENT: broken lock", "The dorm entrance lock is broken.")
	require.Equal(t, domain.ConcernPriorityUrgent, result.Analysis.Priority)
	require.NotNil(t, result.Assignment.Handler)
	require.Equal(t, "h-s1", result.Assignment.Handler.ID)

	// Age the assignment past the urgent staff threshold (6h).
	sevenHoursAgo := env.clock.Now().Add(-7 * time.Hour)
	env.setConcernTimes(t, result.Concern.ID, func(c *domain.Concern) {
		c.AssignedAt = &sevenHoursAgo
	})

	sweep, err := env.escalation.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Scanned)
	assert.Equal(t, 1, sweep.Escalated)
	assert.Empty(t, sweep.Skipped)

	concern, err := env.concerns.GetByID(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationStaff, concern.EscalationLevel)
	// Reassigned away from the unresponsive handler.
	require.NotNil(t, concern.AssignedTo)
	assert.Equal(t, "h-s2", *concern.AssignedTo)
	assert.Equal(t, domain.ConcernStatusInProgress, concern.Status)
	require.NotNil(t, concern.EscalatedAt)
	assert.Equal(t, env.clock.Now(), *concern.EscalatedAt)
	assert.Contains(t, concern.EscalationReason, "7.0 hours")

	// Three hours on, the concern is past the reminder threshold but not
	// due for another escalation: the new handler gets a nudge.
	env.clock.Advance(3 * time.Hour)
	sweep, err = env.escalation.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sweep.Escalated)
	assert.Equal(t, 1, sweep.Reminded)

	concern, err = env.concerns.GetByID(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	require.NotNil(t, concern.LastReminderAt)
	assert.Equal(t, env.clock.Now(), *concern.LastReminderAt)

	// An immediate follow-up sweep stays quiet: reminder cooldown.
	sweep, err = env.escalation.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sweep.Escalated)
	assert.Zero(t, sweep.Reminded)
	assert.Empty(t, sweep.Skipped)
}

func TestSweepJumpsToHighestCrossedLevel(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-sec", "Campus Security")
	env.addStudent(t, "stu-1")
	env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	// No department handlers and the admin is not cross-capable, so the
	// concern starts out unassigned and its clock runs from creation.
	result := env.submit(t, "stu-1", "dept-sec", "URGENT: danger in lab", "Exposed wiring in the chemistry lab.")
	require.True(t, result.Assignment.NoAssignee)

	thirtyHoursAgo := env.clock.Now().Add(-30 * time.Hour)
	env.setConcernTimes(t, result.Concern.ID, func(c *domain.Concern) {
		c.CreatedAt = thirtyHoursAgo
	})

	sweep, err := env.escalation.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Escalated)

	concern, err := env.concerns.GetByID(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	// 30h crosses staff (6h), dept head (12h) and admin (24h); a delayed
	// sweep lands on the highest crossed level, skipping intermediates.
	assert.Equal(t, domain.EscalationAdmin, concern.EscalationLevel)
	require.NotNil(t, concern.AssignedTo)
	assert.Equal(t, "h-admin", *concern.AssignedTo)
	assert.Equal(t, domain.ConcernStatusInProgress, concern.Status)
}

func TestSweepHonorsEscalationCooldown(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-sec", "Campus Security")
	env.addStudent(t, "stu-1")
	env.addHandler(t, "h-s1", "dept-sec", domain.HandlerRoleStaff, false)
	env.addHandler(t, "h-head", "dept-sec", domain.HandlerRoleDepartmentHead, false)

	result := env.submit(t, "stu-1", "dept-sec", "URGENT: gas smell", "Gas smell in the basement.")

	now := env.clock.Now()
	assignedAt := now.Add(-13 * time.Hour)
	recentEscalation := now.Add(-1 * time.Hour)
	env.setConcernTimes(t, result.Concern.ID, func(c *domain.Concern) {
		staff := "h-s1"
		c.AssignedTo = &staff
		c.AssignedAt = &assignedAt
		c.EscalationLevel = domain.EscalationStaff
		c.EscalatedAt = &recentEscalation
	})

	// Due for department head (13h > 12h) but escalated only an hour ago.
	sweep, err := env.escalation.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sweep.Escalated)
	require.Len(t, sweep.Skipped, 1)
	assert.Equal(t, "escalation cooldown", sweep.Skipped[0].Reason)

	staleEscalation := now.Add(-25 * time.Hour)
	env.setConcernTimes(t, result.Concern.ID, func(c *domain.Concern) {
		c.EscalatedAt = &staleEscalation
	})

	sweep, err = env.escalation.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Escalated)

	concern, err := env.concerns.GetByID(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationDepartmentHead, concern.EscalationLevel)
	require.NotNil(t, concern.AssignedTo)
	assert.Equal(t, "h-head", *concern.AssignedTo)
}

func TestSweepRecordsSkipWhenLevelPoolIsEmpty(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-sec", "Campus Security")
	env.addStudent(t, "stu-1")
	env.addHandler(t, "h-s1", "dept-sec", domain.HandlerRoleStaff, false)

	result := env.submit(t, "stu-1", "dept-sec", "URGENT: alarm fault", "Fire alarm keeps going off.")
	sevenHoursAgo := env.clock.Now().Add(-7 * time.Hour)
	env.setConcernTimes(t, result.Concern.ID, func(c *domain.Concern) {
		c.AssignedAt = &sevenHoursAgo
	})

	// The only in-department handler is the current assignee, so the
	// staff escalation pool is empty and the concern is skipped, not lost.
	sweep, err := env.escalation.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sweep.Escalated)
	require.Len(t, sweep.Skipped, 1)
	assert.Contains(t, sweep.Skipped[0].Reason, "no handler available")

	concern, err := env.concerns.GetByID(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationNone, concern.EscalationLevel)
	assert.Equal(t, "h-s1", *concern.AssignedTo)
}

func TestManualEscalateWalksTheLadder(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-sec", "Campus Security")
	env.addStudent(t, "stu-1")
	env.addHandler(t, "h-s1", "dept-sec", domain.HandlerRoleStaff, false)
	env.addHandler(t, "h-s2", "dept-sec", domain.HandlerRoleStaff, false)
	head := env.addHandler(t, "h-zhead", "dept-sec", domain.HandlerRoleDepartmentHead, false)
	env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-sec", "Broken gate", "The south gate will not close.")
	require.NotNil(t, result.Assignment.Handler)
	require.Equal(t, "h-s1", result.Assignment.Handler.ID)

	concern, err := env.escalation.ManualEscalate(context.Background(), head, result.Concern.ID, "handler unresponsive")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationStaff, concern.EscalationLevel)
	assert.Equal(t, "h-s2", *concern.AssignedTo)
	assert.Equal(t, "handler unresponsive", concern.EscalationReason)

	concern, err = env.escalation.ManualEscalate(context.Background(), head, result.Concern.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationDepartmentHead, concern.EscalationLevel)
	assert.Equal(t, "h-zhead", *concern.AssignedTo)

	concern, err = env.escalation.ManualEscalate(context.Background(), head, result.Concern.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationAdmin, concern.EscalationLevel)
	assert.Equal(t, "h-admin", *concern.AssignedTo)

	_, err = env.escalation.ManualEscalate(context.Background(), head, result.Concern.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestManualEscalateRequiresAuthority(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-sec", "Campus Security")
	env.addStudent(t, "stu-1")
	staff := env.addHandler(t, "h-s1", "dept-sec", domain.HandlerRoleStaff, false)
	env.addHandler(t, "h-s2", "dept-sec", domain.HandlerRoleStaff, false)

	result := env.submit(t, "stu-1", "dept-sec", "Broken gate", "The south gate will not close.")

	_, err := env.escalation.ManualEscalate(context.Background(), staff, result.Concern.ID, "please")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestEscalationEventsCarryIdentity(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-sec", "Campus Security")
	env.addStudent(t, "stu-1")
	env.addHandler(t, "h-s1", "dept-sec", domain.HandlerRoleStaff, false)
	env.addHandler(t, "h-s2", "dept-sec", domain.HandlerRoleStaff, false)

	var captured []events.Event
	capture := func(ctx context.Context, e events.Event) error {
		captured = append(captured, e)
		return nil
	}
	env.dispatcher.Subscribe(events.EventConcernEscalated, capture)
	env.dispatcher.Subscribe(events.EventConcernReminderSent, capture)

	result := env.submit(t, "stu-1", "dept-sec", "URGENT: broken lock", "The dorm entrance lock is broken.")
	sevenHoursAgo := env.clock.Now().Add(-7 * time.Hour)
	env.setConcernTimes(t, result.Concern.ID, func(c *domain.Concern) {
		c.AssignedAt = &sevenHoursAgo
	})

	_, err := env.escalation.RunSweep(context.Background())
	require.NoError(t, err)
	env.clock.Advance(3 * time.Hour)
	_, err = env.escalation.RunSweep(context.Background())
	require.NoError(t, err)

	require.Len(t, captured, 2)
	for _, event := range captured {
		assert.NotEmpty(t, event.ID, "event %s must carry an id", event.Type)
		assert.False(t, event.Timestamp.IsZero(), "event %s must carry a timestamp", event.Type)
	}
}
