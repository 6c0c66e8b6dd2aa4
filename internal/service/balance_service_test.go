package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/events"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

func TestDepartmentLoadsFlagsPressure(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-hot", "Student Finance")
	env.addDepartment(t, "dept-cold", "Library")
	env.addDepartment(t, "dept-empty", "Archives")
	env.addHandler(t, "h-hot", "dept-hot", domain.HandlerRoleStaff, false)
	env.addHandler(t, "h-cold", "dept-cold", domain.HandlerRoleStaff, false)
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("stu-%d", i)
		env.addStudent(t, id)
		env.submit(t, id, "dept-hot", fmt.Sprintf("Backlog item %d", i), "Waiting a long time for an answer.")
	}
	env.addStudent(t, "stu-empty")
	env.submit(t, "stu-empty", "dept-empty", "Lost record", "My enrollment record is missing.")

	loads, err := env.balance.DepartmentLoads(context.Background())
	require.NoError(t, err)
	require.Len(t, loads, 3)

	byID := make(map[string]DepartmentLoad, len(loads))
	for _, load := range loads {
		byID[load.DepartmentID] = load
	}

	hot := byID["dept-hot"]
	assert.Equal(t, 6, hot.OpenConcerns)
	assert.Equal(t, 1, hot.ActiveStaff)
	assert.InDelta(t, 6.0, hot.LoadRatio, 0.001)
	assert.True(t, hot.Overloaded)
	assert.False(t, hot.Underloaded)

	cold := byID["dept-cold"]
	assert.Zero(t, cold.OpenConcerns)
	assert.True(t, cold.Underloaded)
	assert.False(t, cold.Overloaded)

	// Open concerns with nobody to work them: overloaded regardless of ratio.
	empty := byID["dept-empty"]
	assert.Zero(t, empty.ActiveStaff)
	assert.Equal(t, 1, empty.OpenConcerns)
	assert.True(t, empty.Overloaded)

	// Sorted by pressure, worst first.
	assert.Equal(t, "dept-hot", loads[0].DepartmentID)
}

func TestRebalanceProposalsAreAdvisory(t *testing.T) {
	env := newTestEnv(t, 2)
	env.addDepartment(t, "dept-hot", "Student Finance")
	env.addDepartment(t, "dept-it", "IT Services")
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("stu-%d", i)
		env.addStudent(t, id)
		env.submit(t, id, "dept-hot", fmt.Sprintf("Backlog item %d", i), "Waiting a long time for an answer.")
		env.clock.Advance(1)
	}
	// Helpers arrive after the backlog formed, so nothing auto-assigned.
	env.addHandler(t, "h-a", "dept-it", domain.HandlerRoleStaff, true)
	env.addHandler(t, "h-b", "dept-it", domain.HandlerRoleStaff, true)

	proposals, err := env.balance.Rebalance(context.Background(), "dept-hot")
	require.NoError(t, err)
	// Two handlers with capacity 2 each: at most four proposals, and no
	// handler proposed past the cap.
	require.Len(t, proposals, 4)
	perHandler := map[string]int{}
	for _, p := range proposals {
		perHandler[p.HandlerID]++
	}
	assert.Equal(t, 2, perHandler["h-a"])
	assert.Equal(t, 2, perHandler["h-b"])

	// Oldest concerns first.
	first, err := env.concerns.GetByID(context.Background(), proposals[0].ConcernID)
	require.NoError(t, err)
	second, err := env.concerns.GetByID(context.Background(), proposals[1].ConcernID)
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Before(second.CreatedAt) || first.CreatedAt.Equal(second.CreatedAt))

	// Advisory only: nothing is assigned until a proposal is executed.
	for _, p := range proposals {
		concern, err := env.concerns.GetByID(context.Background(), p.ConcernID)
		require.NoError(t, err)
		assert.Nil(t, concern.AssignedTo)
	}
}

func TestExecuteProposalAssignsAcrossDepartments(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-hot", "Student Finance")
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-hot", "Refund delay", "Still waiting on my refund.")
	require.True(t, result.Assignment.NoAssignee)
	handler := env.addHandler(t, "h-it", "dept-it", domain.HandlerRoleStaff, true)

	concern, err := env.balance.ExecuteProposal(context.Background(), admin, result.Concern.ID, handler.ID)
	require.NoError(t, err)
	require.NotNil(t, concern.AssignedTo)
	assert.Equal(t, "h-it", *concern.AssignedTo)

	record, err := env.crossDept.GetActiveByConcern(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrossDepartmentNormal, record.AssignmentType)
	assert.Equal(t, domain.CrossDepartmentActive, record.Status)
	assert.Equal(t, "dept-hot", record.RequestingDepartment)
}

func TestExecuteProposalRejectsIneligibleHandlers(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-hot", "Student Finance")
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	env.addHandler(t, "h-local", "dept-hot", domain.HandlerRoleStaff, true)
	env.addHandler(t, "h-plain", "dept-it", domain.HandlerRoleStaff, false)
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-hot", "Refund delay", "Still waiting on my refund.")

	// Not cross-department capable.
	_, err := env.balance.ExecuteProposal(context.Background(), admin, result.Concern.ID, "h-plain")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))

	// Already in the concern's own department.
	_, err = env.balance.ExecuteProposal(context.Background(), admin, result.Concern.ID, "h-local")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestActivateEmergencyIgnoresCapacity(t *testing.T) {
	env := newTestEnv(t, 1)
	env.addDepartment(t, "dept-hot", "Student Finance")
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	env.addStudent(t, "stu-2")
	env.addHandler(t, "h-it", "dept-it", domain.HandlerRoleStaff, true)
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	// Saturate the only cross-capable handler to its cap of 1.
	busy := env.submit(t, "stu-2", "dept-it", "Wifi down", "No network in the dorms.")
	require.NotNil(t, busy.Assignment.Handler)
	require.Equal(t, "h-it", busy.Assignment.Handler.ID)

	result := env.submit(t, "stu-1", "dept-hot", "Payment failure", "Tuition payment keeps bouncing.")
	require.True(t, result.Assignment.NoAssignee)

	concern, handler, err := env.balance.ActivateEmergency(
		context.Background(), admin, result.Concern.ID, "finance outage affecting many students", "")
	require.NoError(t, err)
	require.NotNil(t, handler)
	assert.Equal(t, "h-it", handler.ID)
	assert.Equal(t, domain.ConcernPriorityUrgent, concern.Priority)
	assert.Equal(t, domain.ConcernStatusInProgress, concern.Status)
	require.NotNil(t, concern.AssignedTo)
	assert.Equal(t, "h-it", *concern.AssignedTo)

	record, err := env.crossDept.GetActiveByConcern(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrossDepartmentEmergency, record.AssignmentType)
	assert.Equal(t, 2*time.Hour, record.EstimatedDuration)
}

func TestActivateEmergencyRequiresReason(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-hot", "Student Finance")
	env.addStudent(t, "stu-1")
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-hot", "Refund delay", "Still waiting on my refund.")

	_, _, err := env.balance.ActivateEmergency(context.Background(), admin, result.Concern.ID, "", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestRebalanceCoversDeepBacklog(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-hot", "Student Finance")
	env.addDepartment(t, "dept-it", "IT Services")

	var oldest string
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("stu-%d", i)
		env.addStudent(t, id)
		result := env.submit(t, id, "dept-hot", fmt.Sprintf("Backlog item %d", i), "Waiting a long time for an answer.")
		if i == 0 {
			oldest = result.Concern.ID
		}
	}
	tenDaysAgo := env.clock.Now().Add(-240 * time.Hour)
	env.setConcernTimes(t, oldest, func(c *domain.Concern) {
		c.CreatedAt = tenDaysAgo
	})
	env.addHandler(t, "h-a", "dept-it", domain.HandlerRoleStaff, true)

	proposals, err := env.balance.Rebalance(context.Background(), "dept-hot")
	require.NoError(t, err)
	// One handler with ten free slots: ten proposals, and the backlog is
	// considered in full, so the oldest concern leads the proposal set.
	require.Len(t, proposals, 10)
	assert.Equal(t, oldest, proposals[0].ConcernID)
}

func TestEmergencyEventCarriesIdentity(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-hot", "Student Finance")
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-hot", "Payment failure", "Tuition payment keeps bouncing.")
	env.addHandler(t, "h-it", "dept-it", domain.HandlerRoleStaff, true)

	var captured []events.Event
	env.dispatcher.Subscribe(events.EventEmergencyActivated, func(ctx context.Context, e events.Event) error {
		captured = append(captured, e)
		return nil
	})

	_, _, err := env.balance.ActivateEmergency(
		context.Background(), admin, result.Concern.ID, "finance outage affecting many students", "")
	require.NoError(t, err)

	require.Len(t, captured, 1)
	assert.NotEmpty(t, captured[0].ID)
	assert.Equal(t, env.clock.Now(), captured[0].Timestamp)
}
