package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/concern-service/internal/domain"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

func TestSubmitUrgentSafetyScenario(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-sec", "Campus Security")
	env.addStudent(t, "stu-1")
	env.addHandler(t, "h-s1", "dept-sec", domain.HandlerRoleStaff, false)
	head := env.addHandler(t, "h-head", "dept-sec", domain.HandlerRoleDepartmentHead, false)

	result := env.submit(t, "stu-1", "dept-sec", "URGENT: security threat near dorm", "Please send someone now.")

	assert.Equal(t, domain.ConcernPriorityUrgent, result.Analysis.Priority)
	assert.Equal(t, "safety", result.Analysis.Category)
	require.NotNil(t, result.Assignment.Handler)
	assert.Equal(t, "h-head", result.Assignment.Handler.ID) // equal workload, ID tie-break
	assert.False(t, result.Assignment.CrossDepartment)

	// Auto-assignment does not bypass approval: the concern stays pending.
	concern, err := env.concerns.GetByID(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConcernStatusPending, concern.Status)
	require.NotNil(t, concern.AssignedTo)
	assert.NotNil(t, concern.AssignedAt)

	approved, err := env.concernSvc.Approve(context.Background(), head, concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConcernStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, env.clock.Now(), *approved.ApprovedAt)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "h-head", *approved.ApprovedBy)
}

func TestSubmitReferenceNumbersAreMonotonic(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")

	first := env.submit(t, "stu-1", "dept-it", "Wifi down", "No connection in the library.")
	second := env.submit(t, "stu-1", "dept-it", "Portal login", "Cannot reset my password.")

	now := env.clock.Now()
	prefix := fmt.Sprintf("CNR%04d%02d", now.Year(), int(now.Month()))
	assert.Equal(t, prefix+"0001", first.Concern.ReferenceNumber)
	assert.Equal(t, prefix+"0002", second.Concern.ReferenceNumber)
}

func TestSubmitNoHandlersLeavesConcernUnassigned(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-fin", "Student Finance")
	env.addStudent(t, "stu-1")

	result := env.submit(t, "stu-1", "dept-fin", "Refund request", "Waiting for my tuition refund.")

	assert.True(t, result.Assignment.NoAssignee)
	concern, err := env.concerns.GetByID(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	assert.Nil(t, concern.AssignedTo)
	assert.Equal(t, domain.ConcernStatusPending, concern.Status)
}

func TestSubmitWidensToCrossDepartmentPool(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-fin", "Student Finance")
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	// No handlers in finance; one cross-capable handler elsewhere.
	env.addHandler(t, "h-it", "dept-it", domain.HandlerRoleStaff, true)

	result := env.submit(t, "stu-1", "dept-fin", "Billing issue", "Charged twice this semester.")

	require.NotNil(t, result.Assignment.Handler)
	assert.Equal(t, "h-it", result.Assignment.Handler.ID)
	assert.True(t, result.Assignment.CrossDepartment)

	record, err := env.crossDept.GetActiveByConcern(context.Background(), result.Concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrossDepartmentNormal, record.AssignmentType)
	assert.Equal(t, "dept-fin", record.RequestingDepartment)
}

func TestConcurrentSubmitsHoldCapacityCap(t *testing.T) {
	const capacity = 3
	env := newTestEnv(t, capacity)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addHandler(t, "h-only", "dept-it", domain.HandlerRoleStaff, false)
	for i := 0; i < 6; i++ {
		env.addStudent(t, fmt.Sprintf("stu-%d", i))
	}

	var wg sync.WaitGroup
	results := make([]*SubmitConcernResult, 6)
	errs := make([]error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.concernSvc.Submit(context.Background(), fmt.Sprintf("stu-%d", i), SubmitConcernInput{
				DepartmentID: "dept-it",
				Subject:      fmt.Sprintf("issue %d", i),
				Description:  "something is not working",
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "submit %d", i)
	}

	assigned := 0
	for _, result := range results {
		if result.Assignment.Handler != nil {
			assigned++
		} else {
			assert.True(t, result.Assignment.NoAssignee)
		}
	}
	assert.Equal(t, capacity, assigned)

	count, err := env.concerns.CountOpenByAssignee(context.Background(), "h-only")
	require.NoError(t, err)
	assert.Equal(t, capacity, count)
}

func TestRejectRequiresSubstantiveReason(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	head := env.addHandler(t, "h-head", "dept-it", domain.HandlerRoleDepartmentHead, false)

	result := env.submit(t, "stu-1", "dept-it", "Minor question", "Where is the help desk?")

	_, err := env.concernSvc.Reject(context.Background(), head, result.Concern.ID, "no")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	rejected, err := env.concernSvc.Reject(context.Background(), head, result.Concern.ID, "duplicate of an existing concern")
	require.NoError(t, err)
	assert.Equal(t, domain.ConcernStatusRejected, rejected.Status)
	assert.NotNil(t, rejected.RejectedAt)

	// Terminal: approval afterwards must fail.
	_, err = env.concernSvc.Approve(context.Background(), head, result.Concern.ID)
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))
}

func TestApproveRequiresDepartmentAuthority(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addDepartment(t, "dept-fin", "Student Finance")
	env.addStudent(t, "stu-1")
	staff := env.addHandler(t, "h-staff", "dept-it", domain.HandlerRoleStaff, false)
	otherHead := env.addHandler(t, "h-other", "dept-fin", domain.HandlerRoleDepartmentHead, false)
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-it", "Portal issue", "Cannot log in to the portal.")

	_, err := env.concernSvc.Approve(context.Background(), staff, result.Concern.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = env.concernSvc.Approve(context.Background(), otherHead, result.Concern.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	approved, err := env.concernSvc.Approve(context.Background(), admin, result.Concern.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConcernStatusApproved, approved.Status)
}

func TestUpdateStatusBlocksStudentReservedTargets(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	staff := env.addHandler(t, "h-staff", "dept-it", domain.HandlerRoleStaff, false)
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-it", "Portal issue", "Cannot log in to the portal.")
	_, err := env.concernSvc.Approve(context.Background(), admin, result.Concern.ID)
	require.NoError(t, err)
	_, err = env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusInProgress, "")
	require.NoError(t, err)
	_, err = env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusStaffResolved, "reset the account")
	require.NoError(t, err)

	_, err = env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusStudentConfirmed, "")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	_, err = env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusDisputed, "")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	staff := env.addHandler(t, "h-staff", "dept-it", domain.HandlerRoleStaff, false)

	result := env.submit(t, "stu-1", "dept-it", "Portal issue", "Cannot log in to the portal.")

	_, err := env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusStaffResolved, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))
}

func TestConfirmResolutionArchivesAndIsFinal(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	staff := env.addHandler(t, "h-staff", "dept-it", domain.HandlerRoleStaff, false)
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-it", "Portal issue", "Cannot log in to the portal.")
	_, err := env.concernSvc.Approve(context.Background(), admin, result.Concern.ID)
	require.NoError(t, err)
	_, err = env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusInProgress, "")
	require.NoError(t, err)
	_, err = env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusStaffResolved, "")
	require.NoError(t, err)

	// Only the owning student may confirm.
	env.addStudent(t, "stu-2")
	_, err = env.concernSvc.ConfirmResolution(context.Background(), "stu-2", result.Concern.ID, "", nil)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	rating := 5
	confirmed, err := env.concernSvc.ConfirmResolution(context.Background(), "stu-1", result.Concern.ID, "all good", &rating)
	require.NoError(t, err)
	assert.Equal(t, domain.ConcernStatusStudentConfirmed, confirmed.Status)
	assert.True(t, confirmed.Archived)
	assert.NotNil(t, confirmed.ArchivedAt)
	assert.NotNil(t, confirmed.ConfirmedAt)

	// Archived concerns no longer count toward workload.
	count, err := env.concerns.CountOpenByAssignee(context.Background(), "h-staff")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Confirming twice is an invalid-state error, not a silent no-op.
	_, err = env.concernSvc.ConfirmResolution(context.Background(), "stu-1", result.Concern.ID, "", nil)
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))
}

func TestDisputeReopensWithoutTouchingAssignment(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	staff := env.addHandler(t, "h-staff", "dept-it", domain.HandlerRoleStaff, false)
	admin := env.addHandler(t, "h-admin", "", domain.HandlerRoleAdmin, false)

	result := env.submit(t, "stu-1", "dept-it", "Portal issue", "Cannot log in to the portal.")
	_, err := env.concernSvc.Approve(context.Background(), admin, result.Concern.ID)
	require.NoError(t, err)
	_, err = env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusInProgress, "")
	require.NoError(t, err)
	_, err = env.concernSvc.UpdateStatus(context.Background(), staff, result.Concern.ID, domain.ConcernStatusStaffResolved, "")
	require.NoError(t, err)

	_, err = env.concernSvc.DisputeResolution(context.Background(), "stu-1", result.Concern.ID, "")
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	disputed, err := env.concernSvc.DisputeResolution(context.Background(), "stu-1", result.Concern.ID, "the login still fails")
	require.NoError(t, err)
	assert.Equal(t, domain.ConcernStatusDisputed, disputed.Status)
	assert.NotNil(t, disputed.DisputedAt)
	// A human acts next: assignment and escalation state stay unchanged.
	require.NotNil(t, disputed.AssignedTo)
	assert.Equal(t, "h-staff", *disputed.AssignedTo)
	assert.Equal(t, domain.EscalationNone, disputed.EscalationLevel)
	assert.False(t, disputed.Archived)
}

func TestManualAssignEnforcesCapAndRecordsAudit(t *testing.T) {
	env := newTestEnv(t, 1)
	env.addDepartment(t, "dept-it", "IT Services")
	env.addStudent(t, "stu-1")
	env.addStudent(t, "stu-2")
	env.addHandler(t, "h-a", "dept-it", domain.HandlerRoleStaff, false)
	env.addHandler(t, "h-b", "dept-it", domain.HandlerRoleStaff, false)
	head := env.addHandler(t, "h-head", "dept-it", domain.HandlerRoleDepartmentHead, false)

	first := env.submit(t, "stu-1", "dept-it", "First issue", "Something broke on the portal.")
	second := env.submit(t, "stu-2", "dept-it", "Second issue", "Another thing is off.")

	firstConcern, err := env.concerns.GetByID(context.Background(), first.Concern.ID)
	require.NoError(t, err)
	require.NotNil(t, firstConcern.AssignedTo)
	busy := *firstConcern.AssignedTo

	// The busy handler is at the cap of 1; manual assignment must refuse.
	_, err = env.concernSvc.Assign(context.Background(), head, second.Concern.ID, busy)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))

	// Reassigning the first concern to a fresh handler keeps the audit trail.
	env.addHandler(t, "h-c", "dept-it", domain.HandlerRoleStaff, false)
	env.clock.Advance(1)
	reassigned, err := env.concernSvc.Assign(context.Background(), head, first.Concern.ID, "h-c")
	require.NoError(t, err)
	assert.Equal(t, "h-c", *reassigned.AssignedTo)
	assert.Equal(t, env.clock.Now(), *reassigned.AssignedAt)

	history, err := env.history.ListByConcern(context.Background(), first.Concern.ID)
	require.NoError(t, err)
	var sawPrior bool
	for _, entry := range history {
		if entry.ChangeType == domain.ChangeTypeAssignee && entry.OldValue["assigned_to"] != nil {
			if prev, ok := entry.OldValue["assigned_to"].(*string); ok && prev != nil && *prev == busy {
				sawPrior = true
			}
		}
	}
	assert.True(t, sawPrior, "reassignment must record the prior handler")
}
