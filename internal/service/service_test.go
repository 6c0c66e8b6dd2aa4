package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/concern-service/internal/config"
	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/events"
	"github.com/spec-kit/concern-service/internal/persistence"
	"github.com/spec-kit/concern-service/internal/repository"
)

// fakeClock gives tests a controllable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	concerns    *repository.MemoryConcernRepository
	handlers    *repository.MemoryHandlerRepository
	students    *repository.MemoryStudentRepository
	departments *repository.MemoryDepartmentRepository
	crossDept   *repository.MemoryCrossDepartmentRepository
	history     *repository.MemoryHistoryRepository
	dispatcher  events.Dispatcher
	clock       *fakeClock

	concernSvc *ConcernService
	escalation *EscalationService
	balance    *BalanceService
}

func newTestEnv(t *testing.T, capacity int) *testEnv {
	t.Helper()
	env := &testEnv{
		concerns:    repository.NewMemoryConcernRepository(),
		handlers:    repository.NewMemoryHandlerRepository(),
		students:    repository.NewMemoryStudentRepository(),
		departments: repository.NewMemoryDepartmentRepository(),
		crossDept:   repository.NewMemoryCrossDepartmentRepository(),
		history:     repository.NewMemoryHistoryRepository(),
		dispatcher:  events.NewInMemoryDispatcher(),
		clock:       newFakeClock(),
	}
	env.concernSvc = NewConcernService(ConcernDependencies{
		ConcernRepo:    env.concerns,
		HandlerRepo:    env.handlers,
		StudentRepo:    env.students,
		DepartmentRepo: env.departments,
		CrossDeptRepo:  env.crossDept,
		HistoryRepo:    env.history,
		Sequencer:      persistence.NewMemorySequencer(),
		Chat:           NewLoggingChatGateway(zap.NewNop()),
		Dispatcher:     env.dispatcher,
		Logger:         zap.NewNop(),
		CapacityCap:    capacity,
		Now:            env.clock.Now,
	})
	cfg := config.EscalationConfig{CapacityCap: capacity}
	env.escalation = NewEscalationService(EscalationDependencies{
		ConcernRepo:    env.concerns,
		HandlerRepo:    env.handlers,
		DepartmentRepo: env.departments,
		ConcernService: env.concernSvc,
		Dispatcher:     env.dispatcher,
		Logger:         zap.NewNop(),
		Config:         cfg,
		Now:            env.clock.Now,
	})
	env.balance = NewBalanceService(BalanceDependencies{
		ConcernRepo:    env.concerns,
		HandlerRepo:    env.handlers,
		DepartmentRepo: env.departments,
		ConcernService: env.concernSvc,
		Dispatcher:     env.dispatcher,
		Logger:         zap.NewNop(),
		Config:         cfg,
		Now:            env.clock.Now,
	})
	return env
}

func (e *testEnv) addDepartment(t *testing.T, id, name string) {
	t.Helper()
	err := e.departments.Create(context.Background(), &domain.Department{ID: id, Name: name, IsActive: true})
	require.NoError(t, err)
}

func (e *testEnv) addStudent(t *testing.T, id string) {
	t.Helper()
	err := e.students.Create(context.Background(), &domain.Student{
		ID:     id,
		Name:   "Student " + id,
		Email:  id + "@campus.test",
		Active: true,
	})
	require.NoError(t, err)
}

func (e *testEnv) addHandler(t *testing.T, id, departmentID string, role domain.HandlerRole, crossCapable bool) *domain.Handler {
	t.Helper()
	handler := &domain.Handler{
		ID:                     id,
		Name:                   "Handler " + id,
		Email:                  id + "@campus.test",
		Role:                   role,
		Active:                 true,
		CrossDepartmentCapable: crossCapable,
	}
	if departmentID != "" {
		handler.DepartmentID = &departmentID
	}
	err := e.handlers.Create(context.Background(), handler)
	require.NoError(t, err)
	return handler
}

// setConcernTimes rewrites timing fields directly in the store, bypassing
// the service, so tests can age a concern.
func (e *testEnv) setConcernTimes(t *testing.T, concernID string, mutate func(*domain.Concern)) *domain.Concern {
	t.Helper()
	concern, err := e.concerns.GetByID(context.Background(), concernID)
	require.NoError(t, err)
	mutate(concern)
	require.NoError(t, e.concerns.Update(context.Background(), concern))
	return concern
}

func (e *testEnv) submit(t *testing.T, studentID, departmentID, subject, description string) *SubmitConcernResult {
	t.Helper()
	result, err := e.concernSvc.Submit(context.Background(), studentID, SubmitConcernInput{
		DepartmentID: departmentID,
		Subject:      subject,
		Description:  description,
	})
	require.NoError(t, err)
	return result
}
