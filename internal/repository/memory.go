package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/concern-service/internal/domain"
)

// In-memory repository implementations. They back the service when no
// POSTGRES_DSN is configured and give tests a store with the same
// semantics as the SQL implementations.

// MemoryConcernRepository is a mutex-guarded in-memory ConcernRepository.
type MemoryConcernRepository struct {
	mu       sync.RWMutex
	concerns map[string]domain.Concern
}

// NewMemoryConcernRepository creates an empty store.
func NewMemoryConcernRepository() *MemoryConcernRepository {
	return &MemoryConcernRepository{concerns: make(map[string]domain.Concern)}
}

func (r *MemoryConcernRepository) Create(ctx context.Context, concern *domain.Concern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	concern.ID = uuid.NewString()
	concern.CreatedAt = now
	concern.UpdatedAt = now
	r.concerns[concern.ID] = cloneConcern(*concern)
	return nil
}

func (r *MemoryConcernRepository) Update(ctx context.Context, concern *domain.Concern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.concerns[concern.ID]; !ok {
		return pgx.ErrNoRows
	}
	concern.UpdatedAt = time.Now()
	r.concerns[concern.ID] = cloneConcern(*concern)
	return nil
}

func (r *MemoryConcernRepository) GetByID(ctx context.Context, id string) (*domain.Concern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	concern, ok := r.concerns[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := cloneConcern(concern)
	return &copied, nil
}

func (r *MemoryConcernRepository) GetByReference(ctx context.Context, reference string) (*domain.Concern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, concern := range r.concerns {
		if concern.ReferenceNumber == reference {
			copied := cloneConcern(concern)
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryConcernRepository) ListWithFilter(ctx context.Context, filter ConcernFilter) ([]domain.Concern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Concern
	for _, concern := range r.concerns {
		if !matchesFilter(concern, filter) {
			continue
		}
		result = append(result, cloneConcern(concern))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryConcernRepository) ListForEscalation(ctx context.Context) ([]domain.Concern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Concern
	for _, concern := range r.concerns {
		if concern.Archived {
			continue
		}
		if !statusIn(concern.Status, escalatableStatuses) {
			continue
		}
		result = append(result, cloneConcern(concern))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryConcernRepository) ListOpenByDepartment(ctx context.Context, departmentID string) ([]domain.Concern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Concern
	for _, concern := range r.concerns {
		if concern.Archived || concern.DepartmentID != departmentID {
			continue
		}
		if !statusIn(concern.Status, openStatuses) {
			continue
		}
		result = append(result, cloneConcern(concern))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryConcernRepository) CountOpenByAssignee(ctx context.Context, handlerID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, concern := range r.concerns {
		if concern.Archived || concern.AssignedTo == nil || *concern.AssignedTo != handlerID {
			continue
		}
		if statusIn(concern.Status, openStatuses) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryConcernRepository) CountOpenByDepartment(ctx context.Context, departmentID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, concern := range r.concerns {
		if concern.Archived || concern.DepartmentID != departmentID {
			continue
		}
		if statusIn(concern.Status, openStatuses) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryConcernRepository) ResolutionStats(ctx context.Context) (map[string]time.Duration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := make(map[string]time.Duration)
	counts := make(map[string]int)
	for _, concern := range r.concerns {
		if concern.AssignedTo == nil || concern.AssignedAt == nil || concern.ResolvedAt == nil {
			continue
		}
		totals[*concern.AssignedTo] += concern.ResolvedAt.Sub(*concern.AssignedAt)
		counts[*concern.AssignedTo]++
	}
	stats := make(map[string]time.Duration, len(totals))
	for handlerID, total := range totals {
		stats[handlerID] = total / time.Duration(counts[handlerID])
	}
	return stats, nil
}

func matchesFilter(concern domain.Concern, filter ConcernFilter) bool {
	if !filter.IncludeArchived && concern.Archived {
		return false
	}
	if filter.StudentID != nil && concern.StudentID != *filter.StudentID {
		return false
	}
	if filter.DepartmentID != nil && concern.DepartmentID != *filter.DepartmentID {
		return false
	}
	if filter.AssignedTo != nil && (concern.AssignedTo == nil || *concern.AssignedTo != *filter.AssignedTo) {
		return false
	}
	if filter.Unassigned && concern.AssignedTo != nil {
		return false
	}
	if len(filter.Statuses) > 0 && !statusIn(concern.Status, filter.Statuses) {
		return false
	}
	if len(filter.Priorities) > 0 {
		found := false
		for _, priority := range filter.Priorities {
			if concern.Priority == priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.CreatedFrom != nil && concern.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && concern.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(concern.Subject), term) &&
			!strings.Contains(strings.ToLower(concern.Description), term) {
			return false
		}
	}
	return true
}

func statusIn(status domain.ConcernStatus, set []domain.ConcernStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}

func cloneConcern(concern domain.Concern) domain.Concern {
	copied := concern
	copied.FacilityID = clonePtr(concern.FacilityID)
	copied.AssignedTo = clonePtr(concern.AssignedTo)
	copied.ApprovedBy = clonePtr(concern.ApprovedBy)
	copied.ApprovedAt = clonePtr(concern.ApprovedAt)
	copied.RejectedAt = clonePtr(concern.RejectedAt)
	copied.AssignedAt = clonePtr(concern.AssignedAt)
	copied.ResolvedAt = clonePtr(concern.ResolvedAt)
	copied.ConfirmedAt = clonePtr(concern.ConfirmedAt)
	copied.DisputedAt = clonePtr(concern.DisputedAt)
	copied.ClosedAt = clonePtr(concern.ClosedAt)
	copied.EscalatedAt = clonePtr(concern.EscalatedAt)
	copied.ArchivedAt = clonePtr(concern.ArchivedAt)
	copied.LastReminderAt = clonePtr(concern.LastReminderAt)
	copied.Attachments = append([]domain.AttachmentReference(nil), concern.Attachments...)
	return copied
}

func clonePtr[T any](value *T) *T {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

// MemoryHandlerRepository is a mutex-guarded in-memory HandlerRepository.
type MemoryHandlerRepository struct {
	mu       sync.RWMutex
	handlers map[string]domain.Handler
}

// NewMemoryHandlerRepository creates an empty store.
func NewMemoryHandlerRepository() *MemoryHandlerRepository {
	return &MemoryHandlerRepository{handlers: make(map[string]domain.Handler)}
}

func (r *MemoryHandlerRepository) Create(ctx context.Context, handler *domain.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if handler.ID == "" {
		handler.ID = uuid.NewString()
	}
	handler.CreatedAt = now
	handler.UpdatedAt = now
	copied := *handler
	copied.DepartmentID = clonePtr(handler.DepartmentID)
	r.handlers[handler.ID] = copied
	return nil
}

func (r *MemoryHandlerRepository) Update(ctx context.Context, handler *domain.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[handler.ID]; !ok {
		return pgx.ErrNoRows
	}
	handler.UpdatedAt = time.Now()
	copied := *handler
	copied.DepartmentID = clonePtr(handler.DepartmentID)
	r.handlers[handler.ID] = copied
	return nil
}

func (r *MemoryHandlerRepository) GetByID(ctx context.Context, id string) (*domain.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := handler
	copied.DepartmentID = clonePtr(handler.DepartmentID)
	return &copied, nil
}

func (r *MemoryHandlerRepository) GetByEmail(ctx context.Context, email string) (*domain.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, handler := range r.handlers {
		if handler.Email == email {
			copied := handler
			copied.DepartmentID = clonePtr(handler.DepartmentID)
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryHandlerRepository) List(ctx context.Context, filter HandlerFilter) ([]domain.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Handler
	for _, handler := range r.handlers {
		if filter.DepartmentID != nil && !handler.InDepartment(*filter.DepartmentID) {
			continue
		}
		if filter.ExcludeDepartmentID != nil && handler.InDepartment(*filter.ExcludeDepartmentID) {
			continue
		}
		if len(filter.Roles) > 0 {
			found := false
			for _, role := range filter.Roles {
				if handler.Role == role {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.Active != nil && handler.Active != *filter.Active {
			continue
		}
		if filter.CrossDeptCapable != nil && handler.CrossDepartmentCapable != *filter.CrossDeptCapable {
			continue
		}
		copied := handler
		copied.DepartmentID = clonePtr(handler.DepartmentID)
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// MemoryStudentRepository is a mutex-guarded in-memory StudentRepository.
type MemoryStudentRepository struct {
	mu       sync.RWMutex
	students map[string]domain.Student
}

// NewMemoryStudentRepository creates an empty store.
func NewMemoryStudentRepository() *MemoryStudentRepository {
	return &MemoryStudentRepository{students: make(map[string]domain.Student)}
}

func (r *MemoryStudentRepository) Create(ctx context.Context, student *domain.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	r.students[student.ID] = *student
	return nil
}

func (r *MemoryStudentRepository) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	student, ok := r.students[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &student, nil
}

func (r *MemoryStudentRepository) GetByEmail(ctx context.Context, email string) (*domain.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, student := range r.students {
		if student.Email == email {
			copied := student
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// MemoryDepartmentRepository is a mutex-guarded in-memory DepartmentRepository.
type MemoryDepartmentRepository struct {
	mu          sync.RWMutex
	departments map[string]domain.Department
}

// NewMemoryDepartmentRepository creates an empty store.
func NewMemoryDepartmentRepository() *MemoryDepartmentRepository {
	return &MemoryDepartmentRepository{departments: make(map[string]domain.Department)}
}

func (r *MemoryDepartmentRepository) Create(ctx context.Context, department *domain.Department) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	department.CreatedAt = now
	department.UpdatedAt = now
	copied := *department
	copied.HeadID = clonePtr(department.HeadID)
	r.departments[department.ID] = copied
	return nil
}

func (r *MemoryDepartmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	department, ok := r.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := department
	copied.HeadID = clonePtr(department.HeadID)
	return &copied, nil
}

func (r *MemoryDepartmentRepository) ListActive(ctx context.Context) ([]domain.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Department
	for _, department := range r.departments {
		if !department.IsActive {
			continue
		}
		copied := department
		copied.HeadID = clonePtr(department.HeadID)
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// MemoryCrossDepartmentRepository is an in-memory CrossDepartmentRepository.
type MemoryCrossDepartmentRepository struct {
	mu          sync.RWMutex
	assignments map[string]domain.CrossDepartmentAssignment
}

// NewMemoryCrossDepartmentRepository creates an empty store.
func NewMemoryCrossDepartmentRepository() *MemoryCrossDepartmentRepository {
	return &MemoryCrossDepartmentRepository{assignments: make(map[string]domain.CrossDepartmentAssignment)}
}

func (r *MemoryCrossDepartmentRepository) Create(ctx context.Context, assignment *domain.CrossDepartmentAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignment.ID = uuid.NewString()
	assignment.CreatedAt = time.Now()
	r.assignments[assignment.ID] = *assignment
	return nil
}

func (r *MemoryCrossDepartmentRepository) Complete(ctx context.Context, id string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignment, ok := r.assignments[id]
	if !ok || assignment.Status != domain.CrossDepartmentActive {
		return pgx.ErrNoRows
	}
	actual := completedAt.Sub(assignment.CreatedAt)
	assignment.Status = domain.CrossDepartmentCompleted
	assignment.CompletedAt = &completedAt
	assignment.ActualDuration = &actual
	r.assignments[id] = assignment
	return nil
}

func (r *MemoryCrossDepartmentRepository) ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.CrossDepartmentAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.CrossDepartmentAssignment
	for _, assignment := range r.assignments {
		if assignment.RequestingDepartment == departmentID && assignment.Status == domain.CrossDepartmentActive {
			result = append(result, assignment)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryCrossDepartmentRepository) GetActiveByConcern(ctx context.Context, concernID string) (*domain.CrossDepartmentAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.CrossDepartmentAssignment
	for _, assignment := range r.assignments {
		if assignment.ConcernID != concernID || assignment.Status != domain.CrossDepartmentActive {
			continue
		}
		copied := assignment
		if latest == nil || copied.CreatedAt.After(latest.CreatedAt) {
			latest = &copied
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return latest, nil
}

// MemoryHistoryRepository is a mutex-guarded in-memory HistoryRepository.
type MemoryHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.ConcernHistory
}

// NewMemoryHistoryRepository creates an empty store.
func NewMemoryHistoryRepository() *MemoryHistoryRepository {
	return &MemoryHistoryRepository{}
}

func (r *MemoryHistoryRepository) Create(ctx context.Context, entry *domain.ConcernHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *MemoryHistoryRepository) ListByConcern(ctx context.Context, concernID string) ([]domain.ConcernHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.ConcernHistory
	for _, entry := range r.entries {
		if entry.ConcernID == concernID {
			result = append(result, entry)
		}
	}
	return result, nil
}
