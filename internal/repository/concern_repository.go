package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/concern-service/internal/domain"
)

// ConcernFilter captures listing parameters.
type ConcernFilter struct {
	StudentID       *string
	DepartmentID    *string
	AssignedTo      *string
	Statuses        []domain.ConcernStatus
	Priorities      []domain.ConcernPriority
	IncludeArchived bool
	Unassigned      bool
	SearchTerm      *string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Limit           int
	Offset          int
}

// ConcernRepository encapsulates concern persistence.
type ConcernRepository interface {
	Create(ctx context.Context, concern *domain.Concern) error
	Update(ctx context.Context, concern *domain.Concern) error
	GetByID(ctx context.Context, id string) (*domain.Concern, error)
	GetByReference(ctx context.Context, reference string) (*domain.Concern, error)
	ListWithFilter(ctx context.Context, filter ConcernFilter) ([]domain.Concern, error)
	// ListForEscalation returns concerns still waiting on handler action:
	// not archived and in a status the escalation sweep may act on.
	ListForEscalation(ctx context.Context) ([]domain.Concern, error)
	// ListOpenByDepartment returns a department's entire open backlog,
	// oldest first, unpaginated. Rebalancing needs the whole queue.
	ListOpenByDepartment(ctx context.Context, departmentID string) ([]domain.Concern, error)
	// CountOpenByAssignee is the handler's derived workload.
	CountOpenByAssignee(ctx context.Context, handlerID string) (int, error)
	CountOpenByDepartment(ctx context.Context, departmentID string) (int, error)
	// ResolutionStats returns the average assignment-to-resolution duration
	// per handler, over concerns that reached resolution.
	ResolutionStats(ctx context.Context) (map[string]time.Duration, error)
}

var escalatableStatuses = []domain.ConcernStatus{
	domain.ConcernStatusPending,
	domain.ConcernStatusApproved,
	domain.ConcernStatusInProgress,
}

var openStatuses = []domain.ConcernStatus{
	domain.ConcernStatusPending,
	domain.ConcernStatusApproved,
	domain.ConcernStatusInProgress,
	domain.ConcernStatusStaffResolved,
	domain.ConcernStatusDisputed,
}

type concernRepository struct {
	pool *pgxpool.Pool
}

// NewConcernRepository instantiates repository.
func NewConcernRepository(pool *pgxpool.Pool) ConcernRepository {
	return &concernRepository{pool: pool}
}

const concernColumns = `id, reference_number, student_id, department_id, facility_id, assigned_to, approved_by,
       subject, description, category, priority, status, escalation_level, escalation_reason,
       archived, attachments, created_at, updated_at, approved_at, rejected_at, assigned_at,
       resolved_at, confirmed_at, disputed_at, closed_at, escalated_at, archived_at, last_reminder_at`

func (r *concernRepository) Create(ctx context.Context, concern *domain.Concern) error {
	attachments, err := json.Marshal(concern.Attachments)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO concerns (reference_number, student_id, department_id, facility_id, assigned_to, approved_by,
            subject, description, category, priority, status, escalation_level, escalation_reason, archived,
            attachments, assigned_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		concern.ReferenceNumber,
		concern.StudentID,
		concern.DepartmentID,
		concern.FacilityID,
		concern.AssignedTo,
		concern.ApprovedBy,
		concern.Subject,
		concern.Description,
		concern.Category,
		concern.Priority,
		concern.Status,
		concern.EscalationLevel,
		concern.EscalationReason,
		concern.Archived,
		attachments,
		concern.AssignedAt,
	).Scan(&concern.ID, &concern.CreatedAt, &concern.UpdatedAt)
}

func (r *concernRepository) Update(ctx context.Context, concern *domain.Concern) error {
	attachments, err := json.Marshal(concern.Attachments)
	if err != nil {
		return err
	}
	const query = `
        UPDATE concerns SET department_id=$1, facility_id=$2, assigned_to=$3, approved_by=$4, subject=$5,
            description=$6, category=$7, priority=$8, status=$9, escalation_level=$10, escalation_reason=$11,
            archived=$12, attachments=$13, approved_at=$14, rejected_at=$15, assigned_at=$16, resolved_at=$17,
            confirmed_at=$18, disputed_at=$19, closed_at=$20, escalated_at=$21, archived_at=$22,
            last_reminder_at=$23, updated_at=NOW()
        WHERE id=$24`
	cmd, err := r.pool.Exec(ctx, query,
		concern.DepartmentID,
		concern.FacilityID,
		concern.AssignedTo,
		concern.ApprovedBy,
		concern.Subject,
		concern.Description,
		concern.Category,
		concern.Priority,
		concern.Status,
		concern.EscalationLevel,
		concern.EscalationReason,
		concern.Archived,
		attachments,
		concern.ApprovedAt,
		concern.RejectedAt,
		concern.AssignedAt,
		concern.ResolvedAt,
		concern.ConfirmedAt,
		concern.DisputedAt,
		concern.ClosedAt,
		concern.EscalatedAt,
		concern.ArchivedAt,
		concern.LastReminderAt,
		concern.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *concernRepository) GetByID(ctx context.Context, id string) (*domain.Concern, error) {
	query := fmt.Sprintf(`SELECT %s FROM concerns WHERE id=$1`, concernColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *concernRepository) GetByReference(ctx context.Context, reference string) (*domain.Concern, error) {
	query := fmt.Sprintf(`SELECT %s FROM concerns WHERE reference_number=$1`, concernColumns)
	return r.fetchSingle(ctx, query, reference)
}

func (r *concernRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Concern, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	return scanConcern(row)
}

func (r *concernRepository) ListWithFilter(ctx context.Context, filter ConcernFilter) ([]domain.Concern, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.IncludeArchived {
		clauses = append(clauses, "archived=FALSE")
	}
	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM concerns WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		concernColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConcerns(rows)
}

func (r *concernRepository) ListForEscalation(ctx context.Context) ([]domain.Concern, error) {
	placeholders := make([]string, len(escalatableStatuses))
	args := make([]any, len(escalatableStatuses))
	for i, status := range escalatableStatuses {
		args[i] = status
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`SELECT %s FROM concerns WHERE archived=FALSE AND status IN (%s) ORDER BY created_at ASC`,
		concernColumns, strings.Join(placeholders, ","))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConcerns(rows)
}

func (r *concernRepository) ListOpenByDepartment(ctx context.Context, departmentID string) ([]domain.Concern, error) {
	placeholders := make([]string, len(openStatuses))
	args := []any{departmentID}
	for i, status := range openStatuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`SELECT %s FROM concerns WHERE archived=FALSE AND department_id=$1 AND status IN (%s) ORDER BY created_at ASC`,
		concernColumns, strings.Join(placeholders, ","))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConcerns(rows)
}

func (r *concernRepository) CountOpenByAssignee(ctx context.Context, handlerID string) (int, error) {
	return r.countOpen(ctx, "assigned_to", handlerID)
}

func (r *concernRepository) CountOpenByDepartment(ctx context.Context, departmentID string) (int, error) {
	return r.countOpen(ctx, "department_id", departmentID)
}

func (r *concernRepository) countOpen(ctx context.Context, column, value string) (int, error) {
	placeholders := make([]string, len(openStatuses))
	args := []any{value}
	for i, status := range openStatuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM concerns WHERE archived=FALSE AND %s=$1 AND status IN (%s)`,
		column, strings.Join(placeholders, ","))
	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *concernRepository) ResolutionStats(ctx context.Context) (map[string]time.Duration, error) {
	const query = `
        SELECT assigned_to, AVG(EXTRACT(EPOCH FROM resolved_at - assigned_at))
        FROM concerns
        WHERE assigned_to IS NOT NULL AND assigned_at IS NOT NULL AND resolved_at IS NOT NULL
        GROUP BY assigned_to`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]time.Duration)
	for rows.Next() {
		var handlerID string
		var seconds float64
		if err := rows.Scan(&handlerID, &seconds); err != nil {
			return nil, err
		}
		stats[handlerID] = time.Duration(seconds * float64(time.Second))
	}
	return stats, rows.Err()
}

func scanConcerns(rows pgx.Rows) ([]domain.Concern, error) {
	var result []domain.Concern
	for rows.Next() {
		concern, err := scanConcern(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *concern)
	}
	return result, rows.Err()
}

func scanConcern(row pgx.Row) (*domain.Concern, error) {
	var concern domain.Concern
	var attachments []byte
	if err := row.Scan(
		&concern.ID,
		&concern.ReferenceNumber,
		&concern.StudentID,
		&concern.DepartmentID,
		&concern.FacilityID,
		&concern.AssignedTo,
		&concern.ApprovedBy,
		&concern.Subject,
		&concern.Description,
		&concern.Category,
		&concern.Priority,
		&concern.Status,
		&concern.EscalationLevel,
		&concern.EscalationReason,
		&concern.Archived,
		&attachments,
		&concern.CreatedAt,
		&concern.UpdatedAt,
		&concern.ApprovedAt,
		&concern.RejectedAt,
		&concern.AssignedAt,
		&concern.ResolvedAt,
		&concern.ConfirmedAt,
		&concern.DisputedAt,
		&concern.ClosedAt,
		&concern.EscalatedAt,
		&concern.ArchivedAt,
		&concern.LastReminderAt,
	); err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &concern.Attachments); err != nil {
			return nil, err
		}
	}
	return &concern, nil
}
