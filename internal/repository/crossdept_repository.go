package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/concern-service/internal/domain"
)

// CrossDepartmentRepository stores cross-department assignment records.
type CrossDepartmentRepository interface {
	Create(ctx context.Context, assignment *domain.CrossDepartmentAssignment) error
	// Complete marks the assignment finished and stamps the actual duration.
	Complete(ctx context.Context, id string, completedAt time.Time) error
	ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.CrossDepartmentAssignment, error)
	GetActiveByConcern(ctx context.Context, concernID string) (*domain.CrossDepartmentAssignment, error)
}

type crossDepartmentRepository struct {
	pool *pgxpool.Pool
}

// NewCrossDepartmentRepository instantiates repository.
func NewCrossDepartmentRepository(pool *pgxpool.Pool) CrossDepartmentRepository {
	return &crossDepartmentRepository{pool: pool}
}

func (r *crossDepartmentRepository) Create(ctx context.Context, assignment *domain.CrossDepartmentAssignment) error {
	const query = `
        INSERT INTO cross_department_assignments
            (concern_id, requesting_department, handler_id, handler_department, assignment_type, status, estimated_duration_seconds)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		assignment.ConcernID,
		assignment.RequestingDepartment,
		assignment.HandlerID,
		assignment.HandlerDepartment,
		assignment.AssignmentType,
		assignment.Status,
		int64(assignment.EstimatedDuration.Seconds()),
	).Scan(&assignment.ID, &assignment.CreatedAt)
}

func (r *crossDepartmentRepository) Complete(ctx context.Context, id string, completedAt time.Time) error {
	const query = `
        UPDATE cross_department_assignments
        SET status=$1, completed_at=$2,
            actual_duration_seconds=EXTRACT(EPOCH FROM $2::timestamptz - created_at)
        WHERE id=$3 AND status=$4`
	cmd, err := r.pool.Exec(ctx, query, domain.CrossDepartmentCompleted, completedAt, id, domain.CrossDepartmentActive)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const crossDeptColumns = `id, concern_id, requesting_department, handler_id, handler_department,
       assignment_type, status, estimated_duration_seconds, actual_duration_seconds, created_at, completed_at`

func (r *crossDepartmentRepository) ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.CrossDepartmentAssignment, error) {
	query := `SELECT ` + crossDeptColumns + `
        FROM cross_department_assignments
        WHERE requesting_department=$1 AND status=$2 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, departmentID, domain.CrossDepartmentActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CrossDepartmentAssignment
	for rows.Next() {
		assignment, err := scanCrossDept(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *assignment)
	}
	return result, rows.Err()
}

func (r *crossDepartmentRepository) GetActiveByConcern(ctx context.Context, concernID string) (*domain.CrossDepartmentAssignment, error) {
	query := `SELECT ` + crossDeptColumns + `
        FROM cross_department_assignments
        WHERE concern_id=$1 AND status=$2
        ORDER BY created_at DESC LIMIT 1`
	rows, err := r.pool.Query(ctx, query, concernID, domain.CrossDepartmentActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	return scanCrossDept(rows)
}

func scanCrossDept(row pgx.Row) (*domain.CrossDepartmentAssignment, error) {
	var assignment domain.CrossDepartmentAssignment
	var estimatedSec int64
	var actualSec *int64
	if err := row.Scan(
		&assignment.ID,
		&assignment.ConcernID,
		&assignment.RequestingDepartment,
		&assignment.HandlerID,
		&assignment.HandlerDepartment,
		&assignment.AssignmentType,
		&assignment.Status,
		&estimatedSec,
		&actualSec,
		&assignment.CreatedAt,
		&assignment.CompletedAt,
	); err != nil {
		return nil, err
	}
	assignment.EstimatedDuration = time.Duration(estimatedSec) * time.Second
	if actualSec != nil {
		actual := time.Duration(*actualSec) * time.Second
		assignment.ActualDuration = &actual
	}
	return &assignment, nil
}
