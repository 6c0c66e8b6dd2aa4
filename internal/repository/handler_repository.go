package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/concern-service/internal/domain"
)

// HandlerFilter captures handler pool queries.
type HandlerFilter struct {
	DepartmentID        *string
	ExcludeDepartmentID *string
	Roles               []domain.HandlerRole
	Active              *bool
	CrossDeptCapable    *bool
	Limit               int
}

// HandlerRepository encapsulates handler persistence.
type HandlerRepository interface {
	Create(ctx context.Context, handler *domain.Handler) error
	Update(ctx context.Context, handler *domain.Handler) error
	GetByID(ctx context.Context, id string) (*domain.Handler, error)
	GetByEmail(ctx context.Context, email string) (*domain.Handler, error)
	List(ctx context.Context, filter HandlerFilter) ([]domain.Handler, error)
}

type handlerRepository struct {
	pool *pgxpool.Pool
}

// NewHandlerRepository instantiates repository.
func NewHandlerRepository(pool *pgxpool.Pool) HandlerRepository {
	return &handlerRepository{pool: pool}
}

const handlerColumns = `id, name, email, password_hash, role, department_id, cross_department_capable, active, created_at, updated_at`

func (r *handlerRepository) Create(ctx context.Context, handler *domain.Handler) error {
	const query = `
        INSERT INTO handlers (name, email, password_hash, role, department_id, cross_department_capable, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		handler.Name,
		handler.Email,
		handler.PasswordHash,
		handler.Role,
		handler.DepartmentID,
		handler.CrossDepartmentCapable,
		handler.Active,
	).Scan(&handler.ID, &handler.CreatedAt, &handler.UpdatedAt)
}

func (r *handlerRepository) Update(ctx context.Context, handler *domain.Handler) error {
	const query = `
        UPDATE handlers SET name=$1, email=$2, password_hash=$3, role=$4, department_id=$5,
            cross_department_capable=$6, active=$7, updated_at=NOW()
        WHERE id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		handler.Name,
		handler.Email,
		handler.PasswordHash,
		handler.Role,
		handler.DepartmentID,
		handler.CrossDepartmentCapable,
		handler.Active,
		handler.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *handlerRepository) GetByID(ctx context.Context, id string) (*domain.Handler, error) {
	query := fmt.Sprintf(`SELECT %s FROM handlers WHERE id=$1`, handlerColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *handlerRepository) GetByEmail(ctx context.Context, email string) (*domain.Handler, error) {
	query := fmt.Sprintf(`SELECT %s FROM handlers WHERE email=$1`, handlerColumns)
	return r.fetchSingle(ctx, query, email)
}

func (r *handlerRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Handler, error) {
	var handler domain.Handler
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&handler.ID,
		&handler.Name,
		&handler.Email,
		&handler.PasswordHash,
		&handler.Role,
		&handler.DepartmentID,
		&handler.CrossDepartmentCapable,
		&handler.Active,
		&handler.CreatedAt,
		&handler.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &handler, nil
}

func (r *handlerRepository) List(ctx context.Context, filter HandlerFilter) ([]domain.Handler, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.ExcludeDepartmentID != nil {
		args = append(args, *filter.ExcludeDepartmentID)
		clauses = append(clauses, fmt.Sprintf("(department_id IS NULL OR department_id<>$%d)", len(args)))
	}
	if len(filter.Roles) > 0 {
		placeholders := make([]string, len(filter.Roles))
		for i, role := range filter.Roles {
			args = append(args, role)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("role IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active=$%d", len(args)))
	}
	if filter.CrossDeptCapable != nil {
		args = append(args, *filter.CrossDeptCapable)
		clauses = append(clauses, fmt.Sprintf("cross_department_capable=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`SELECT %s FROM handlers WHERE %s ORDER BY id ASC LIMIT %d`,
		handlerColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Handler
	for rows.Next() {
		var handler domain.Handler
		if err := rows.Scan(
			&handler.ID,
			&handler.Name,
			&handler.Email,
			&handler.PasswordHash,
			&handler.Role,
			&handler.DepartmentID,
			&handler.CrossDepartmentCapable,
			&handler.Active,
			&handler.CreatedAt,
			&handler.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, handler)
	}
	return result, rows.Err()
}
