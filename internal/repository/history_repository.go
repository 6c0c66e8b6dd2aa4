package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/concern-service/internal/domain"
)

// HistoryRepository stores the append-only concern audit trail.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.ConcernHistory) error
	ListByConcern(ctx context.Context, concernID string) ([]domain.ConcernHistory, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository instantiates repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Create(ctx context.Context, entry *domain.ConcernHistory) error {
	oldValue, err := json.Marshal(entry.OldValue)
	if err != nil {
		return err
	}
	newValue, err := json.Marshal(entry.NewValue)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO concern_history (concern_id, changed_by_type, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.ConcernID,
		entry.ChangedByType,
		entry.ChangedByID,
		entry.ChangeType,
		oldValue,
		newValue,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *historyRepository) ListByConcern(ctx context.Context, concernID string) ([]domain.ConcernHistory, error) {
	const query = `
        SELECT id, concern_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM concern_history WHERE concern_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, concernID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ConcernHistory
	for rows.Next() {
		var entry domain.ConcernHistory
		var oldValue, newValue []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.ConcernID,
			&entry.ChangedByType,
			&entry.ChangedByID,
			&entry.ChangeType,
			&oldValue,
			&newValue,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(oldValue) > 0 {
			if err := json.Unmarshal(oldValue, &entry.OldValue); err != nil {
				return nil, err
			}
		}
		if len(newValue) > 0 {
			if err := json.Unmarshal(newValue, &entry.NewValue); err != nil {
				return nil, err
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
