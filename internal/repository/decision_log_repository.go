package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/th-e-o/budgibot/internal/domain"
)

// decisionLogRepository implements DecisionLogRepository on Postgres.
type decisionLogRepository struct {
	pool *pgxpool.Pool
}

// NewDecisionLogRepository creates a new decision log repository
func NewDecisionLogRepository(pool *pgxpool.Pool) DecisionLogRepository {
	return &decisionLogRepository{pool: pool}
}

// Record appends one finalized batch decision.
func (r *decisionLogRepository) Record(ctx context.Context, record domain.DecisionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO validation_decisions (id, accepted, refused, operation_count, decided_at)
		VALUES ($1, $2, $3, $4, $5)`,
		record.ID, record.Accepted, record.Refused, record.OperationCount, record.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record validation decision: %w", err)
	}
	return nil
}

// List retrieves the most recent decisions, newest first.
func (r *decisionLogRepository) List(ctx context.Context, limit int) ([]domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, accepted, refused, operation_count, decided_at
		FROM validation_decisions
		ORDER BY decided_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list validation decisions: %w", err)
	}
	defer rows.Close()

	var records []domain.DecisionRecord
	for rows.Next() {
		var record domain.DecisionRecord
		if err := rows.Scan(&record.ID, &record.Accepted, &record.Refused, &record.OperationCount, &record.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan validation decision: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate validation decisions: %w", err)
	}
	return records, nil
}
