package repository

import (
	"context"

	"github.com/th-e-o/budgibot/internal/domain"
)

// DecisionLogRepository persists finalized validation decisions.
type DecisionLogRepository interface {
	Record(ctx context.Context, record domain.DecisionRecord) error
	List(ctx context.Context, limit int) ([]domain.DecisionRecord, error)
}
