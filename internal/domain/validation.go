package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the user's decision on a single pending operation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRefused  Status = "refused"
)

// DecisionRecord captures the outcome of one finalized validation batch for
// the audit log.
type DecisionRecord struct {
	ID             uuid.UUID `json:"id"`
	Accepted       []string  `json:"accepted"`
	Refused        []string  `json:"refused"`
	OperationCount int       `json:"operation_count"`
	DecidedAt      time.Time `json:"decided_at"`
}

// NewDecisionRecord builds a record for a freshly confirmed batch.
func NewDecisionRecord(accepted, refused []string) DecisionRecord {
	return DecisionRecord{
		ID:             uuid.New(),
		Accepted:       append([]string(nil), accepted...),
		Refused:        append([]string(nil), refused...),
		OperationCount: len(accepted) + len(refused),
		DecidedAt:      time.Now().UTC(),
	}
}
