package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

type StatusChange struct {
	From                  valueobject.TransactionStatus
	To                    valueobject.TransactionStatus
	Provider              string
	ProviderTransactionID string
	FailureReason         string
	At                    time.Time
}

// TransactionRepository - журнал только на добавление.
// UpdateStatus меняет статус атомарно и только из ожидаемого change.From.
type TransactionRepository interface {
	Append(ctx context.Context, tx *entity.Transaction) error
	UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.Transaction, error)
}
