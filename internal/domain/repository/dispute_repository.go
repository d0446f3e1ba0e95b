package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// DisputeRepository допускает не более одного открытого спора на этап:
// Create возвращает ошибку конфликта, если такой спор уже есть.
type DisputeRepository interface {
	Create(ctx context.Context, dispute *entity.Dispute) error
	Update(ctx context.Context, dispute *entity.Dispute) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Dispute, error)
	FindOpenByMilestone(ctx context.Context, milestoneID uuid.UUID) (*entity.Dispute, error)
	LatestByRaiser(ctx context.Context, milestoneID, raisedBy uuid.UUID) (*entity.Dispute, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.Dispute, error)
	ListByStatus(ctx context.Context, status valueobject.DisputeStatus, limit int) ([]*entity.Dispute, error)
	CountOpenByProject(ctx context.Context, projectID uuid.UUID) (int, error)
}
