package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// ErrVersionConflict - запись изменена параллельно, нужно перечитать и повторить.
var ErrVersionConflict = apperror.New(apperror.ErrCodeConflict, "запись была изменена параллельно")

// ProjectRepository хранит агрегат проекта вместе с этапами.
// Update применяет изменения только если версия в хранилище совпадает с project.Version,
// после успеха project.Version увеличивается.
type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) error
	Update(ctx context.Context, project *entity.Project) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Project, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, filter ProjectFilter) ([]*entity.Project, error)
	// ListAwaitingReview возвращает проекты в работе (ACTIVE или DISPUTED) со сданными этапами.
	ListAwaitingReview(ctx context.Context, limit int) ([]*entity.Project, error)
}

type ProjectFilter struct {
	Status string
	Limit  int
	Offset int
}
