package project

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
)

type GetProjectUseCase struct {
	projects repository.ProjectRepository
}

func NewGetProjectUseCase(projects repository.ProjectRepository) *GetProjectUseCase {
	return &GetProjectUseCase{projects: projects}
}

func (uc *GetProjectUseCase) Execute(ctx context.Context, projectID uuid.UUID, actor valueobject.Actor) (*entity.Project, error) {
	return loadForParticipant(ctx, uc.projects, projectID, actor)
}

type ListProjectsUseCase struct {
	projects repository.ProjectRepository
}

func NewListProjectsUseCase(projects repository.ProjectRepository) *ListProjectsUseCase {
	return &ListProjectsUseCase{projects: projects}
}

func (uc *ListProjectsUseCase) Execute(ctx context.Context, actor valueobject.Actor, filter repository.ProjectFilter) ([]*entity.Project, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return uc.projects.ListByParticipant(ctx, actor.ID, filter)
}

type ListTransactionsUseCase struct {
	projects repository.ProjectRepository
	ledger   *ledger.Recorder
}

func NewListTransactionsUseCase(projects repository.ProjectRepository, recorder *ledger.Recorder) *ListTransactionsUseCase {
	return &ListTransactionsUseCase{projects: projects, ledger: recorder}
}

func (uc *ListTransactionsUseCase) Execute(ctx context.Context, projectID uuid.UUID, actor valueobject.Actor) ([]*entity.Transaction, error) {
	if _, err := loadForParticipant(ctx, uc.projects, projectID, actor); err != nil {
		return nil, err
	}
	return uc.ledger.History(ctx, projectID)
}
