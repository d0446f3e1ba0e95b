package dispute

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type GetDisputeUseCase struct {
	disputes
}

func NewGetDisputeUseCase(deps Deps) *GetDisputeUseCase {
	return &GetDisputeUseCase{disputes: newDisputes(deps)}
}

func (uc *GetDisputeUseCase) Execute(ctx context.Context, disputeID uuid.UUID, actor valueobject.Actor) (*entity.Dispute, error) {
	d, p, err := uc.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !canView(p, d, actor) {
		return nil, apperror.ErrForbidden
	}
	return d, nil
}

type ListDisputesUseCase struct {
	disputes
}

func NewListDisputesUseCase(deps Deps) *ListDisputesUseCase {
	return &ListDisputesUseCase{disputes: newDisputes(deps)}
}

// Execute возвращает споры проекта, видимые инициатору запроса.
func (uc *ListDisputesUseCase) Execute(ctx context.Context, projectID uuid.UUID, actor valueobject.Actor) ([]*entity.Dispute, error) {
	p, err := uc.Projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant(actor.ID) && !actor.Role.IsStaff() {
		return nil, apperror.ErrForbidden
	}
	list, err := uc.Disputes.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Dispute, 0, len(list))
	for _, d := range list {
		if canView(p, d, actor) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListByStatusUseCase - очередь споров для сотрудников платформы.
type ListByStatusUseCase struct {
	disputes
}

func NewListByStatusUseCase(deps Deps) *ListByStatusUseCase {
	return &ListByStatusUseCase{disputes: newDisputes(deps)}
}

func (uc *ListByStatusUseCase) Execute(ctx context.Context, status string, actor valueobject.Actor, limit int) ([]*entity.Dispute, error) {
	if !actor.Role.IsStaff() {
		return nil, apperror.ErrForbidden
	}
	s, err := valueobject.NewDisputeStatus(status)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return uc.Disputes.ListByStatus(ctx, s, limit)
}
