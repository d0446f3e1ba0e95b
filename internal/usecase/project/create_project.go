package project

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

type MilestoneInput struct {
	Title              string
	Description        string
	AcceptanceCriteria string
	Amount             decimal.Decimal
	Deadline           *time.Time
}

type CreateProjectInput struct {
	Actor       valueobject.Actor
	Title       string
	Description string
	Category    string
	Budget      decimal.Decimal
	Currency    string
	Deadline    *time.Time
	Milestones  []MilestoneInput

	// Необязательные переопределения тарифа проекта.
	ClientFeePercent     *decimal.Decimal
	FreelancerFeePercent *decimal.Decimal
	AutoApproveDays      *int
}

type CreateProjectUseCase struct {
	projects  repository.ProjectRepository
	moderator gateway.ContentModerator
	clock     clock.Clock
	events    *escrow.Emitter
}

func NewCreateProjectUseCase(projects repository.ProjectRepository, moderator gateway.ContentModerator, c clock.Clock, events *escrow.Emitter) *CreateProjectUseCase {
	return &CreateProjectUseCase{projects: projects, moderator: moderator, clock: c, events: events}
}

func (uc *CreateProjectUseCase) Execute(ctx context.Context, input CreateProjectInput) (*entity.Project, error) {
	if input.Actor.Role != valueobject.RoleClient {
		return nil, apperror.Forbidden("создавать проекты может только клиент")
	}

	currency, err := valueobject.ParseCurrency(input.Currency)
	if err != nil {
		return nil, err
	}
	budget, err := valueobject.ToMinorUnits(input.Budget, currency)
	if err != nil {
		return nil, err
	}

	drafts := make([]entity.MilestoneDraft, 0, len(input.Milestones))
	for _, m := range input.Milestones {
		amount, err := valueobject.ToMinorUnits(m.Amount, currency)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, entity.MilestoneDraft{
			Title:              m.Title,
			Description:        m.Description,
			AcceptanceCriteria: m.AcceptanceCriteria,
			Amount:             amount,
			Currency:           currency,
			Deadline:           m.Deadline,
		})
	}

	params := entity.NewProjectParams{
		ClientID:    input.Actor.ID,
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Budget:      budget,
		Currency:    currency,
		Deadline:    input.Deadline,
		Milestones:  drafts,
		Schedule:    scheduleOverride(input),
	}

	// валидация до модерации и до сохранения
	p, err := entity.NewProject(params, uc.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := escrow.Moderate(ctx, uc.moderator, gateway.ContentKindProject, gateway.ModerationContent{
		Title:       p.Title,
		Description: p.Description,
	}); err != nil {
		return nil, err
	}
	for _, m := range p.Milestones {
		if err := escrow.Moderate(ctx, uc.moderator, gateway.ContentKindMilestone, gateway.ModerationContent{
			Title:       m.Title,
			Description: m.Description + "\n" + m.AcceptanceCriteria,
		}); err != nil {
			return nil, err
		}
	}

	if err := uc.projects.Create(ctx, p); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать проект")
	}

	uc.events.Project(ctx, p, escrow.Event{
		Name:      "project.created",
		Actor:     input.Actor,
		NewValues: map[string]any{"status": string(p.Status), "budget": p.Budget, "currency": string(p.Currency)},
	})
	return p, nil
}

func scheduleOverride(input CreateProjectInput) *entity.PaymentSchedule {
	if input.ClientFeePercent == nil && input.FreelancerFeePercent == nil && input.AutoApproveDays == nil {
		return nil
	}
	s := entity.DefaultPaymentSchedule()
	if input.ClientFeePercent != nil {
		s.ClientFeePercent = *input.ClientFeePercent
	}
	if input.FreelancerFeePercent != nil {
		s.FreelancerFeePercent = *input.FreelancerFeePercent
	}
	if input.AutoApproveDays != nil {
		s.AutoApproveDays = *input.AutoApproveDays
	}
	return &s
}

// loadForParticipant возвращает проект, если actor его участник или сотрудник платформы.
func loadForParticipant(ctx context.Context, repo repository.ProjectRepository, projectID uuid.UUID, actor valueobject.Actor) (*entity.Project, error) {
	p, err := repo.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant(actor.ID) && !actor.Role.IsStaff() {
		return nil, apperror.ErrForbidden
	}
	return p, nil
}
