package project

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

type DuplicateProjectUseCase struct {
	projects repository.ProjectRepository
	clock    clock.Clock
	events   *escrow.Emitter
}

func NewDuplicateProjectUseCase(projects repository.ProjectRepository, c clock.Clock, events *escrow.Emitter) *DuplicateProjectUseCase {
	return &DuplicateProjectUseCase{projects: projects, clock: c, events: events}
}

func (uc *DuplicateProjectUseCase) Execute(ctx context.Context, projectID uuid.UUID, actor valueobject.Actor) (*entity.Project, error) {
	src, err := uc.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !src.IsClient(actor.ID) {
		return nil, apperror.Forbidden("дублировать проект может только его клиент")
	}

	cp := src.Duplicate(uc.clock.Now())
	if err := uc.projects.Create(ctx, cp); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать копию проекта")
	}

	uc.events.Project(ctx, cp, escrow.Event{
		Name:      "project.duplicated",
		Actor:     actor,
		NewValues: map[string]any{"sourceProjectId": src.ID.String()},
	})
	return cp, nil
}

type AddMilestoneInput struct {
	ProjectID uuid.UUID
	Actor     valueobject.Actor
	Milestone MilestoneInput
}

type AddMilestoneUseCase struct {
	projects  *escrow.Projects
	moderator gateway.ContentModerator
	events    *escrow.Emitter
}

func NewAddMilestoneUseCase(projects *escrow.Projects, moderator gateway.ContentModerator, events *escrow.Emitter) *AddMilestoneUseCase {
	return &AddMilestoneUseCase{projects: projects, moderator: moderator, events: events}
}

func (uc *AddMilestoneUseCase) Execute(ctx context.Context, input AddMilestoneInput) (*entity.Project, *entity.Milestone, error) {
	current, err := uc.projects.Get(ctx, input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if !current.IsClient(input.Actor.ID) {
		return nil, nil, apperror.Forbidden("добавлять этапы может только клиент проекта")
	}
	amount, err := valueobject.ToMinorUnits(input.Milestone.Amount, current.Currency)
	if err != nil {
		return nil, nil, err
	}
	draft := entity.MilestoneDraft{
		Title:              input.Milestone.Title,
		Description:        input.Milestone.Description,
		AcceptanceCriteria: input.Milestone.AcceptanceCriteria,
		Amount:             amount,
		Deadline:           input.Milestone.Deadline,
	}

	if err := escrow.Moderate(ctx, uc.moderator, gateway.ContentKindMilestone, gateway.ModerationContent{
		Title:       draft.Title,
		Description: draft.Description + "\n" + draft.AcceptanceCriteria,
	}); err != nil {
		return nil, nil, err
	}

	var added *entity.Milestone
	p, err := uc.projects.Mutate(ctx, input.ProjectID, func(p *entity.Project, now time.Time) error {
		m, err := p.AddMilestone(draft, now)
		if err != nil {
			return err
		}
		added = m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	uc.events.Project(ctx, p, escrow.Event{
		Name:      "milestone.added",
		Actor:     input.Actor,
		NewValues: map[string]any{"milestoneId": added.ID.String(), "budget": p.Budget},
	})
	return p, added, nil
}
