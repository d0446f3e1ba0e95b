package project

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

type InviteFreelancerUseCase struct {
	projects *escrow.Projects
	users    repository.UserDirectory
	events   *escrow.Emitter
}

func NewInviteFreelancerUseCase(projects *escrow.Projects, users repository.UserDirectory, events *escrow.Emitter) *InviteFreelancerUseCase {
	return &InviteFreelancerUseCase{projects: projects, users: users, events: events}
}

func (uc *InviteFreelancerUseCase) Execute(ctx context.Context, projectID uuid.UUID, actor valueobject.Actor, freelancerID uuid.UUID) (*entity.Project, error) {
	if uc.users != nil {
		role, err := uc.users.Role(ctx, freelancerID)
		if err != nil {
			return nil, err
		}
		if role != valueobject.RoleFreelancer {
			return nil, apperror.Validation("пригласить можно только пользователя с ролью фрилансера")
		}
	}

	p, err := uc.projects.Mutate(ctx, projectID, func(p *entity.Project, now time.Time) error {
		if !p.IsClient(actor.ID) {
			return apperror.Forbidden("пригласить фрилансера может только клиент проекта")
		}
		return p.Invite(freelancerID, now)
	})
	if err != nil {
		return nil, err
	}
	uc.events.Project(ctx, p, escrow.Event{
		Name:      "project.freelancer_invited",
		Actor:     actor,
		NewValues: map[string]any{"status": string(p.Status), "freelancerId": freelancerID.String()},
	})
	return p, nil
}

type AcceptInvitationUseCase struct {
	projects *escrow.Projects
	events   *escrow.Emitter
}

func NewAcceptInvitationUseCase(projects *escrow.Projects, events *escrow.Emitter) *AcceptInvitationUseCase {
	return &AcceptInvitationUseCase{projects: projects, events: events}
}

func (uc *AcceptInvitationUseCase) Execute(ctx context.Context, projectID uuid.UUID, actor valueobject.Actor, payoutAccount string) (*entity.Project, error) {
	p, err := uc.projects.Mutate(ctx, projectID, func(p *entity.Project, now time.Time) error {
		if !p.IsFreelancer(actor.ID) {
			return apperror.Forbidden("принять приглашение может только приглашённый фрилансер")
		}
		return p.Accept(payoutAccount, now)
	})
	if err != nil {
		return nil, err
	}
	uc.events.Project(ctx, p, escrow.Event{
		Name:      "project.invitation_accepted",
		Actor:     actor,
		NewValues: map[string]any{"status": string(p.Status)},
	})
	return p, nil
}

type DeclineInvitationUseCase struct {
	projects *escrow.Projects
	events   *escrow.Emitter
}

func NewDeclineInvitationUseCase(projects *escrow.Projects, events *escrow.Emitter) *DeclineInvitationUseCase {
	return &DeclineInvitationUseCase{projects: projects, events: events}
}

func (uc *DeclineInvitationUseCase) Execute(ctx context.Context, projectID uuid.UUID, actor valueobject.Actor) (*entity.Project, error) {
	// получатели уведомления фиксируются до отказа: после него фрилансер отвязан от проекта
	var declined *entity.Project
	p, err := uc.projects.Mutate(ctx, projectID, func(p *entity.Project, now time.Time) error {
		if !p.IsFreelancer(actor.ID) {
			return apperror.Forbidden("отклонить приглашение может только приглашённый фрилансер")
		}
		declined = p.Clone()
		return p.Decline(now)
	})
	if err != nil {
		return nil, err
	}
	declined.Status = p.Status
	uc.events.Project(ctx, declined, escrow.Event{
		Name:      "project.invitation_declined",
		Actor:     actor,
		NewValues: map[string]any{"status": string(p.Status)},
	})
	return p, nil
}

// StatusChangeUseCase - переходы, доступные только клиенту проекта: архивирование, приостановка, возобновление.
type StatusChangeUseCase struct {
	projects *escrow.Projects
	events   *escrow.Emitter
	event    string
	apply    func(p *entity.Project, reason string, now time.Time) error
}

func NewArchiveProjectUseCase(projects *escrow.Projects, events *escrow.Emitter) *StatusChangeUseCase {
	return &StatusChangeUseCase{
		projects: projects,
		events:   events,
		event:    "project.archived",
		apply: func(p *entity.Project, _ string, now time.Time) error {
			return p.Archive(now)
		},
	}
}

func NewHoldProjectUseCase(projects *escrow.Projects, events *escrow.Emitter) *StatusChangeUseCase {
	return &StatusChangeUseCase{
		projects: projects,
		events:   events,
		event:    "project.on_hold",
		apply: func(p *entity.Project, reason string, now time.Time) error {
			return p.Hold(reason, now)
		},
	}
}

func NewResumeProjectUseCase(projects *escrow.Projects, events *escrow.Emitter) *StatusChangeUseCase {
	return &StatusChangeUseCase{
		projects: projects,
		events:   events,
		event:    "project.resumed",
		apply: func(p *entity.Project, _ string, now time.Time) error {
			return p.Resume(now)
		},
	}
}

func (uc *StatusChangeUseCase) Execute(ctx context.Context, projectID uuid.UUID, actor valueobject.Actor, reason string) (*entity.Project, error) {
	var previous valueobject.ProjectStatus
	p, err := uc.projects.Mutate(ctx, projectID, func(p *entity.Project, now time.Time) error {
		if !p.IsClient(actor.ID) {
			return apperror.Forbidden("действие доступно только клиенту проекта")
		}
		previous = p.Status
		return uc.apply(p, reason, now)
	})
	if err != nil {
		return nil, err
	}
	uc.events.Project(ctx, p, escrow.Event{
		Name:      uc.event,
		Actor:     actor,
		OldValues: map[string]any{"status": string(previous)},
		NewValues: map[string]any{"status": string(p.Status)},
	})
	return p, nil
}
