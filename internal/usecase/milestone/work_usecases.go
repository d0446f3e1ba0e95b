package milestone

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

type Ref struct {
	ProjectID   uuid.UUID
	MilestoneID uuid.UUID
}

func requireActive(p *entity.Project) error {
	if p.Status != valueobject.ProjectStatusActive {
		return apperror.Newf(apperror.ErrCodeStateConflict, "начать этап можно только в активном проекте, текущий статус %s", p.Status)
	}
	return nil
}

func requireWorking(p *entity.Project) error {
	if !p.Status.AcceptsMilestoneWork() {
		return apperror.Newf(apperror.ErrCodeStateConflict, "работа по этапам невозможна в статусе проекта %s", p.Status)
	}
	return nil
}

// mutateMilestone применяет fn к этапу проекта, где идёт работа, и рассылает событие.
func mutateMilestone(
	ctx context.Context,
	projects *escrow.Projects,
	events *escrow.Emitter,
	ref Ref,
	actor valueobject.Actor,
	event string,
	fn func(p *entity.Project, m *entity.Milestone, now time.Time) error,
) (*entity.Project, *entity.Milestone, error) {
	var previous valueobject.MilestoneStatus
	p, err := projects.Mutate(ctx, ref.ProjectID, func(p *entity.Project, now time.Time) error {
		if err := requireWorking(p); err != nil {
			return err
		}
		m, err := p.Milestone(ref.MilestoneID)
		if err != nil {
			return err
		}
		previous = m.Status
		return fn(p, m, now)
	})
	if err != nil {
		return nil, nil, err
	}
	m, err := p.Milestone(ref.MilestoneID)
	if err != nil {
		return nil, nil, err
	}
	events.Project(ctx, p, escrow.Event{
		Name:       event,
		Actor:      actor,
		EntityType: "milestone",
		EntityID:   m.ID,
		OldValues:  map[string]any{"status": string(previous)},
		NewValues:  map[string]any{"status": string(m.Status)},
		Payload:    map[string]any{"milestoneId": m.ID.String(), "title": m.Title},
	})
	return p, m, nil
}

type StartMilestoneUseCase struct {
	projects *escrow.Projects
	events   *escrow.Emitter
}

func NewStartMilestoneUseCase(projects *escrow.Projects, events *escrow.Emitter) *StartMilestoneUseCase {
	return &StartMilestoneUseCase{projects: projects, events: events}
}

func (uc *StartMilestoneUseCase) Execute(ctx context.Context, ref Ref, actor valueobject.Actor) (*entity.Milestone, error) {
	_, m, err := mutateMilestone(ctx, uc.projects, uc.events, ref, actor, "milestone.started",
		func(p *entity.Project, m *entity.Milestone, now time.Time) error {
			if !p.IsFreelancer(actor.ID) {
				return apperror.Forbidden("начать этап может только фрилансер проекта")
			}
			if err := requireActive(p); err != nil {
				return err
			}
			if err := m.Start(now); err != nil {
				return err
			}
			p.Record("milestone_started", actor, now, map[string]any{"milestoneId": m.ID.String()})
			return nil
		})
	return m, err
}

type SubmitInput struct {
	Ref
	Actor        valueobject.Actor
	Deliverables []string
	Notes        string
}

type SubmitMilestoneUseCase struct {
	projects *escrow.Projects
	events   *escrow.Emitter
}

func NewSubmitMilestoneUseCase(projects *escrow.Projects, events *escrow.Emitter) *SubmitMilestoneUseCase {
	return &SubmitMilestoneUseCase{projects: projects, events: events}
}

func (uc *SubmitMilestoneUseCase) Execute(ctx context.Context, input SubmitInput) (*entity.Milestone, error) {
	_, m, err := mutateMilestone(ctx, uc.projects, uc.events, input.Ref, input.Actor, "milestone.submitted",
		func(p *entity.Project, m *entity.Milestone, now time.Time) error {
			if !p.IsFreelancer(input.Actor.ID) {
				return apperror.Forbidden("сдать этап может только фрилансер проекта")
			}
			if err := m.Submit(input.Deliverables, input.Notes, now); err != nil {
				return err
			}
			p.Record("milestone_submitted", input.Actor, now, map[string]any{
				"milestoneId":  m.ID.String(),
				"deliverables": len(input.Deliverables),
			})
			return nil
		})
	return m, err
}

type ResubmitMilestoneUseCase struct {
	projects *escrow.Projects
	events   *escrow.Emitter
}

func NewResubmitMilestoneUseCase(projects *escrow.Projects, events *escrow.Emitter) *ResubmitMilestoneUseCase {
	return &ResubmitMilestoneUseCase{projects: projects, events: events}
}

func (uc *ResubmitMilestoneUseCase) Execute(ctx context.Context, input SubmitInput) (*entity.Milestone, error) {
	_, m, err := mutateMilestone(ctx, uc.projects, uc.events, input.Ref, input.Actor, "milestone.resubmitted",
		func(p *entity.Project, m *entity.Milestone, now time.Time) error {
			if !p.IsFreelancer(input.Actor.ID) {
				return apperror.Forbidden("повторно сдать этап может только фрилансер проекта")
			}
			if err := m.Resubmit(input.Deliverables, input.Notes, now); err != nil {
				return err
			}
			p.Record("milestone_resubmitted", input.Actor, now, map[string]any{"milestoneId": m.ID.String()})
			return nil
		})
	return m, err
}

type RequestRevisionUseCase struct {
	projects *escrow.Projects
	events   *escrow.Emitter
}

func NewRequestRevisionUseCase(projects *escrow.Projects, events *escrow.Emitter) *RequestRevisionUseCase {
	return &RequestRevisionUseCase{projects: projects, events: events}
}

func (uc *RequestRevisionUseCase) Execute(ctx context.Context, ref Ref, actor valueobject.Actor, notes string) (*entity.Milestone, error) {
	_, m, err := mutateMilestone(ctx, uc.projects, uc.events, ref, actor, "milestone.revision_requested",
		func(p *entity.Project, m *entity.Milestone, now time.Time) error {
			if !p.IsClient(actor.ID) {
				return apperror.Forbidden("запросить доработку может только клиент проекта")
			}
			if err := m.RequestRevision(actor.PerformedBy(), notes, now); err != nil {
				return err
			}
			p.Record("revision_requested", actor, now, map[string]any{"milestoneId": m.ID.String(), "notes": notes})
			return nil
		})
	return m, err
}
