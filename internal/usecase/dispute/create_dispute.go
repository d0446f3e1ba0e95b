package dispute

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

type CreateDisputeInput struct {
	ProjectID   uuid.UUID
	MilestoneID uuid.UUID
	Actor       valueobject.Actor
	Reason      string
	Evidence    []gateway.EvidenceUpload
}

type CreateDisputeUseCase struct {
	disputes
	moderator gateway.ContentModerator
	inspector gateway.EvidenceInspector
}

func NewCreateDisputeUseCase(deps Deps, moderator gateway.ContentModerator, inspector gateway.EvidenceInspector) *CreateDisputeUseCase {
	return &CreateDisputeUseCase{disputes: newDisputes(deps), moderator: moderator, inspector: inspector}
}

func (uc *CreateDisputeUseCase) Execute(ctx context.Context, input CreateDisputeInput) (*entity.Dispute, error) {
	p, err := uc.Projects.Get(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant(input.Actor.ID) {
		return nil, apperror.Forbidden("открыть спор может только клиент или фрилансер проекта")
	}
	if !p.Status.AcceptsMilestoneWork() {
		return nil, apperror.Newf(apperror.ErrCodeStateConflict, "проект в статусе %s нельзя оспорить", p.Status)
	}
	m, err := p.Milestone(input.MilestoneID)
	if err != nil {
		return nil, err
	}
	if !m.Status.IsDisputable() {
		return nil, apperror.Newf(apperror.ErrCodeStateConflict, "этап в статусе %s нельзя оспорить", m.Status)
	}
	if err := entity.ValidateDisputeReason(input.Reason); err != nil {
		return nil, err
	}

	now := uc.Clock.Now()
	if err := uc.checkCooldown(ctx, input, now); err != nil {
		return nil, err
	}
	if open, err := uc.Disputes.FindOpenByMilestone(ctx, m.ID); err == nil && open != nil {
		return nil, apperror.StateConflict("по этапу уже открыт спор")
	} else if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}

	evidence, err := uc.inspect(ctx, input)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(evidence))
	for _, e := range evidence {
		names = append(names, e.Filename)
	}
	if err := escrow.Moderate(ctx, uc.moderator, gateway.ContentKindDispute, gateway.ModerationContent{
		Reason:   input.Reason,
		Evidence: names,
	}); err != nil {
		return nil, err
	}

	fee, err := valueobject.DisputeFeePerParty(m.Amount, m.Currency)
	if err != nil {
		return nil, err
	}
	d, err := entity.NewDispute(entity.NewDisputeParams{
		ProjectID:   p.ID,
		MilestoneID: m.ID,
		RaisedBy:    input.Actor.ID,
		Reason:      input.Reason,
		Evidence:    evidence,
		FeePerParty: fee,
		Currency:    m.Currency,
	}, now)
	if err != nil {
		return nil, err
	}

	var previous valueobject.MilestoneStatus
	p, err = uc.Projects.Mutate(ctx, p.ID, func(p *entity.Project, now time.Time) error {
		m, err := p.Milestone(input.MilestoneID)
		if err != nil {
			return err
		}
		previous = m.Status
		return p.OpenDispute(m, input.Actor.PerformedBy(), now)
	})
	if err != nil {
		return nil, err
	}

	if err := uc.Disputes.Create(ctx, d); err != nil {
		uc.withdraw(ctx, p.ID, input.MilestoneID, previous)
		return nil, err
	}

	uc.emit(ctx, p, d, "dispute.created", input.Actor, "", map[string]any{
		"reason":         d.Reason,
		"feePerParty":    fee,
		"milestoneTitle": m.Title,
	})
	return d, nil
}

func (uc *CreateDisputeUseCase) checkCooldown(ctx context.Context, input CreateDisputeInput, now time.Time) error {
	last, err := uc.Disputes.LatestByRaiser(ctx, input.MilestoneID, input.Actor.ID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if last != nil && now.Sub(last.CreatedAt) < uc.Policy.RedisputeCooldown {
		return apperror.New(apperror.ErrCodeRateLimited, "повторный спор по этапу можно открыть не раньше чем через 24 часа")
	}
	return nil
}

func (uc *CreateDisputeUseCase) inspect(ctx context.Context, input CreateDisputeInput) ([]entity.Evidence, error) {
	out := make([]entity.Evidence, 0, len(input.Evidence))
	for _, up := range input.Evidence {
		up.UploadedBy = input.Actor.ID
		res, err := uc.inspector.Inspect(ctx, up)
		if err != nil {
			return nil, err
		}
		out = append(out, entity.Evidence{
			ID:          uuid.New(),
			Filename:    up.Filename,
			URL:         up.URL,
			Type:        res.MIMEType,
			Size:        up.Size,
			UploadedBy:  input.Actor.ID,
			Verified:    res.Verified,
			Fingerprint: res.Fingerprint,
			UploadedAt:  uc.Clock.Now(),
		})
	}
	return out, nil
}

// withdraw откатывает перевод этапа в спор, если сам спор сохранить не удалось.
func (uc *CreateDisputeUseCase) withdraw(ctx context.Context, projectID, milestoneID uuid.UUID, previous valueobject.MilestoneStatus) {
	open, err := uc.Disputes.CountOpenByProject(ctx, projectID)
	if err != nil {
		open = 1
	}
	_, err = uc.Projects.Mutate(ctx, projectID, func(p *entity.Project, now time.Time) error {
		m, err := p.Milestone(milestoneID)
		if err != nil {
			return err
		}
		p.WithdrawDispute(m, previous, open > 0, now)
		return nil
	})
	if err != nil {
		uc.log.WithFields(logrus.Fields{
			"project_id":   projectID,
			"milestone_id": milestoneID,
		}).WithError(err).Error("не удалось откатить открытие спора")
	}
}
