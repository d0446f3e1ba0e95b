package dispute

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

type SubmitAppealInput struct {
	DisputeID uuid.UUID
	Actor     valueobject.Actor
	Reason    string
	Evidence  []gateway.EvidenceUpload
}

type SubmitAppealUseCase struct {
	disputes
	moderator gateway.ContentModerator
	inspector gateway.EvidenceInspector
}

func NewSubmitAppealUseCase(deps Deps, moderator gateway.ContentModerator, inspector gateway.EvidenceInspector) *SubmitAppealUseCase {
	return &SubmitAppealUseCase{disputes: newDisputes(deps), moderator: moderator, inspector: inspector}
}

func (uc *SubmitAppealUseCase) Execute(ctx context.Context, input SubmitAppealInput) (*entity.Dispute, error) {
	d, p, err := uc.load(ctx, input.DisputeID)
	if err != nil {
		return nil, err
	}
	if _, err := partyRole(p, input.Actor.ID); err != nil {
		return nil, err
	}
	if d.Status != valueobject.DisputeStatusResolved {
		return nil, apperror.Newf(apperror.ErrCodeStateConflict, "апелляция доступна только по решённому спору, текущий статус %s", d.Status)
	}
	if err := entity.ValidateDisputeReason(input.Reason); err != nil {
		return nil, err
	}

	evidence := make([]entity.Evidence, 0, len(input.Evidence))
	names := make([]string, 0, len(input.Evidence))
	for _, up := range input.Evidence {
		up.UploadedBy = input.Actor.ID
		res, err := uc.inspector.Inspect(ctx, up)
		if err != nil {
			return nil, err
		}
		evidence = append(evidence, entity.Evidence{
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
		names = append(names, up.Filename)
	}
	if err := escrow.Moderate(ctx, uc.moderator, gateway.ContentKindAppeal, gateway.ModerationContent{
		Reason:   input.Reason,
		Evidence: names,
	}); err != nil {
		return nil, err
	}

	d, err = uc.mutate(ctx, d.ID, func(d *entity.Dispute, now time.Time) error {
		_, err := d.SubmitAppeal(input.Actor.ID, input.Reason, evidence, uc.Policy.AppealWindow, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, p, d, "dispute.appeal_submitted", input.Actor, "", map[string]any{"appealId": d.Appeal.ID.String()})
	return d, nil
}

type ReviewAppealUseCase struct {
	disputes
}

func NewReviewAppealUseCase(deps Deps) *ReviewAppealUseCase {
	return &ReviewAppealUseCase{disputes: newDisputes(deps)}
}

// Execute фиксирует решение по апелляции. Одобренная апелляция возвращает спор в арбитраж,
// а этап и проект - в спор; деньги при этом не двигаются.
func (uc *ReviewAppealUseCase) Execute(ctx context.Context, disputeID uuid.UUID, actor valueobject.Actor, decision, notes string) (*entity.Dispute, error) {
	if !actor.Role.IsStaff() {
		return nil, apperror.Forbidden("апелляцию рассматривает сотрудник платформы")
	}
	status, err := valueobject.NewAppealReviewDecision(decision)
	if err != nil {
		return nil, err
	}
	d, p, err := uc.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if p.IsParticipant(actor.ID) {
		return nil, apperror.Forbidden("участник проекта не может рассматривать апелляцию")
	}
	previous := d.Status

	d, err = uc.mutate(ctx, disputeID, func(d *entity.Dispute, now time.Time) error {
		return d.ReviewAppeal(actor.ID, status, notes, now)
	})
	if err != nil {
		return nil, err
	}

	if status == valueobject.AppealStatusApproved {
		p, err = uc.Projects.Mutate(ctx, d.ProjectID, func(p *entity.Project, now time.Time) error {
			m, err := p.Milestone(d.MilestoneID)
			if err != nil {
				return err
			}
			return p.ReopenDispute(m, now)
		})
		if err != nil {
			// спор уже в арбитраже; проект поправит повторное решение
			uc.log.WithField("dispute_id", d.ID).WithError(err).Error("не удалось вернуть проект в спор после апелляции")
			if p, err = uc.Projects.Get(ctx, d.ProjectID); err != nil {
				return d, nil
			}
		}
	}

	uc.emit(ctx, p, d, "dispute.appeal_reviewed", actor, previous, map[string]any{
		"decision": string(status),
		"notes":    notes,
	})
	return d, nil
}
