package dispute

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

const sweepBatch = 100

type RequestMediationUseCase struct {
	disputes
}

func NewRequestMediationUseCase(deps Deps) *RequestMediationUseCase {
	return &RequestMediationUseCase{disputes: newDisputes(deps)}
}

// Execute - сторона отказывается от предложенного урегулирования и просит медиатора.
func (uc *RequestMediationUseCase) Execute(ctx context.Context, disputeID uuid.UUID, actor valueobject.Actor, note string) (*entity.Dispute, error) {
	_, p, err := uc.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if _, err := partyRole(p, actor.ID); err != nil {
		return nil, err
	}
	d, err := uc.mutate(ctx, disputeID, func(d *entity.Dispute, now time.Time) error {
		return d.RequestMediation(actor.ID, strings.TrimSpace(note), now)
	})
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, p, d, "dispute.mediation_requested", actor, valueobject.DisputeStatusSelfResolution, nil)
	return d, nil
}

type AssignMediatorUseCase struct {
	disputes
	users repository.UserDirectory
}

func NewAssignMediatorUseCase(deps Deps, users repository.UserDirectory) *AssignMediatorUseCase {
	return &AssignMediatorUseCase{disputes: newDisputes(deps), users: users}
}

func (uc *AssignMediatorUseCase) Execute(ctx context.Context, disputeID, mediatorID uuid.UUID, actor valueobject.Actor) (*entity.Dispute, error) {
	if !actor.Role.IsStaff() {
		return nil, apperror.Forbidden("назначить медиатора может только сотрудник платформы")
	}
	role, err := uc.users.Role(ctx, mediatorID)
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() {
		return nil, apperror.Validation("медиатором может быть только сотрудник платформы")
	}
	_, p, err := uc.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if p.IsParticipant(mediatorID) {
		return nil, apperror.Validation("участник проекта не может быть медиатором")
	}
	d, err := uc.mutate(ctx, disputeID, func(d *entity.Dispute, now time.Time) error {
		return d.AssignMediator(mediatorID, now)
	})
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, p, d, "dispute.mediator_assigned", actor, "", map[string]any{"mediatorId": mediatorID.String()})
	return d, nil
}

type PostMessageResult struct {
	Dispute    *entity.Dispute
	Message    *entity.DisputeMessage
	Escalation entity.EscalationCheck
	Escalated  bool
}

type PostMessageUseCase struct {
	disputes
	moderator gateway.ContentModerator
}

func NewPostMessageUseCase(deps Deps, moderator gateway.ContentModerator) *PostMessageUseCase {
	return &PostMessageUseCase{disputes: newDisputes(deps), moderator: moderator}
}

// Execute публикует сообщение в переписке спора. Если после него выполнены условия
// эскалации, спор сразу передаётся в арбитраж.
func (uc *PostMessageUseCase) Execute(ctx context.Context, disputeID uuid.UUID, actor valueobject.Actor, content string) (*PostMessageResult, error) {
	d, p, err := uc.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !canView(p, d, actor) {
		return nil, apperror.Forbidden("писать в спор могут только его стороны и назначенные сотрудники")
	}
	if err := escrow.Moderate(ctx, uc.moderator, gateway.ContentKindMessage, gateway.ModerationContent{
		Description: content,
	}); err != nil {
		return nil, err
	}

	res := &PostMessageResult{}
	d, err = uc.mutate(ctx, disputeID, func(d *entity.Dispute, now time.Time) error {
		msg, err := d.PostMessage(actor, content, now)
		if err != nil {
			return err
		}
		res.Message = msg
		res.Escalated = false
		res.Escalation = d.EvaluateEscalation(uc.Policy.EscalationAfter, uc.Policy.MessageThreshold, now)
		if res.Escalation.ShouldEscalate {
			if err := d.Escalate(valueobject.SystemPerformer, strings.Join(res.Escalation.Reasons, "; "), now); err != nil {
				return err
			}
			res.Escalated = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Dispute = d

	uc.emit(ctx, p, d, "dispute.message_posted", actor, "", map[string]any{"messageId": res.Message.ID.String()})
	if res.Escalated {
		uc.emit(ctx, p, d, "dispute.escalated", valueobject.SystemActor(), valueobject.DisputeStatusInMediation, map[string]any{
			"reasons": res.Escalation.Reasons,
		})
	}
	return res, nil
}

type EvaluateEscalationUseCase struct {
	disputes
}

func NewEvaluateEscalationUseCase(deps Deps) *EvaluateEscalationUseCase {
	return &EvaluateEscalationUseCase{disputes: newDisputes(deps)}
}

// Execute только сообщает, выполнены ли условия эскалации; спор не меняется.
func (uc *EvaluateEscalationUseCase) Execute(ctx context.Context, disputeID uuid.UUID, actor valueobject.Actor) (entity.EscalationCheck, error) {
	d, p, err := uc.load(ctx, disputeID)
	if err != nil {
		return entity.EscalationCheck{}, err
	}
	if !canView(p, d, actor) {
		return entity.EscalationCheck{}, apperror.ErrForbidden
	}
	return d.EvaluateEscalation(uc.Policy.EscalationAfter, uc.Policy.MessageThreshold, uc.Clock.Now()), nil
}

type EscalateUseCase struct {
	disputes
}

func NewEscalateUseCase(deps Deps) *EscalateUseCase {
	return &EscalateUseCase{disputes: newDisputes(deps)}
}

// Execute передаёт спор в арбитраж. Администратор может сделать это в любой момент медиации,
// остальные - только при выполненных условиях эскалации.
func (uc *EscalateUseCase) Execute(ctx context.Context, disputeID uuid.UUID, actor valueobject.Actor, note string) (*entity.Dispute, error) {
	d, p, err := uc.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !canView(p, d, actor) {
		return nil, apperror.ErrForbidden
	}
	d, err = uc.escalate(ctx, disputeID, actor, note, !actor.IsAdmin())
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, p, d, "dispute.escalated", actor, valueobject.DisputeStatusInMediation, map[string]any{"note": note})
	return d, nil
}

func (uc *EscalateUseCase) escalate(ctx context.Context, id uuid.UUID, actor valueobject.Actor, note string, requireEligible bool) (*entity.Dispute, error) {
	return uc.mutate(ctx, id, func(d *entity.Dispute, now time.Time) error {
		if d.Status != valueobject.DisputeStatusInMediation {
			return apperror.Newf(apperror.ErrCodeStateConflict, "эскалировать можно только спор в медиации, текущий статус %s", d.Status)
		}
		if requireEligible {
			check := d.EvaluateEscalation(uc.Policy.EscalationAfter, uc.Policy.MessageThreshold, now)
			if !check.ShouldEscalate {
				return apperror.StateConflict("условия эскалации ещё не выполнены")
			}
			if note == "" {
				note = strings.Join(check.Reasons, "; ")
			}
		}
		return d.Escalate(actor.PerformedBy(), note, now)
	})
}

// EscalateDue передаёт в арбитраж все споры, медиация по которым затянулась.
func (uc *EscalateUseCase) EscalateDue(ctx context.Context) (int, error) {
	list, err := uc.Disputes.ListByStatus(ctx, valueobject.DisputeStatusInMediation, sweepBatch)
	if err != nil {
		return 0, err
	}
	system := valueobject.SystemActor()
	escalated := 0
	for _, d := range list {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		if !d.EvaluateEscalation(uc.Policy.EscalationAfter, uc.Policy.MessageThreshold, uc.Clock.Now()).ShouldEscalate {
			continue
		}
		updated, err := uc.escalate(ctx, d.ID, system, "", true)
		if err != nil {
			if !apperror.IsStateConflict(err) {
				uc.log.WithFields(logrus.Fields{"dispute_id": d.ID}).WithError(err).Warn("не удалось эскалировать спор")
			}
			continue
		}
		escalated++
		if p, err := uc.Projects.Get(ctx, updated.ProjectID); err == nil {
			uc.emit(ctx, p, updated, "dispute.escalated", system, valueobject.DisputeStatusInMediation, nil)
		}
	}
	return escalated, nil
}
