package dispute

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
)

type AssignArbitratorUseCase struct {
	disputes
	users repository.UserDirectory
}

func NewAssignArbitratorUseCase(deps Deps, users repository.UserDirectory) *AssignArbitratorUseCase {
	return &AssignArbitratorUseCase{disputes: newDisputes(deps), users: users}
}

func (uc *AssignArbitratorUseCase) Execute(ctx context.Context, disputeID, arbitratorID uuid.UUID, actor valueobject.Actor) (*entity.Dispute, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("назначить арбитра может только администратор")
	}
	role, err := uc.users.Role(ctx, arbitratorID)
	if err != nil {
		return nil, err
	}
	if role != valueobject.RoleArbitrator {
		return nil, apperror.Validation("назначаемый пользователь не является арбитром")
	}
	_, p, err := uc.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if p.IsParticipant(arbitratorID) {
		return nil, apperror.Validation("участник проекта не может быть арбитром")
	}
	d, err := uc.mutate(ctx, disputeID, func(d *entity.Dispute, now time.Time) error {
		return d.AssignArbitrator(arbitratorID, actor.PerformedBy(), now)
	})
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, p, d, "dispute.arbitrator_assigned", actor, "", map[string]any{"arbitratorId": arbitratorID.String()})
	return d, nil
}

type ResolveInput struct {
	DisputeID          uuid.UUID
	Actor              valueobject.Actor
	Decision           string
	AmountToFreelancer decimal.Decimal
	AmountToClient     decimal.Decimal
	Reason             string
}

type ResolveResult struct {
	Dispute      *entity.Dispute
	Project      *entity.Project
	Transactions []*entity.Transaction
}

// ResolveDisputeUseCase исполняет решение по спору: сначала возврат клиенту, затем
// выплата фрилансеру, после чего фиксирует исход этапа и закрывает спор.
type ResolveDisputeUseCase struct {
	disputes
	ledger   *ledger.Recorder
	payments gateway.PaymentGateway
}

func NewResolveDisputeUseCase(deps Deps, recorder *ledger.Recorder, payments gateway.PaymentGateway) *ResolveDisputeUseCase {
	return &ResolveDisputeUseCase{disputes: newDisputes(deps), ledger: recorder, payments: payments}
}

func (uc *ResolveDisputeUseCase) Execute(ctx context.Context, input ResolveInput) (*ResolveResult, error) {
	decision, err := valueobject.NewDecision(input.Decision)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, apperror.Validation("укажите обоснование решения")
	}

	d, p, err := uc.load(ctx, input.DisputeID)
	if err != nil {
		return nil, err
	}
	if err := authorizeResolve(d, input.Actor); err != nil {
		return nil, err
	}
	m, err := p.Milestone(d.MilestoneID)
	if err != nil {
		return nil, err
	}
	toFreelancer, err := valueobject.ToMinorUnits(input.AmountToFreelancer, m.Currency)
	if err != nil {
		return nil, err
	}
	toClient, err := valueobject.ToMinorUnits(input.AmountToClient, m.Currency)
	if err != nil {
		return nil, err
	}
	if err := decision.CheckSplit(toFreelancer, toClient, m.Amount); err != nil {
		return nil, err
	}

	d, dclaim, err := uc.claim(ctx, d.ID, "resolve:"+d.ID.String(), func(d *entity.Dispute) error {
		if err := authorizeResolve(d, input.Actor); err != nil {
			return err
		}
		return d.CheckResolvable()
	})
	if err != nil {
		return nil, err
	}
	previous := d.Status

	var refundDelta, payDelta int64
	p, pclaim, err := uc.Projects.Claim(ctx, d.ProjectID, "dispute:"+d.ID.String(), func(p *entity.Project, _ time.Time) error {
		m, err := p.Milestone(d.MilestoneID)
		if err != nil {
			return err
		}
		if m.Status != valueobject.MilestoneStatusDisputed && !reopened(d) {
			return apperror.Newf(apperror.ErrCodeStateConflict, "этап в статусе %s не находится в споре", m.Status)
		}
		if m.Status != valueobject.MilestoneStatusDisputed && decision.MilestoneOutcome() != m.Status {
			return apperror.Newf(apperror.ErrCodeStateConflict, "этап в статусе %s не может получить исход %s", m.Status, decision)
		}
		if decision.RequiresExactSplit() {
			refundDelta = toClient - m.Refunded
			payDelta = toFreelancer - m.Released
		} else {
			refundDelta, payDelta = 0, 0
		}
		if refundDelta < 0 || payDelta < 0 {
			return apperror.StateConflict("решение требует вернуть уже распределённые средства")
		}
		return nil
	})
	if err != nil {
		uc.releaseClaim(ctx, d.ID, dclaim)
		return nil, err
	}
	m, err = p.Milestone(d.MilestoneID)
	if err != nil {
		uc.abort(ctx, p.ID, pclaim, d.ID, dclaim)
		return nil, err
	}

	var txs []*entity.Transaction
	if refundDelta > 0 {
		tx, next, err := uc.refund(ctx, p, m, d, refundDelta, pclaim)
		if tx != nil {
			txs = append(txs, tx)
		}
		if err != nil {
			if next == nil {
				uc.abort(ctx, p.ID, pclaim, d.ID, dclaim)
			}
			return nil, err
		}
		p = next
		m, _ = p.Milestone(d.MilestoneID)
	}
	if payDelta > 0 {
		tx, next, err := uc.pay(ctx, p, m, d, payDelta, pclaim)
		if tx != nil {
			txs = append(txs, tx)
		}
		if err != nil {
			if next == nil {
				uc.abort(ctx, p.ID, pclaim, d.ID, dclaim)
			}
			return nil, err
		}
		p = next
	}

	open, err := uc.Disputes.CountOpenByProject(ctx, p.ID)
	if err != nil {
		open = 2
	}
	decidedBy := input.Actor.PerformedBy()
	p, err = uc.Projects.Commit(ctx, p.ID, pclaim, lastTxID(txs), func(p *entity.Project, now time.Time) error {
		m, err := p.Milestone(d.MilestoneID)
		if err != nil {
			return err
		}
		return p.FinishDispute(m, decision, decidedBy, open > 1, now)
	})
	if err != nil {
		uc.releaseClaim(ctx, d.ID, dclaim)
		return nil, err
	}

	d, err = uc.mutate(ctx, d.ID, func(d *entity.Dispute, now time.Time) error {
		if !d.HoldsClaim(dclaim) {
			return apperror.Newf(apperror.ErrCodeStateConflict, "метка операции %s утеряна", dclaim)
		}
		if err := d.Resolve(entity.Resolution{
			Decision:           decision,
			AmountToFreelancer: toFreelancer,
			AmountToClient:     toClient,
			DecisionReason:     reason,
			DecidedBy:          input.Actor.ID,
			DecidedAt:          now,
		}, now); err != nil {
			return err
		}
		d.ReleaseClaim(dclaim)
		return nil
	})
	if err != nil {
		uc.log.WithField("dispute_id", input.DisputeID).WithField("reconciliation", "required").
			WithError(err).Error("решение исполнено, но спор не закрыт")
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "решение исполнено, состояние спора будет сверено вручную")
	}

	payload := map[string]any{
		"decision":           string(decision),
		"amountToFreelancer": toFreelancer,
		"amountToClient":     toClient,
	}
	uc.emit(ctx, p, d, "dispute.resolved", input.Actor, previous, payload)
	return &ResolveResult{Dispute: d, Project: p, Transactions: txs}, nil
}

// authorizeResolve: администратор решает всегда, назначенный арбитр - только в арбитраже.
func authorizeResolve(d *entity.Dispute, actor valueobject.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == valueobject.RoleArbitrator && d.ArbitratorID != nil && *d.ArbitratorID == actor.ID &&
		d.Status == valueobject.DisputeStatusInArbitration {
		return nil
	}
	return apperror.Forbidden("решение по спору принимает администратор или назначенный арбитр")
}

// reopened - спор возвращён в арбитраж одобренной апелляцией; этап мог быть уже закрыт.
func reopened(d *entity.Dispute) bool {
	return d.Appeal != nil && d.Appeal.Status == valueobject.AppealStatusApproved
}

// refund возвращает клиенту его часть. Если next == nil при ошибке, деньги не двигались.
func (uc *ResolveDisputeUseCase) refund(ctx context.Context, p *entity.Project, m *entity.Milestone, d *entity.Dispute, amount int64, claim string) (*entity.Transaction, *entity.Project, error) {
	key := fmt.Sprintf("dispute-refund:%s:%d", d.ID, m.Refunded)
	description := fmt.Sprintf("Возврат по решению спора, этап «%s»", m.Title)
	tx, err := uc.ledger.Execute(ctx, ledger.Entry{
		ProjectID:      p.ID,
		MilestoneID:    &m.ID,
		DisputeID:      &d.ID,
		Type:           valueobject.TransactionTypeDisputeRefund,
		Amount:         amount,
		Currency:       m.Currency,
		To:             &p.ClientID,
		IdempotencyKey: key,
		Description:    description,
	}, func(ctx context.Context) (gateway.PaymentResult, error) {
		return uc.payments.RefundToClient(ctx, gateway.RefundRequest{
			Amount:         valueobject.ToDecimal(amount, m.Currency),
			Currency:       m.Currency,
			CustomerRef:    p.ClientID.String(),
			Description:    description,
			IdempotencyKey: key,
		})
	})
	if err != nil {
		return tx, nil, err
	}
	next, err := uc.Projects.CommitStep(ctx, p.ID, claim, tx.ID, func(p *entity.Project, now time.Time) error {
		m, err := p.Milestone(d.MilestoneID)
		if err != nil {
			return err
		}
		return p.ApplyRefund(m, amount, now)
	})
	if err != nil {
		// деньги ушли, состояние сверяется вручную; метки остаются до истечения
		return tx, p, err
	}
	return tx, next, nil
}

// pay переводит фрилансеру его часть без комиссий.
func (uc *ResolveDisputeUseCase) pay(ctx context.Context, p *entity.Project, m *entity.Milestone, d *entity.Dispute, amount int64, claim string) (*entity.Transaction, *entity.Project, error) {
	key := fmt.Sprintf("dispute-payment:%s:%d", d.ID, m.Released)
	description := fmt.Sprintf("Выплата по решению спора, этап «%s»", m.Title)
	tx, err := uc.ledger.Execute(ctx, ledger.Entry{
		ProjectID:      p.ID,
		MilestoneID:    &m.ID,
		DisputeID:      &d.ID,
		Type:           valueobject.TransactionTypeDisputePayment,
		Amount:         amount,
		Currency:       m.Currency,
		To:             p.FreelancerID,
		Fees:           entity.NewFees(0, 0),
		IdempotencyKey: key,
		Description:    description,
	}, func(ctx context.Context) (gateway.PaymentResult, error) {
		return uc.payments.TransferToFreelancer(ctx, gateway.TransferRequest{
			Amount:          valueobject.ToDecimal(amount, m.Currency),
			Currency:        m.Currency,
			PayoutAccountID: p.FreelancerPayoutAccount,
			Description:     description,
			IdempotencyKey:  key,
		})
	})
	if err != nil {
		return tx, nil, err
	}
	next, err := uc.Projects.CommitStep(ctx, p.ID, claim, tx.ID, func(p *entity.Project, now time.Time) error {
		m, err := p.Milestone(d.MilestoneID)
		if err != nil {
			return err
		}
		return p.ApplyRelease(m, amount, now)
	})
	if err != nil {
		return tx, p, err
	}
	return tx, next, nil
}

func (uc *ResolveDisputeUseCase) abort(ctx context.Context, projectID uuid.UUID, pclaim string, disputeID uuid.UUID, dclaim string) {
	uc.Projects.ReleaseClaim(ctx, projectID, pclaim)
	uc.releaseClaim(ctx, disputeID, dclaim)
}

func lastTxID(txs []*entity.Transaction) uuid.UUID {
	if len(txs) == 0 {
		return uuid.Nil
	}
	return txs[len(txs)-1].ID
}
