package dispute

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
)

type PayFeeInput struct {
	DisputeID        uuid.UUID
	Actor            valueobject.Actor
	PaymentMethodRef string
}

type PayFeeResult struct {
	Dispute     *entity.Dispute
	Transaction *entity.Transaction
	// AlreadyPaid - сторона уже оплатила сбор, списания не было.
	AlreadyPaid bool
}

type PayFeeUseCase struct {
	disputes
	ledger   *ledger.Recorder
	payments gateway.PaymentGateway
	reviewer *Reviewer
}

func NewPayFeeUseCase(deps Deps, recorder *ledger.Recorder, payments gateway.PaymentGateway, reviewer *Reviewer) *PayFeeUseCase {
	return &PayFeeUseCase{disputes: newDisputes(deps), ledger: recorder, payments: payments, reviewer: reviewer}
}

func (uc *PayFeeUseCase) Execute(ctx context.Context, input PayFeeInput) (*PayFeeResult, error) {
	d, p, err := uc.load(ctx, input.DisputeID)
	if err != nil {
		return nil, err
	}
	role, err := partyRole(p, input.Actor.ID)
	if err != nil {
		return nil, err
	}
	if _, paid, _ := d.FeeFor(role); paid {
		return &PayFeeResult{Dispute: d, AlreadyPaid: true}, nil
	}

	op := fmt.Sprintf("fee:%s:%s", d.ID, role)
	d, claim, err := uc.claim(ctx, d.ID, op, func(d *entity.Dispute) error {
		if d.Status != valueobject.DisputeStatusPendingFee {
			return apperror.Newf(apperror.ErrCodeStateConflict, "сбор оплачивается только в статусе %s, текущий статус %s",
				valueobject.DisputeStatusPendingFee, d.Status)
		}
		_, paid, err := d.FeeFor(role)
		if err != nil {
			return err
		}
		if paid {
			return apperror.StateConflict("сбор уже оплачен")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	amount, _, _ := d.FeeFor(role)
	key := fmt.Sprintf("dispute-fee:%s:%s", d.ID, role)
	description := fmt.Sprintf("Сбор за рассмотрение спора %s", d.ID)
	payer := input.Actor.ID
	tx, err := uc.ledger.Execute(ctx, ledger.Entry{
		ProjectID:      d.ProjectID,
		MilestoneID:    &d.MilestoneID,
		DisputeID:      &d.ID,
		Type:           valueobject.TransactionTypeDisputeFee,
		Amount:         amount,
		Currency:       d.Fee.Currency,
		From:           &payer,
		Fees:           entity.NewFees(0, 0),
		IdempotencyKey: key,
		Description:    description,
	}, func(ctx context.Context) (gateway.PaymentResult, error) {
		return uc.payments.CreateDepositIntent(ctx, gateway.DepositRequest{
			Amount:           valueobject.ToDecimal(amount, d.Fee.Currency),
			Currency:         d.Fee.Currency,
			Description:      description,
			PaymentMethodRef: input.PaymentMethodRef,
			CustomerRef:      payer.String(),
			IdempotencyKey:   key,
		})
	})
	if err != nil {
		uc.releaseClaim(ctx, d.ID, claim)
		return nil, err
	}

	var bothPaid bool
	d, err = uc.mutate(ctx, d.ID, func(d *entity.Dispute, now time.Time) error {
		if !d.HoldsClaim(claim) {
			return apperror.Newf(apperror.ErrCodeStateConflict, "метка операции %s утеряна", claim)
		}
		complete, err := d.MarkFeePaid(role, payer, now)
		if err != nil {
			return err
		}
		bothPaid = complete
		d.ReleaseClaim(claim)
		return nil
	})
	if err != nil {
		uc.log.WithFields(logrus.Fields{
			"dispute_id":     input.DisputeID,
			"claim":          claim,
			"transaction_id": tx.ID,
			"reconciliation": "required",
		}).WithError(err).Error("сбор списан, но оплата не отмечена в споре")
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "платёж проведён, состояние будет сверено вручную")
	}

	uc.emit(ctx, p, d, "dispute.fee_paid", input.Actor, "", map[string]any{
		"role":          string(role),
		"amount":        amount,
		"transactionId": tx.ID.String(),
	})

	if bothPaid && uc.reviewer != nil {
		reviewed, err := uc.reviewer.Execute(ctx, d.ID)
		if err != nil {
			// спор останется в PENDING_REVIEW, его подберёт фоновая задача
			uc.log.WithField("dispute_id", d.ID).WithError(err).Warn("автоматическое рассмотрение не выполнено")
		} else {
			d = reviewed
		}
	}
	return &PayFeeResult{Dispute: d, Transaction: tx}, nil
}

// ReviewPendingUseCase подбирает оплаченные споры, которые не прошли рассмотрение сразу.
type ReviewPendingUseCase struct {
	disputes
	reviewer *Reviewer
}

func NewReviewPendingUseCase(deps Deps, reviewer *Reviewer) *ReviewPendingUseCase {
	return &ReviewPendingUseCase{disputes: newDisputes(deps), reviewer: reviewer}
}

func (uc *ReviewPendingUseCase) Execute(ctx context.Context) (int, error) {
	pending, err := uc.Disputes.ListByStatus(ctx, valueobject.DisputeStatusPendingReview, sweepBatch)
	if err != nil {
		return 0, err
	}
	reviewed := 0
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return reviewed, err
		}
		if _, err := uc.reviewer.Execute(ctx, d.ID); err != nil {
			uc.log.WithField("dispute_id", d.ID).WithError(err).Warn("рассмотрение спора не выполнено")
			continue
		}
		reviewed++
	}
	return reviewed, nil
}
