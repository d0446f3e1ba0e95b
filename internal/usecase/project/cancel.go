package project

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
)

type CancelInput struct {
	ProjectID uuid.UUID
	Actor     valueobject.Actor
	Reason    string
}

type CancelResult struct {
	Project *entity.Project
	// Refund - транзакция возврата остатка эскроу, nil если возвращать было нечего.
	Refund *entity.Transaction
}

type CancelProjectUseCase struct {
	projects *escrow.Projects
	ledger   *ledger.Recorder
	payments gateway.PaymentGateway
	events   *escrow.Emitter
}

func NewCancelProjectUseCase(projects *escrow.Projects, recorder *ledger.Recorder, payments gateway.PaymentGateway, events *escrow.Emitter) *CancelProjectUseCase {
	return &CancelProjectUseCase{projects: projects, ledger: recorder, payments: payments, events: events}
}

func (uc *CancelProjectUseCase) Execute(ctx context.Context, input CancelInput) (*CancelResult, error) {
	key := "cancel:" + input.ProjectID.String()
	var previous valueobject.ProjectStatus

	p, claim, err := uc.projects.Claim(ctx, input.ProjectID, key, func(p *entity.Project, _ time.Time) error {
		if !p.IsParticipant(input.Actor.ID) {
			return apperror.Forbidden("отменить проект может только его участник")
		}
		previous = p.Status
		return p.CheckCancellable()
	})
	if err != nil {
		return nil, err
	}

	var refund *entity.Transaction
	amount := p.Escrow.Remaining
	if amount > 0 {
		description := fmt.Sprintf("Возврат средств по отменённому проекту «%s»", p.Title)
		refund, err = uc.ledger.Execute(ctx, ledger.Entry{
			ProjectID:      p.ID,
			Type:           valueobject.TransactionTypeRefund,
			Amount:         amount,
			Currency:       p.Currency,
			To:             &p.ClientID,
			IdempotencyKey: key,
			Description:    description,
		}, func(ctx context.Context) (gateway.PaymentResult, error) {
			return uc.payments.RefundToClient(ctx, gateway.RefundRequest{
				Amount:         valueobject.ToDecimal(amount, p.Currency),
				Currency:       p.Currency,
				CustomerRef:    p.ClientID.String(),
				Description:    description,
				IdempotencyKey: key,
			})
		})
		if err != nil {
			uc.projects.ReleaseClaim(ctx, p.ID, claim)
			return nil, err
		}
	}

	cancel := func(p *entity.Project, now time.Time) error {
		if err := p.Cancel(input.Actor, amount, now); err != nil {
			return err
		}
		if input.Reason != "" {
			p.Record("cancellation_reason", input.Actor, now, map[string]any{"reason": input.Reason})
		}
		return nil
	}
	if refund != nil {
		p, err = uc.projects.Commit(ctx, p.ID, claim, refund.ID, cancel)
	} else {
		p, err = uc.projects.Finish(ctx, p.ID, claim, cancel)
		if err != nil {
			uc.projects.ReleaseClaim(ctx, input.ProjectID, claim)
		}
	}
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"refunded": amount}
	if refund != nil {
		payload["transactionId"] = refund.ID.String()
	}
	uc.events.Project(ctx, p, escrow.Event{
		Name:      "project.cancelled",
		Actor:     input.Actor,
		OldValues: map[string]any{"status": string(previous)},
		NewValues: map[string]any{"status": string(p.Status)},
		Payload:   payload,
	})
	return &CancelResult{Project: p, Refund: refund}, nil
}
