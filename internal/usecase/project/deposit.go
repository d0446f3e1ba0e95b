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

type DepositInput struct {
	ProjectID        uuid.UUID
	Actor            valueobject.Actor
	PaymentMethodRef string
}

type DepositResult struct {
	Project     *entity.Project
	Transaction *entity.Transaction
	// Charged - сумма списания с клиента: бюджет плюс комиссия клиента.
	Charged int64
}

type DepositUseCase struct {
	projects *escrow.Projects
	ledger   *ledger.Recorder
	payments gateway.PaymentGateway
	events   *escrow.Emitter
}

func NewDepositUseCase(projects *escrow.Projects, recorder *ledger.Recorder, payments gateway.PaymentGateway, events *escrow.Emitter) *DepositUseCase {
	return &DepositUseCase{projects: projects, ledger: recorder, payments: payments, events: events}
}

func (uc *DepositUseCase) Execute(ctx context.Context, input DepositInput) (*DepositResult, error) {
	key := "deposit:" + input.ProjectID.String()

	p, claim, err := uc.projects.Claim(ctx, input.ProjectID, key, func(p *entity.Project, _ time.Time) error {
		if !p.IsClient(input.Actor.ID) {
			return apperror.Forbidden("внести депозит может только клиент проекта")
		}
		if p.Status != valueobject.ProjectStatusAwaitingDeposit {
			return apperror.Newf(apperror.ErrCodeStateConflict, "депозит доступен только в статусе %s, текущий статус %s",
				valueobject.ProjectStatusAwaitingDeposit, p.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fees := ledger.DepositFees(p.Budget, p.PaymentSchedule)
	charged := p.Budget + fees.Client
	description := fmt.Sprintf("Депозит по проекту «%s»", p.Title)

	tx, err := uc.ledger.Execute(ctx, ledger.Entry{
		ProjectID:      p.ID,
		Type:           valueobject.TransactionTypeDeposit,
		Amount:         p.Budget,
		Currency:       p.Currency,
		From:           &p.ClientID,
		Fees:           fees,
		IdempotencyKey: key,
		Description:    description,
	}, func(ctx context.Context) (gateway.PaymentResult, error) {
		return uc.payments.CreateDepositIntent(ctx, gateway.DepositRequest{
			Amount:           valueobject.ToDecimal(charged, p.Currency),
			Currency:         p.Currency,
			Description:      description,
			PaymentMethodRef: input.PaymentMethodRef,
			CustomerRef:      p.ClientID.String(),
			IdempotencyKey:   key,
		})
	})
	if err != nil {
		uc.projects.ReleaseClaim(ctx, p.ID, claim)
		return nil, err
	}

	p, err = uc.projects.Commit(ctx, p.ID, claim, tx.ID, func(p *entity.Project, now time.Time) error {
		return p.ApplyDeposit(now)
	})
	if err != nil {
		return nil, err
	}

	uc.events.Project(ctx, p, escrow.Event{
		Name:      "project.funded",
		Actor:     input.Actor,
		OldValues: map[string]any{"status": string(valueobject.ProjectStatusAwaitingDeposit)},
		NewValues: map[string]any{"status": string(p.Status), "totalHeld": p.Escrow.TotalHeld},
		Payload:   map[string]any{"amount": p.Budget, "clientFee": fees.Client, "transactionId": tx.ID.String()},
	})
	return &DepositResult{Project: p, Transaction: tx, Charged: charged}, nil
}
