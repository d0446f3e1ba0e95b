package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
)

// ErrNotDue - срок автоодобрения ещё не наступил.
var ErrNotDue = apperror.StateConflict("срок автоодобрения этапа не наступил")

type ReleaseRequest struct {
	ProjectID   uuid.UUID
	MilestoneID uuid.UUID
	Actor       valueobject.Actor
	// Auto - одобрение по истечении срока, инициатор SYSTEM.
	Auto bool
}

type ReleaseResult struct {
	Project     *entity.Project
	Milestone   *entity.Milestone
	Transaction *entity.Transaction
	Breakdown   ledger.ReleaseBreakdown
}

// Releaser выполняет выплату по этапу. Ручное и автоматическое одобрение идут одним путём.
type Releaser struct {
	projects *Projects
	ledger   *ledger.Recorder
	payments gateway.PaymentGateway
	events   *Emitter
}

func NewReleaser(projects *Projects, recorder *ledger.Recorder, payments gateway.PaymentGateway, events *Emitter) *Releaser {
	return &Releaser{
		projects: projects,
		ledger:   recorder,
		payments: payments,
		events:   events,
	}
}

func releaseKey(milestoneID uuid.UUID) string {
	return "release:" + milestoneID.String()
}

func (r *Releaser) Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error) {
	key := releaseKey(req.MilestoneID)

	p, claim, err := r.projects.Claim(ctx, req.ProjectID, key, func(p *entity.Project, now time.Time) error {
		if req.Auto {
			if !req.Actor.IsSystem() {
				return apperror.ErrForbidden
			}
		} else if !p.IsClient(req.Actor.ID) {
			return apperror.Forbidden("одобрить этап может только клиент проекта")
		}
		if !p.Status.AcceptsMilestoneWork() {
			return apperror.Newf(apperror.ErrCodeStateConflict, "проект в статусе %s не принимает одобрение этапов", p.Status)
		}
		m, err := p.Milestone(req.MilestoneID)
		if err != nil {
			return err
		}
		if m.Status != valueobject.MilestoneStatusSubmitted {
			return apperror.Newf(apperror.ErrCodeStateConflict, "одобрить можно только сданный этап, текущий статус %s", m.Status)
		}
		if m.IsSettled() {
			return apperror.StateConflict("средства по этапу уже распределены")
		}
		if req.Auto && !m.ReviewDue(p.PaymentSchedule.AutoApproveDays, now) {
			return ErrNotDue
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m, err := p.Milestone(req.MilestoneID)
	if err != nil {
		r.projects.ReleaseClaim(ctx, p.ID, claim)
		return nil, err
	}
	breakdown := ledger.Release(m.Unsettled(), p.PaymentSchedule)

	tx, err := r.ledger.Execute(ctx, ledger.Entry{
		ProjectID:      p.ID,
		MilestoneID:    &m.ID,
		Type:           valueobject.TransactionTypeMilestoneRelease,
		Amount:         breakdown.Net,
		Currency:       m.Currency,
		To:             p.FreelancerID,
		Fees:           breakdown.Fees,
		IdempotencyKey: key,
		Description:    fmt.Sprintf("Выплата по этапу «%s»", m.Title),
	}, func(ctx context.Context) (gateway.PaymentResult, error) {
		return r.payments.TransferToFreelancer(ctx, gateway.TransferRequest{
			Amount:          valueobject.ToDecimal(breakdown.Net, m.Currency),
			Currency:        m.Currency,
			PayoutAccountID: p.FreelancerPayoutAccount,
			Description:     fmt.Sprintf("Выплата по этапу «%s»", m.Title),
			IdempotencyKey:  key,
		})
	})
	if err != nil {
		r.projects.ReleaseClaim(ctx, p.ID, claim)
		return nil, err
	}

	performer := req.Actor.PerformedBy()
	p, err = r.projects.Commit(ctx, p.ID, claim, tx.ID, func(p *entity.Project, now time.Time) error {
		m, err := p.Milestone(req.MilestoneID)
		if err != nil {
			return err
		}
		return p.CompleteMilestoneRelease(m, req.Auto, performer, breakdown.Gross, now)
	})
	if err != nil {
		return nil, err
	}
	m, _ = p.Milestone(req.MilestoneID)

	r.events.Project(ctx, p, Event{
		Name:  "milestone.approved",
		Actor: req.Actor,
		NewValues: map[string]any{
			"milestoneId":  m.ID.String(),
			"status":       string(m.Status),
			"autoApproved": m.AutoApproved,
		},
		Payload: map[string]any{
			"milestoneId":   m.ID.String(),
			"amount":        breakdown.Gross,
			"netAmount":     breakdown.Net,
			"autoApproved":  m.AutoApproved,
			"transactionId": tx.ID.String(),
		},
	})
	if p.Status == valueobject.ProjectStatusCompleted {
		r.events.Project(ctx, p, Event{Name: "project.completed", Actor: req.Actor})
	}

	return &ReleaseResult{Project: p, Milestone: m, Transaction: tx, Breakdown: breakdown}, nil
}
