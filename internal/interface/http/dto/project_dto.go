package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-backend/internal/usecase/project"
)

type MilestoneRequest struct {
	Title              string          `json:"title" binding:"required"`
	Description        string          `json:"description"`
	AcceptanceCriteria string          `json:"acceptance_criteria"`
	Amount             decimal.Decimal `json:"amount"`
	Deadline           *string         `json:"deadline"`
}

type CreateProjectRequest struct {
	Title       string             `json:"title" binding:"required"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	Budget      decimal.Decimal    `json:"budget"`
	Currency    string             `json:"currency" binding:"required"`
	Deadline    *string            `json:"deadline"`
	Milestones  []MilestoneRequest `json:"milestones" binding:"required,min=1,dive"`

	ClientFeePercent     *decimal.Decimal `json:"client_fee_percent"`
	FreelancerFeePercent *decimal.Decimal `json:"freelancer_fee_percent"`
	AutoApproveDays      *int             `json:"auto_approve_days" binding:"omitempty,min=1,max=90"`
}

type InviteFreelancerRequest struct {
	FreelancerID string `json:"freelancer_id" binding:"required,uuid"`
}

type AcceptInvitationRequest struct {
	PayoutAccount string `json:"payout_account" binding:"required"`
}

type DepositRequest struct {
	PaymentMethodRef string `json:"payment_method_ref" binding:"required"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type SubmitMilestoneRequest struct {
	Deliverables []string `json:"deliverables" binding:"required,min=1"`
	Notes        string   `json:"notes"`
}

type RevisionRequest struct {
	Notes string `json:"notes" binding:"required"`
}

type EscrowResponse struct {
	Status        string          `json:"status"`
	TotalHeld     decimal.Decimal `json:"total_held"`
	TotalReleased decimal.Decimal `json:"total_released"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
	Remaining     decimal.Decimal `json:"remaining"`
}

type MilestoneResponse struct {
	ID                 uuid.UUID                `json:"id"`
	Position           int                      `json:"position"`
	Title              string                   `json:"title"`
	Description        string                   `json:"description,omitempty"`
	AcceptanceCriteria string                   `json:"acceptance_criteria,omitempty"`
	Amount             decimal.Decimal          `json:"amount"`
	Currency           string                   `json:"currency"`
	Deadline           *time.Time               `json:"deadline,omitempty"`
	Status             string                   `json:"status"`
	Deliverables       []string                 `json:"deliverables,omitempty"`
	SubmissionNotes    string                   `json:"submission_notes,omitempty"`
	RevisionHistory    []entity.RevisionRequest `json:"revision_history,omitempty"`
	AutoApproved       bool                     `json:"auto_approved"`
	Released           decimal.Decimal          `json:"released"`
	Refunded           decimal.Decimal          `json:"refunded"`
	StartedAt          *time.Time               `json:"started_at,omitempty"`
	SubmittedAt        *time.Time               `json:"submitted_at,omitempty"`
	ApprovedAt         *time.Time               `json:"approved_at,omitempty"`
}

type ProjectResponse struct {
	ID              uuid.UUID              `json:"id"`
	ClientID        uuid.UUID              `json:"client_id"`
	FreelancerID    *uuid.UUID             `json:"freelancer_id,omitempty"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description,omitempty"`
	Category        string                 `json:"category,omitempty"`
	Budget          decimal.Decimal        `json:"budget"`
	Currency        string                 `json:"currency"`
	Deadline        *time.Time             `json:"deadline,omitempty"`
	Status          string                 `json:"status"`
	Escrow          EscrowResponse         `json:"escrow"`
	PaymentSchedule entity.PaymentSchedule `json:"payment_schedule"`
	Milestones      []MilestoneResponse    `json:"milestones"`
	ActivityLog     []entity.ActivityEntry `json:"activity_log,omitempty"`
	DuplicatedFrom  *uuid.UUID             `json:"duplicated_from,omitempty"`
	Version         int64                  `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type FeesResponse struct {
	Client     decimal.Decimal `json:"client"`
	Freelancer decimal.Decimal `json:"freelancer"`
	Platform   decimal.Decimal `json:"platform"`
	Total      decimal.Decimal `json:"total"`
}

type TransactionResponse struct {
	ID                    uuid.UUID       `json:"id"`
	ProjectID             uuid.UUID       `json:"project_id"`
	MilestoneID           *uuid.UUID      `json:"milestone_id,omitempty"`
	DisputeID             *uuid.UUID      `json:"dispute_id,omitempty"`
	Type                  string          `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	FromUserID            *uuid.UUID      `json:"from_user_id,omitempty"`
	ToUserID              *uuid.UUID      `json:"to_user_id,omitempty"`
	Status                string          `json:"status"`
	Provider              string          `json:"provider,omitempty"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	Description           string          `json:"description,omitempty"`
	Fees                  FeesResponse    `json:"fees"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}

type DepositResponse struct {
	Project     ProjectResponse     `json:"project"`
	Transaction TransactionResponse `json:"transaction"`
	Charged     decimal.Decimal     `json:"charged"`
}

type CancelResponse struct {
	Project ProjectResponse      `json:"project"`
	Refund  *TransactionResponse `json:"refund,omitempty"`
}

type BreakdownResponse struct {
	Gross         decimal.Decimal `json:"gross"`
	Net           decimal.Decimal `json:"net"`
	FreelancerFee decimal.Decimal `json:"freelancer_fee"`
	ClientFee     decimal.Decimal `json:"client_fee"`
}

type ReleaseResponse struct {
	Project     ProjectResponse     `json:"project"`
	Milestone   MilestoneResponse   `json:"milestone"`
	Transaction TransactionResponse `json:"transaction"`
	Breakdown   BreakdownResponse   `json:"breakdown"`
}

func ToMilestoneResponse(m *entity.Milestone) MilestoneResponse {
	return MilestoneResponse{
		ID:                 m.ID,
		Position:           m.Position,
		Title:              m.Title,
		Description:        m.Description,
		AcceptanceCriteria: m.AcceptanceCriteria,
		Amount:             amount(m.Amount, m.Currency),
		Currency:           string(m.Currency),
		Deadline:           m.Deadline,
		Status:             string(m.Status),
		Deliverables:       m.Deliverables,
		SubmissionNotes:    m.SubmissionNotes,
		RevisionHistory:    m.RevisionHistory,
		AutoApproved:       m.AutoApproved,
		Released:           amount(m.Released, m.Currency),
		Refunded:           amount(m.Refunded, m.Currency),
		StartedAt:          m.StartedAt,
		SubmittedAt:        m.SubmittedAt,
		ApprovedAt:         m.ApprovedAt,
	}
}

func ToProjectResponse(p *entity.Project) ProjectResponse {
	milestones := make([]MilestoneResponse, 0, len(p.Milestones))
	for _, m := range p.Milestones {
		milestones = append(milestones, ToMilestoneResponse(m))
	}
	return ProjectResponse{
		ID:           p.ID,
		ClientID:     p.ClientID,
		FreelancerID: p.FreelancerID,
		Title:        p.Title,
		Description:  p.Description,
		Category:     p.Category,
		Budget:       amount(p.Budget, p.Currency),
		Currency:     string(p.Currency),
		Deadline:     p.Deadline,
		Status:       string(p.Status),
		Escrow: EscrowResponse{
			Status:        string(p.Escrow.Status),
			TotalHeld:     amount(p.Escrow.TotalHeld, p.Currency),
			TotalReleased: amount(p.Escrow.TotalReleased, p.Currency),
			TotalRefunded: amount(p.Escrow.TotalRefunded, p.Currency),
			Remaining:     amount(p.Escrow.Remaining, p.Currency),
		},
		PaymentSchedule: p.PaymentSchedule,
		Milestones:      milestones,
		ActivityLog:     p.ActivityLog,
		DuplicatedFrom:  p.DuplicatedFrom,
		Version:         p.Version,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func ToProjectResponses(projects []*entity.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, ToProjectResponse(p))
	}
	return out
}

func ToTransactionResponse(t *entity.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                    t.ID,
		ProjectID:             t.ProjectID,
		MilestoneID:           t.MilestoneID,
		DisputeID:             t.DisputeID,
		Type:                  string(t.Type),
		Amount:                amount(t.Amount, t.Currency),
		Currency:              string(t.Currency),
		FromUserID:            t.FromUserID,
		ToUserID:              t.ToUserID,
		Status:                string(t.Status),
		Provider:              t.Provider,
		ProviderTransactionID: t.ProviderTransactionID,
		Description:           t.Description,
		Fees: FeesResponse{
			Client:     amount(t.Fees.Client, t.Currency),
			Freelancer: amount(t.Fees.Freelancer, t.Currency),
			Platform:   amount(t.Fees.Platform, t.Currency),
			Total:      amount(t.Fees.Total, t.Currency),
		},
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

func ToTransactionResponses(txs []*entity.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, ToTransactionResponse(t))
	}
	return out
}

func ToReleaseResponse(r *escrow.ReleaseResult) ReleaseResponse {
	c := r.Project.Currency
	return ReleaseResponse{
		Project:     ToProjectResponse(r.Project),
		Milestone:   ToMilestoneResponse(r.Milestone),
		Transaction: ToTransactionResponse(r.Transaction),
		Breakdown: BreakdownResponse{
			Gross:         amount(r.Breakdown.Gross, c),
			Net:           amount(r.Breakdown.Net, c),
			FreelancerFee: amount(r.Breakdown.FreelancerFee, c),
			ClientFee:     amount(r.Breakdown.ClientFee, c),
		},
	}
}

func ToDepositResponse(r *project.DepositResult) DepositResponse {
	return DepositResponse{
		Project:     ToProjectResponse(r.Project),
		Transaction: ToTransactionResponse(r.Transaction),
		Charged:     amount(r.Charged, r.Project.Currency),
	}
}

func ToCancelResponse(r *project.CancelResult) CancelResponse {
	out := CancelResponse{Project: ToProjectResponse(r.Project)}
	if r.Refund != nil {
		refund := ToTransactionResponse(r.Refund)
		out.Refund = &refund
	}
	return out
}
