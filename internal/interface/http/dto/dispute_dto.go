package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
)

// EvidenceRequest - файл или ссылка. Content приходит в base64.
type EvidenceRequest struct {
	Filename string `json:"filename" binding:"required"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Content  []byte `json:"content"`
}

type CreateDisputeRequest struct {
	Reason   string            `json:"reason" binding:"required"`
	Evidence []EvidenceRequest `json:"evidence" binding:"omitempty,dive"`
}

type PayFeeRequest struct {
	PaymentMethodRef string `json:"payment_method_ref" binding:"required"`
}

type AssignUserRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type NoteRequest struct {
	Note string `json:"note"`
}

type ResolveDisputeRequest struct {
	Decision           string          `json:"decision" binding:"required"`
	AmountToFreelancer decimal.Decimal `json:"amount_to_freelancer"`
	AmountToClient     decimal.Decimal `json:"amount_to_client"`
	Reason             string          `json:"reason" binding:"required"`
}

type SubmitAppealRequest struct {
	Reason   string            `json:"reason" binding:"required"`
	Evidence []EvidenceRequest `json:"evidence" binding:"omitempty,dive"`
}

type ReviewAppealRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
	Notes    string `json:"notes"`
}

// ToEvidenceUploads проставляет автора всем загрузкам.
func ToEvidenceUploads(items []EvidenceRequest, uploadedBy uuid.UUID) []gateway.EvidenceUpload {
	out := make([]gateway.EvidenceUpload, 0, len(items))
	for _, e := range items {
		size := e.Size
		if len(e.Content) > 0 {
			size = int64(len(e.Content))
		}
		out = append(out, gateway.EvidenceUpload{
			Filename:   e.Filename,
			URL:        e.URL,
			Size:       size,
			Content:    e.Content,
			UploadedBy: uploadedBy,
		})
	}
	return out
}

type DisputeFeeResponse struct {
	ClientFee        decimal.Decimal `json:"client_fee"`
	FreelancerFee    decimal.Decimal `json:"freelancer_fee"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         string          `json:"currency"`
	ClientPaid       bool            `json:"client_paid"`
	FreelancerPaid   bool            `json:"freelancer_paid"`
	ClientPaidAt     *time.Time      `json:"client_paid_at,omitempty"`
	FreelancerPaidAt *time.Time      `json:"freelancer_paid_at,omitempty"`
	Status           string          `json:"status"`
}

type ResolutionResponse struct {
	Decision           string          `json:"decision"`
	AmountToFreelancer decimal.Decimal `json:"amount_to_freelancer"`
	AmountToClient     decimal.Decimal `json:"amount_to_client"`
	DecisionReason     string          `json:"decision_reason"`
	DecidedBy          uuid.UUID       `json:"decided_by"`
	DecidedAt          time.Time       `json:"decided_at"`
}

type DisputeResponse struct {
	ID                   uuid.UUID               `json:"id"`
	ProjectID            uuid.UUID               `json:"project_id"`
	MilestoneID          uuid.UUID               `json:"milestone_id"`
	RaisedBy             uuid.UUID               `json:"raised_by"`
	Reason               string                  `json:"reason"`
	Evidence             []entity.Evidence       `json:"evidence"`
	Status               string                  `json:"status"`
	Fee                  DisputeFeeResponse      `json:"fee"`
	AIAnalysis           *entity.AIAnalysis      `json:"ai_analysis,omitempty"`
	MediatorID           *uuid.UUID              `json:"mediator_id,omitempty"`
	MediatorAssignedAt   *time.Time              `json:"mediator_assigned_at,omitempty"`
	ArbitratorID         *uuid.UUID              `json:"arbitrator_id,omitempty"`
	ArbitratorAssignedAt *time.Time              `json:"arbitrator_assigned_at,omitempty"`
	Messages             []entity.DisputeMessage `json:"messages"`
	Resolution           *ResolutionResponse     `json:"resolution,omitempty"`
	Timeline             []entity.TimelineEntry  `json:"timeline"`
	Appeal               *entity.Appeal          `json:"appeal,omitempty"`
	Version              int64                   `json:"version"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

type PayFeeResponse struct {
	Dispute     DisputeResponse      `json:"dispute"`
	Transaction *TransactionResponse `json:"transaction,omitempty"`
	AlreadyPaid bool                 `json:"already_paid"`
}

type PostMessageResponse struct {
	Dispute    DisputeResponse        `json:"dispute"`
	Message    *entity.DisputeMessage `json:"message"`
	Escalation entity.EscalationCheck `json:"escalation"`
	Escalated  bool                   `json:"escalated"`
}

type ResolveDisputeResponse struct {
	Dispute      DisputeResponse       `json:"dispute"`
	Project      ProjectResponse       `json:"project"`
	Transactions []TransactionResponse `json:"transactions"`
}

func ToDisputeResponse(d *entity.Dispute) DisputeResponse {
	c := d.Fee.Currency
	resp := DisputeResponse{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		MilestoneID: d.MilestoneID,
		RaisedBy:    d.RaisedBy,
		Reason:      d.Reason,
		Evidence:    d.Evidence,
		Status:      string(d.Status),
		Fee: DisputeFeeResponse{
			ClientFee:        amount(d.Fee.ClientFee, c),
			FreelancerFee:    amount(d.Fee.FreelancerFee, c),
			TotalAmount:      amount(d.Fee.TotalAmount, c),
			Currency:         string(c),
			ClientPaid:       d.Fee.ClientPaid,
			FreelancerPaid:   d.Fee.FreelancerPaid,
			ClientPaidAt:     d.Fee.ClientPaidAt,
			FreelancerPaidAt: d.Fee.FreelancerPaidAt,
			Status:           string(d.Fee.Status),
		},
		AIAnalysis:           d.AIAnalysis,
		MediatorID:           d.MediatorID,
		MediatorAssignedAt:   d.MediatorAssignedAt,
		ArbitratorID:         d.ArbitratorID,
		ArbitratorAssignedAt: d.ArbitratorAssignedAt,
		Messages:             d.Messages,
		Timeline:             d.Timeline,
		Appeal:               d.Appeal,
		Version:              d.Version,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
	if d.Evidence == nil {
		resp.Evidence = []entity.Evidence{}
	}
	if d.Messages == nil {
		resp.Messages = []entity.DisputeMessage{}
	}
	if r := d.Resolution; r != nil {
		resp.Resolution = &ResolutionResponse{
			Decision:           string(r.Decision),
			AmountToFreelancer: amount(r.AmountToFreelancer, c),
			AmountToClient:     amount(r.AmountToClient, c),
			DecisionReason:     r.DecisionReason,
			DecidedBy:          r.DecidedBy,
			DecidedAt:          r.DecidedAt,
		}
	}
	return resp
}

func ToDisputeResponses(disputes []*entity.Dispute) []DisputeResponse {
	out := make([]DisputeResponse, 0, len(disputes))
	for _, d := range disputes {
		out = append(out, ToDisputeResponse(d))
	}
	return out
}
