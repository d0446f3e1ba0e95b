package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Fees - разбивка комиссий в минимальных единицах валюты транзакции.
type Fees struct {
	Client           int64 `json:"client"`
	Freelancer       int64 `json:"freelancer"`
	Platform         int64 `json:"platform"`
	PaymentProcessor int64 `json:"paymentProcessor"`
	Total            int64 `json:"total"`
}

// NewFees собирает разбивку; комиссия процессора в Total не входит.
func NewFees(client, freelancer int64) Fees {
	total := client + freelancer
	return Fees{
		Client:     client,
		Freelancer: freelancer,
		Platform:   total,
		Total:      total,
	}
}

// Transaction - неизменяемая запись журнала движения средств.
// После создания меняется только Status и данные провайдера.
type Transaction struct {
	ID                    uuid.UUID
	ProjectID             uuid.UUID
	MilestoneID           *uuid.UUID
	DisputeID             *uuid.UUID
	Type                  valueobject.TransactionType
	Amount                int64
	Currency              valueobject.Currency
	FromUserID            *uuid.UUID
	ToUserID              *uuid.UUID
	Status                valueobject.TransactionStatus
	Provider              string
	ProviderTransactionID string
	IdempotencyKey        string
	Description           string
	Fees                  Fees
	FailureReason         string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}

type NewTransactionParams struct {
	ProjectID      uuid.UUID
	MilestoneID    *uuid.UUID
	DisputeID      *uuid.UUID
	Type           valueobject.TransactionType
	Amount         int64
	Currency       valueobject.Currency
	FromUserID     *uuid.UUID
	ToUserID       *uuid.UUID
	IdempotencyKey string
	Description    string
	Fees           Fees
}

func NewTransaction(p NewTransactionParams, now time.Time) (*Transaction, error) {
	if !p.Type.IsValid() {
		return nil, apperror.Validation("некорректный тип транзакции")
	}
	if !p.Currency.IsValid() {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "валюта %q не поддерживается", p.Currency)
	}
	if p.Amount <= 0 {
		return nil, apperror.Validation("сумма транзакции должна быть больше нуля")
	}
	if p.Fees.Total != p.Fees.Client+p.Fees.Freelancer {
		return nil, apperror.Validation("итог комиссий не равен сумме комиссий сторон")
	}
	return &Transaction{
		ID:             uuid.New(),
		ProjectID:      p.ProjectID,
		MilestoneID:    p.MilestoneID,
		DisputeID:      p.DisputeID,
		Type:           p.Type,
		Amount:         p.Amount,
		Currency:       p.Currency,
		FromUserID:     p.FromUserID,
		ToUserID:       p.ToUserID,
		Status:         valueobject.TransactionStatusPending,
		IdempotencyKey: p.IdempotencyKey,
		Description:    p.Description,
		Fees:           p.Fees,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (t *Transaction) IsPending() bool {
	return t.Status == valueobject.TransactionStatusPending
}
