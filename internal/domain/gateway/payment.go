package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type PaymentResult struct {
	ID       string
	Status   PaymentStatus
	Provider string
}

type TransferRequest struct {
	Amount          decimal.Decimal
	Currency        valueobject.Currency
	PayoutAccountID string
	Description     string
	IdempotencyKey  string
}

type DepositRequest struct {
	Amount           decimal.Decimal
	Currency         valueobject.Currency
	Description      string
	PaymentMethodRef string
	CustomerRef      string
	IdempotencyKey   string
}

type RefundRequest struct {
	Amount         decimal.Decimal
	Currency       valueobject.Currency
	CustomerRef    string
	Description    string
	IdempotencyKey string
}

// PaymentGateway исполняет движение средств, суммы уже посчитаны журналом.
// Ошибка означает, что деньги не двигались.
type PaymentGateway interface {
	TransferToFreelancer(ctx context.Context, req TransferRequest) (PaymentResult, error)
	CreateDepositIntent(ctx context.Context, req DepositRequest) (PaymentResult, error)
	RefundToClient(ctx context.Context, req RefundRequest) (PaymentResult, error)
}
