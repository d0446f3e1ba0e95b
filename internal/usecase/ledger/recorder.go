package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
)

// Entry - намерение переместить средства.
type Entry struct {
	ProjectID      uuid.UUID
	MilestoneID    *uuid.UUID
	DisputeID      *uuid.UUID
	Type           valueobject.TransactionType
	Amount         int64
	Currency       valueobject.Currency
	From           *uuid.UUID
	To             *uuid.UUID
	Fees           entity.Fees
	IdempotencyKey string
	Description    string
}

// Recorder ведёт журнал транзакций: запись создаётся в PENDING до вызова шлюза
// и закрывается по его результату.
type Recorder struct {
	repo  repository.TransactionRepository
	clock clock.Clock
	log   *logrus.Entry
}

func NewRecorder(repo repository.TransactionRepository, c clock.Clock) *Recorder {
	return &Recorder{
		repo:  repo,
		clock: c,
		log:   logger.WithComponent("ledger"),
	}
}

func (r *Recorder) Begin(ctx context.Context, e Entry) (*entity.Transaction, error) {
	tx, err := entity.NewTransaction(entity.NewTransactionParams{
		ProjectID:      e.ProjectID,
		MilestoneID:    e.MilestoneID,
		DisputeID:      e.DisputeID,
		Type:           e.Type,
		Amount:         e.Amount,
		Currency:       e.Currency,
		FromUserID:     e.From,
		ToUserID:       e.To,
		IdempotencyKey: e.IdempotencyKey,
		Description:    e.Description,
		Fees:           e.Fees,
	}, r.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := r.repo.Append(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Complete фиксирует успех шлюза. Ошибка здесь означает, что деньги ушли,
// а журнал об этом не знает: запись помечается для ручной сверки.
func (r *Recorder) Complete(ctx context.Context, tx *entity.Transaction, res gateway.PaymentResult) error {
	now := r.clock.Now()
	err := r.repo.UpdateStatus(ctx, tx.ID, repository.StatusChange{
		From:                  valueobject.TransactionStatusPending,
		To:                    valueobject.TransactionStatusCompleted,
		Provider:              res.Provider,
		ProviderTransactionID: res.ID,
		At:                    now,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"transaction_id":          tx.ID,
			"project_id":              tx.ProjectID,
			"type":                    tx.Type,
			"amount":                  tx.Amount,
			"provider_transaction_id": res.ID,
			"reconciliation":          "required",
		}).WithError(err).Error("не удалось закрыть транзакцию после успешного платежа")
		return err
	}
	tx.Status = valueobject.TransactionStatusCompleted
	tx.Provider = res.Provider
	tx.ProviderTransactionID = res.ID
	tx.UpdatedAt = now
	tx.CompletedAt = &now
	return nil
}

func (r *Recorder) Fail(ctx context.Context, tx *entity.Transaction, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	err := r.repo.UpdateStatus(ctx, tx.ID, repository.StatusChange{
		From:          valueobject.TransactionStatusPending,
		To:            valueobject.TransactionStatusFailed,
		FailureReason: reason,
		At:            r.clock.Now(),
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"project_id":     tx.ProjectID,
		}).WithError(err).Warn("не удалось пометить транзакцию как неуспешную")
		return
	}
	tx.Status = valueobject.TransactionStatusFailed
	tx.FailureReason = reason
}

// Execute проводит запись через шлюз: Begin, вызов pay, затем Complete или Fail.
// При ошибке шлюза возвращается повторяемая ошибка внешнего сервиса.
func (r *Recorder) Execute(ctx context.Context, e Entry, pay func(context.Context) (gateway.PaymentResult, error)) (*entity.Transaction, error) {
	tx, err := r.Begin(ctx, e)
	if err != nil {
		return nil, err
	}
	res, err := pay(ctx)
	if err == nil && res.Status == gateway.PaymentStatusFailed {
		err = fmt.Errorf("платёж %s отклонён провайдером", res.ID)
	}
	if err != nil {
		r.Fail(ctx, tx, err)
		r.log.WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"project_id":     tx.ProjectID,
			"type":           tx.Type,
		}).WithError(err).Warn("платёжный шлюз вернул ошибку")
		return tx, apperror.External(err, "платёжный шлюз недоступен, операцию можно повторить")
	}
	// деньги уже ушли, ошибку журнала не пробрасываем
	_ = r.Complete(ctx, tx, res)
	return tx, nil
}

func (r *Recorder) History(ctx context.Context, projectID uuid.UUID) ([]*entity.Transaction, error) {
	return r.repo.ListByProject(ctx, projectID)
}
