package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// TransactionRepository пишет журнал только вставками; порядок задаёт колонка seq.
type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

type transactionRow struct {
	ID                    uuid.UUID          `db:"id"`
	ProjectID             uuid.UUID          `db:"project_id"`
	MilestoneID           *uuid.UUID         `db:"milestone_id"`
	DisputeID             *uuid.UUID         `db:"dispute_id"`
	Type                  string             `db:"type"`
	Amount                int64              `db:"amount"`
	Currency              string             `db:"currency"`
	FromUserID            *uuid.UUID         `db:"from_user_id"`
	ToUserID              *uuid.UUID         `db:"to_user_id"`
	Status                string             `db:"status"`
	Provider              string             `db:"provider"`
	ProviderTransactionID string             `db:"provider_transaction_id"`
	IdempotencyKey        string             `db:"idempotency_key"`
	Description           string             `db:"description"`
	Fees                  JSONB[entity.Fees] `db:"fees"`
	FailureReason         string             `db:"failure_reason"`
	CreatedAt             time.Time          `db:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at"`
	CompletedAt           *time.Time         `db:"completed_at"`
}

const transactionColumns = `id, project_id, milestone_id, dispute_id, type, amount, currency, from_user_id,
	to_user_id, status, provider, provider_transaction_id, idempotency_key, description, fees,
	failure_reason, created_at, updated_at, completed_at`

func (r *TransactionRepository) Append(ctx context.Context, tx *entity.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES (:id, :project_id, :milestone_id, :dispute_id, :type, :amount, :currency, :from_user_id,
			:to_user_id, :status, :provider, :provider_transaction_id, :idempotency_key, :description, :fees,
			:failure_reason, :created_at, :updated_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, toTransactionRow(tx)); err != nil {
		if isUniqueViolation(err) {
			return apperror.New(apperror.ErrCodeConflict, "транзакция уже существует")
		}
		return dbError(err, "не удалось записать транзакцию")
	}
	return nil
}

// UpdateStatus меняет статус только если запись всё ещё в change.From.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, change repository.StatusChange) error {
	if !change.From.CanTransitionTo(change.To) {
		return apperror.Newf(apperror.ErrCodeStateConflict, "переход транзакции %s -> %s недопустим", change.From, change.To)
	}
	var completedAt *time.Time
	if change.To == valueobject.TransactionStatusCompleted {
		at := change.At
		completedAt = &at
	}
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET
			status = $3,
			provider = $4,
			provider_transaction_id = $5,
			failure_reason = $6,
			updated_at = $7,
			completed_at = COALESCE($8, completed_at)
		WHERE id = $1 AND status = $2`,
		id, string(change.From), string(change.To), change.Provider, change.ProviderTransactionID,
		change.FailureReason, change.At, completedAt)
	if err != nil {
		return dbError(err, "не удалось обновить статус транзакции")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "не удалось проверить результат обновления транзакции")
	}
	if n == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return apperror.Newf(apperror.ErrCodeStateConflict, "транзакция уже в статусе %s", current.Status)
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error) {
	var row transactionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, dbError(err, "не удалось получить транзакцию")
	}
	return row.toEntity(), nil
}

func (r *TransactionRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.Transaction, error) {
	var rows []transactionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+transactionColumns+` FROM transactions WHERE project_id = $1 ORDER BY seq`, projectID)
	if err != nil {
		return nil, dbError(err, "не удалось получить журнал транзакций")
	}
	out := make([]*entity.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func toTransactionRow(t *entity.Transaction) transactionRow {
	return transactionRow{
		ID:                    t.ID,
		ProjectID:             t.ProjectID,
		MilestoneID:           t.MilestoneID,
		DisputeID:             t.DisputeID,
		Type:                  string(t.Type),
		Amount:                t.Amount,
		Currency:              string(t.Currency),
		FromUserID:            t.FromUserID,
		ToUserID:              t.ToUserID,
		Status:                string(t.Status),
		Provider:              t.Provider,
		ProviderTransactionID: t.ProviderTransactionID,
		IdempotencyKey:        t.IdempotencyKey,
		Description:           t.Description,
		Fees:                  jsonb(t.Fees),
		FailureReason:         t.FailureReason,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
		CompletedAt:           t.CompletedAt,
	}
}

func (row transactionRow) toEntity() *entity.Transaction {
	return &entity.Transaction{
		ID:                    row.ID,
		ProjectID:             row.ProjectID,
		MilestoneID:           row.MilestoneID,
		DisputeID:             row.DisputeID,
		Type:                  valueobject.TransactionType(row.Type),
		Amount:                row.Amount,
		Currency:              valueobject.Currency(row.Currency),
		FromUserID:            row.FromUserID,
		ToUserID:              row.ToUserID,
		Status:                valueobject.TransactionStatus(row.Status),
		Provider:              row.Provider,
		ProviderTransactionID: row.ProviderTransactionID,
		IdempotencyKey:        row.IdempotencyKey,
		Description:           row.Description,
		Fees:                  row.Fees.V,
		FailureReason:         row.FailureReason,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
		CompletedAt:           row.CompletedAt,
	}
}
