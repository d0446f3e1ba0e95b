package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// TransactionStore - журнал в памяти, порядок вставки сохраняется.
type TransactionStore struct {
	mu    sync.RWMutex
	order []uuid.UUID
	items map[uuid.UUID]*entity.Transaction
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{items: make(map[uuid.UUID]*entity.Transaction)}
}

func (s *TransactionStore) Append(_ context.Context, tx *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[tx.ID]; ok {
		return apperror.New(apperror.ErrCodeConflict, "транзакция уже существует")
	}
	s.items[tx.ID] = tx.Clone()
	s.order = append(s.order, tx.ID)
	return nil
}

func (s *TransactionStore) UpdateStatus(_ context.Context, id uuid.UUID, change repository.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.items[id]
	if !ok {
		return apperror.ErrTransactionNotFound
	}
	if tx.Status != change.From || !change.From.CanTransitionTo(change.To) {
		return apperror.Newf(apperror.ErrCodeStateConflict, "транзакция уже в статусе %s", tx.Status)
	}
	tx.Status = change.To
	tx.Provider = change.Provider
	tx.ProviderTransactionID = change.ProviderTransactionID
	tx.FailureReason = change.FailureReason
	tx.UpdatedAt = change.At
	if change.To == valueobject.TransactionStatusCompleted {
		at := change.At
		tx.CompletedAt = &at
	}
	return nil
}

func (s *TransactionStore) FindByID(_ context.Context, id uuid.UUID) (*entity.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.items[id]
	if !ok {
		return nil, apperror.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (s *TransactionStore) ListByProject(_ context.Context, projectID uuid.UUID) ([]*entity.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Transaction
	for _, id := range s.order {
		if tx := s.items[id]; tx.ProjectID == projectID {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}
