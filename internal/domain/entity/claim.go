package entity

import (
	"time"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// OperationClaim - метка денежной операции, выполняемой над сущностью прямо сейчас.
type OperationClaim struct {
	Key     string    `json:"key"`
	TakenAt time.Time `json:"takenAt"`
}

// Live сообщает, что метка ещё действует. Метка старше timeout считается брошенной.
func (c *OperationClaim) Live(now time.Time, timeout time.Duration) bool {
	return c != nil && now.Sub(c.TakenAt) < timeout
}

// acquireClaim выдаёт метку key, пока нет другой действующей метки.
func acquireClaim(current *OperationClaim, key string, now time.Time, timeout time.Duration) (*OperationClaim, error) {
	if current.Live(now, timeout) {
		return nil, apperror.Newf(apperror.ErrCodeStateConflict, "уже выполняется операция %s", current.Key)
	}
	return &OperationClaim{Key: key, TakenAt: now}, nil
}
