package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

type UserDirectory interface {
	Role(ctx context.Context, userID uuid.UUID) (valueobject.Role, error)
}
