package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type UserDirectory struct {
	mu    sync.RWMutex
	roles map[uuid.UUID]valueobject.Role
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{roles: make(map[uuid.UUID]valueobject.Role)}
}

func (u *UserDirectory) Put(id uuid.UUID, role valueobject.Role) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roles[id] = role
}

func (u *UserDirectory) Role(_ context.Context, id uuid.UUID) (valueobject.Role, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	r, ok := u.roles[id]
	if !ok {
		return "", apperror.ErrUserNotFound
	}
	return r, nil
}

// Remember запоминает роль из токена; каталог в памяти заполняется только так.
func (u *UserDirectory) Remember(_ context.Context, id uuid.UUID, role valueobject.Role) error {
	u.Put(id, role)
	return nil
}
