package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// UserDirectory - роли пользователей, известных по токенам доступа.
type UserDirectory struct {
	db *sqlx.DB
}

func NewUserDirectory(db *sqlx.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (u *UserDirectory) Role(ctx context.Context, id uuid.UUID) (valueobject.Role, error) {
	var role string
	if err := u.db.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.ErrUserNotFound
		}
		return "", dbError(err, "не удалось получить роль пользователя")
	}
	return valueobject.Role(role), nil
}

// Remember сохраняет роль из проверенного токена.
func (u *UserDirectory) Remember(ctx context.Context, id uuid.UUID, role valueobject.Role) error {
	_, err := u.db.ExecContext(ctx, `INSERT INTO users (id, role) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
		WHERE users.role <> EXCLUDED.role`, id, string(role))
	if err != nil {
		return dbError(err, "не удалось сохранить пользователя")
	}
	return nil
}
