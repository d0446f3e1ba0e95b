package valueobject

import (
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleFreelancer Role = "FREELANCER"
	RoleAdmin      Role = "ADMIN"
	RoleArbitrator Role = "ARBITRATOR"
	RoleSystem     Role = "SYSTEM"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleFreelancer, RoleAdmin, RoleArbitrator, RoleSystem:
		return true
	}
	return false
}

// IsStaff - администратор или арбитр платформы.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleArbitrator
}

func NewRole(role string) (Role, error) {
	r := Role(role)
	if !r.IsValid() || r == RoleSystem {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректная роль")
	}
	return r, nil
}

// SystemPerformer - исполнитель автоматических переходов в журнале действий.
const SystemPerformer = "SYSTEM"

// Actor - инициатор операции.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func SystemActor() Actor {
	return Actor{ID: uuid.Nil, Role: RoleSystem}
}

func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// PerformedBy - строковое представление для журнала действий.
func (a Actor) PerformedBy() string {
	if a.IsSystem() {
		return SystemPerformer
	}
	return a.ID.String()
}
