package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
)

type AuditLog struct {
	db *sqlx.DB
}

func NewAuditLog(db *sqlx.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (a *AuditLog) LogEvent(ctx context.Context, e gateway.AuditEvent) error {
	_, err := a.db.ExecContext(ctx, `INSERT INTO audit_log
			(id, action, actor_id, entity_type, entity_id, old_values, new_values, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), e.Action, e.ActorID, e.EntityType, e.EntityID,
		nullableJSON(e.OldValues), nullableJSON(e.NewValues), e.At)
	if err != nil {
		return dbError(err, "не удалось записать событие аудита")
	}
	return nil
}

func nullableJSON(values map[string]any) any {
	if values == nil {
		return nil
	}
	return jsonb(values)
}
