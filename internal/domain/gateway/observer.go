package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ProjectID  uuid.UUID
	Event      string
	Recipients []uuid.UUID
	Payload    map[string]any
}

// NotificationSink и AuditSink только наблюдают за переходами, их ошибки не влияют на операцию.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

type AuditEvent struct {
	Action     string
	ActorID    string
	EntityType string
	EntityID   uuid.UUID
	OldValues  map[string]any
	NewValues  map[string]any
	At         time.Time
}

type AuditSink interface {
	LogEvent(ctx context.Context, e AuditEvent) error
}
