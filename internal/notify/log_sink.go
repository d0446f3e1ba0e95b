package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// LogAuditSink пишет аудит в лог процесса, когда нет базы данных.
type LogAuditSink struct {
	log *logrus.Entry
}

func NewLogAuditSink() *LogAuditSink {
	return &LogAuditSink{log: logger.WithComponent("audit")}
}

func (s *LogAuditSink) LogEvent(_ context.Context, e gateway.AuditEvent) error {
	s.log.WithFields(logrus.Fields{
		"action":      e.Action,
		"actor":       e.ActorID,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"new_values":  e.NewValues,
	}).Info("audit")
	return nil
}
