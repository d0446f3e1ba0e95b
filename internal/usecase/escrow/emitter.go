package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// Emitter сообщает наблюдателям о переходах. Ошибки наблюдателей никогда не возвращаются.
type Emitter struct {
	notify gateway.NotificationSink
	audit  gateway.AuditSink
	log    *logrus.Entry
}

func NewEmitter(notify gateway.NotificationSink, audit gateway.AuditSink) *Emitter {
	return &Emitter{
		notify: notify,
		audit:  audit,
		log:    logger.WithComponent("emitter"),
	}
}

type Event struct {
	Name       string
	Actor      valueobject.Actor
	EntityType string
	EntityID   uuid.UUID
	OldValues  map[string]any
	NewValues  map[string]any
	Payload    map[string]any
}

// Project рассылает событие участникам проекта и пишет его в аудит.
func (e *Emitter) Project(ctx context.Context, p *entity.Project, ev Event) {
	if e == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if ev.EntityType == "" {
		ev.EntityType = "project"
		ev.EntityID = p.ID
	}

	recipients := []uuid.UUID{p.ClientID}
	if p.FreelancerID != nil {
		recipients = append(recipients, *p.FreelancerID)
	}
	payload := map[string]any{
		"projectId": p.ID.String(),
		"status":    string(p.Status),
	}
	for k, v := range ev.Payload {
		payload[k] = v
	}

	if e.notify != nil {
		err := e.notify.Notify(ctx, gateway.Notification{
			ProjectID:  p.ID,
			Event:      ev.Name,
			Recipients: recipients,
			Payload:    payload,
		})
		if err != nil {
			e.log.WithFields(logrus.Fields{"project_id": p.ID, "event": ev.Name}).WithError(err).Warn("уведомление не доставлено")
		}
	}

	if e.audit != nil {
		err := e.audit.LogEvent(ctx, gateway.AuditEvent{
			Action:     ev.Name,
			ActorID:    ev.Actor.PerformedBy(),
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			OldValues:  ev.OldValues,
			NewValues:  ev.NewValues,
			At:         time.Now().UTC(),
		})
		if err != nil {
			e.log.WithFields(logrus.Fields{"entity_id": ev.EntityID, "event": ev.Name}).WithError(err).Warn("событие аудита не записано")
		}
	}
}

// Dispute - то же для событий спора; получатели берутся из проекта.
func (e *Emitter) Dispute(ctx context.Context, p *entity.Project, d *entity.Dispute, ev Event) {
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	ev.Payload["disputeId"] = d.ID.String()
	ev.Payload["milestoneId"] = d.MilestoneID.String()
	ev.Payload["disputeStatus"] = string(d.Status)
	ev.EntityType = "dispute"
	ev.EntityID = d.ID
	e.Project(ctx, p, ev)
}
