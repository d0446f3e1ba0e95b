package dispute

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

const maxMutateAttempts = 5

// Deps - общие зависимости сценариев спора.
type Deps struct {
	Disputes repository.DisputeRepository
	Projects *escrow.Projects
	Events   *escrow.Emitter
	Clock    clock.Clock
	Policy   Policy
}

type disputes struct {
	Deps
	log *logrus.Entry
}

func newDisputes(d Deps) disputes {
	return disputes{Deps: d, log: logger.WithComponent("dispute")}
}

// mutate перечитывает спор, применяет fn и сохраняет с проверкой версии.
func (s disputes) mutate(ctx context.Context, id uuid.UUID, fn func(d *entity.Dispute, now time.Time) error) (*entity.Dispute, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		d, err := s.Disputes.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(d, s.Clock.Now()); err != nil {
			return nil, err
		}
		err = s.Disputes.Update(ctx, d)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, apperror.StateConflict("спор одновременно изменяется другой операцией, повторите запрос")
}

// claim занимает спор под операцию op; метка уникальна для попытки.
func (s disputes) claim(ctx context.Context, id uuid.UUID, op string, guard func(d *entity.Dispute) error) (*entity.Dispute, string, error) {
	key := op + "#" + uuid.NewString()
	d, err := s.mutate(ctx, id, func(d *entity.Dispute, now time.Time) error {
		if guard != nil {
			if err := guard(d); err != nil {
				return err
			}
		}
		return d.TakeClaim(key, now, s.Policy.ClaimTimeout)
	})
	if err != nil {
		return nil, "", err
	}
	return d, key, nil
}

func (s disputes) releaseClaim(ctx context.Context, id uuid.UUID, key string) {
	_, err := s.mutate(ctx, id, func(d *entity.Dispute, _ time.Time) error {
		d.ReleaseClaim(key)
		return nil
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{"dispute_id": id, "claim": key}).WithError(err).Warn("не удалось снять метку спора")
	}
}

// load возвращает спор вместе с проектом.
func (s disputes) load(ctx context.Context, id uuid.UUID) (*entity.Dispute, *entity.Project, error) {
	d, err := s.Disputes.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.Projects.Get(ctx, d.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return d, p, nil
}

// partyRole определяет сторону спора по участию в проекте.
func partyRole(p *entity.Project, userID uuid.UUID) (valueobject.Role, error) {
	switch {
	case p.IsClient(userID):
		return valueobject.RoleClient, nil
	case p.IsFreelancer(userID):
		return valueobject.RoleFreelancer, nil
	}
	return "", apperror.Forbidden("действие доступно только сторонам спора")
}

// canView - стороны, назначенные медиатор и арбитр, администраторы.
func canView(p *entity.Project, d *entity.Dispute, actor valueobject.Actor) bool {
	if p.IsParticipant(actor.ID) || actor.IsAdmin() {
		return true
	}
	if d.MediatorID != nil && *d.MediatorID == actor.ID {
		return true
	}
	return d.ArbitratorID != nil && *d.ArbitratorID == actor.ID
}

func (s disputes) emit(ctx context.Context, p *entity.Project, d *entity.Dispute, name string, actor valueobject.Actor, old valueobject.DisputeStatus, payload map[string]any) {
	ev := escrow.Event{
		Name:      name,
		Actor:     actor,
		NewValues: map[string]any{"status": string(d.Status)},
		Payload:   payload,
	}
	if old != "" {
		ev.OldValues = map[string]any{"status": string(old)}
	}
	s.Events.Dispute(ctx, p, d, ev)
}
