package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
)

const (
	DefaultClaimTimeout = 15 * time.Minute
	maxMutateAttempts   = 5
)

// Projects сериализует изменения агрегата проекта через оптимистичные версии.
type Projects struct {
	repo         repository.ProjectRepository
	clock        clock.Clock
	claimTimeout time.Duration
	log          *logrus.Entry
}

func NewProjects(repo repository.ProjectRepository, c clock.Clock, claimTimeout time.Duration) *Projects {
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	return &Projects{
		repo:         repo,
		clock:        c,
		claimTimeout: claimTimeout,
		log:          logger.WithComponent("escrow"),
	}
}

func (s *Projects) Now() time.Time {
	return s.clock.Now()
}

func (s *Projects) Get(ctx context.Context, id uuid.UUID) (*entity.Project, error) {
	return s.repo.FindByID(ctx, id)
}

// Mutate перечитывает проект, применяет fn и сохраняет с проверкой версии.
// При конфликте версий всё повторяется; ошибка fn возвращается как есть, проект не сохраняется.
// Пока над проектом идёт денежная операция, Mutate отвечает StateConflict.
func (s *Projects) Mutate(ctx context.Context, id uuid.UUID, fn func(p *entity.Project, now time.Time) error) (*entity.Project, error) {
	return s.mutate(ctx, id, "", fn)
}

// mutate пропускает изменение, только если действующая метка отсутствует или принадлежит owner.
func (s *Projects) mutate(ctx context.Context, id uuid.UUID, owner string, fn func(p *entity.Project, now time.Time) error) (*entity.Project, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		p, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		now := s.clock.Now()
		if op, busy := p.BusyWith(owner, now, s.claimTimeout); busy {
			return nil, apperror.Newf(apperror.ErrCodeStateConflict, "над проектом выполняется операция %s, повторите позже", op)
		}
		if err := fn(p, now); err != nil {
			return nil, err
		}
		if err := p.CheckEscrowInvariant(); err != nil {
			return nil, err
		}
		err = s.repo.Update(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, apperror.StateConflict("проект одновременно изменяется другой операцией, повторите запрос")
}

// Claim занимает проект под денежную операцию op, если guard допускает её.
// Возвращает уникальную для попытки метку, которую нужно передать в Commit или ReleaseClaim.
func (s *Projects) Claim(ctx context.Context, id uuid.UUID, op string, guard func(p *entity.Project, now time.Time) error) (*entity.Project, string, error) {
	key := op + "#" + uuid.NewString()
	p, err := s.Mutate(ctx, id, func(p *entity.Project, now time.Time) error {
		if guard != nil {
			if err := guard(p, now); err != nil {
				return err
			}
		}
		return p.TakeClaim(key, now, s.claimTimeout)
	})
	if err != nil {
		return nil, "", err
	}
	return p, key, nil
}

// ReleaseClaim снимает метку после неуспешной операции. Ошибка только логируется:
// брошенная метка истечёт сама через claimTimeout.
func (s *Projects) ReleaseClaim(ctx context.Context, id uuid.UUID, key string) {
	_, err := s.mutate(ctx, id, key, func(p *entity.Project, _ time.Time) error {
		p.ReleaseClaim(key)
		return nil
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{"project_id": id, "claim": key}).WithError(err).Warn("не удалось снять метку операции")
	}
}

// Finish применяет fn под меткой key и снимает её. Для операций, которые так и не дошли до платежа.
func (s *Projects) Finish(ctx context.Context, id uuid.UUID, key string, fn func(p *entity.Project, now time.Time) error) (*entity.Project, error) {
	return s.mutate(ctx, id, key, func(p *entity.Project, now time.Time) error {
		if !p.HoldsClaim(key) {
			return apperror.StateConflict("метка операции утеряна, повторите запрос")
		}
		if err := fn(p, now); err != nil {
			return err
		}
		p.ReleaseClaim(key)
		return nil
	})
}

// Commit применяет результат денежной операции, выполненной под меткой key, и снимает метку.
// Если метка потеряна, деньги уже ушли: ошибка логируется для ручной сверки.
func (s *Projects) Commit(ctx context.Context, id uuid.UUID, key string, txID uuid.UUID, fn func(p *entity.Project, now time.Time) error) (*entity.Project, error) {
	return s.commit(ctx, id, key, txID, true, fn)
}

// CommitStep - то же, что Commit, но метка остаётся за операцией из нескольких платежей.
func (s *Projects) CommitStep(ctx context.Context, id uuid.UUID, key string, txID uuid.UUID, fn func(p *entity.Project, now time.Time) error) (*entity.Project, error) {
	return s.commit(ctx, id, key, txID, false, fn)
}

func (s *Projects) commit(ctx context.Context, id uuid.UUID, key string, txID uuid.UUID, release bool, fn func(p *entity.Project, now time.Time) error) (*entity.Project, error) {
	p, err := s.mutate(ctx, id, key, func(p *entity.Project, now time.Time) error {
		if !p.HoldsClaim(key) {
			return apperror.Newf(apperror.ErrCodeStateConflict, "метка операции %s утеряна", key)
		}
		if err := fn(p, now); err != nil {
			return err
		}
		if release {
			p.ReleaseClaim(key)
		}
		return nil
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"project_id":     id,
			"claim":          key,
			"transaction_id": txID,
			"reconciliation": "required",
		}).WithError(err).Error("платёж проведён, но состояние проекта не сохранено")
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "платёж проведён, состояние будет сверено вручную")
	}
	return p, nil
}
