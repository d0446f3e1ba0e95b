package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/usecase/milestone"
)

type autoApprover interface {
	AutoApproveDue(ctx context.Context) (milestone.SweepResult, error)
}

type escalator interface {
	EscalateDue(ctx context.Context) (int, error)
}

type reviewer interface {
	Execute(ctx context.Context) (int, error)
}

// Intervals задаёт периодичность фоновых проходов.
type Intervals struct {
	AutoApprove time.Duration
	Escalation  time.Duration
	Review      time.Duration
}

// RegisterSweeps регистрирует проходы автоодобрения, эскалации и отложенного анализа споров.
func RegisterSweeps(m *Manager, iv Intervals, approve autoApprover, escalate escalator, review reviewer) error {
	log := logger.WithComponent("scheduler")
	jobs := []Job{
		{
			Name:     "auto-approve-milestones",
			Interval: iv.AutoApprove,
			Run: func(ctx context.Context) error {
				_, err := approve.AutoApproveDue(ctx)
				return err
			},
		},
		{
			Name:     "escalate-disputes",
			Interval: iv.Escalation,
			Run: func(ctx context.Context) error {
				n, err := escalate.EscalateDue(ctx)
				if n > 0 {
					log.WithFields(logrus.Fields{"escalated": n}).Info("споры переданы в арбитраж")
				}
				return err
			},
		},
		{
			Name:     "review-pending-disputes",
			Interval: iv.Review,
			Run: func(ctx context.Context) error {
				_, err := review.Execute(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := m.Register(job); err != nil {
			return err
		}
	}
	return nil
}
