package milestone

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
)

type ApproveMilestoneUseCase struct {
	releaser *escrow.Releaser
}

func NewApproveMilestoneUseCase(releaser *escrow.Releaser) *ApproveMilestoneUseCase {
	return &ApproveMilestoneUseCase{releaser: releaser}
}

func (uc *ApproveMilestoneUseCase) Execute(ctx context.Context, ref Ref, actor valueobject.Actor) (*escrow.ReleaseResult, error) {
	return uc.releaser.Release(ctx, escrow.ReleaseRequest{
		ProjectID:   ref.ProjectID,
		MilestoneID: ref.MilestoneID,
		Actor:       actor,
	})
}

const sweepBatch = 100

// AutoApproveUseCase одобряет этапы, по которым клиент молчит дольше autoApproveDays.
// Повторный вызов для уже одобренного или ещё не просроченного этапа ничего не делает.
type AutoApproveUseCase struct {
	releaser *escrow.Releaser
	projects *escrow.Projects
	repo     repository.ProjectRepository
	log      *logrus.Entry
}

func NewAutoApproveUseCase(releaser *escrow.Releaser, projects *escrow.Projects, repo repository.ProjectRepository) *AutoApproveUseCase {
	return &AutoApproveUseCase{
		releaser: releaser,
		projects: projects,
		repo:     repo,
		log:      logger.WithComponent("auto-approve"),
	}
}

// Execute возвращает nil без ошибки, если одобрять нечего.
func (uc *AutoApproveUseCase) Execute(ctx context.Context, ref Ref) (*escrow.ReleaseResult, error) {
	res, err := uc.releaser.Release(ctx, escrow.ReleaseRequest{
		ProjectID:   ref.ProjectID,
		MilestoneID: ref.MilestoneID,
		Actor:       valueobject.SystemActor(),
		Auto:        true,
	})
	if err != nil {
		if errors.Is(err, escrow.ErrNotDue) || apperror.IsStateConflict(err) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// SweepResult - итог прохода по сданным этапам.
type SweepResult struct {
	Checked  int
	Approved int
	Failed   int
}

// AutoApproveDue проходит по проектам со сданными этапами и одобряет просроченные.
func (uc *AutoApproveUseCase) AutoApproveDue(ctx context.Context) (SweepResult, error) {
	var out SweepResult
	projects, err := uc.repo.ListAwaitingReview(ctx, sweepBatch)
	if err != nil {
		return out, err
	}
	now := uc.projects.Now()
	for _, p := range projects {
		for _, m := range p.MilestonesAwaitingReview() {
			if !m.ReviewDue(p.PaymentSchedule.AutoApproveDays, now) {
				continue
			}
			out.Checked++
			res, err := uc.Execute(ctx, Ref{ProjectID: p.ID, MilestoneID: m.ID})
			if err != nil {
				out.Failed++
				uc.log.WithFields(logrus.Fields{
					"project_id":   p.ID,
					"milestone_id": m.ID,
				}).WithError(err).Warn("автоодобрение этапа не выполнено")
				continue
			}
			if res != nil {
				out.Approved++
			}
			if err := ctx.Err(); err != nil {
				return out, err
			}
		}
	}
	if out.Checked > 0 {
		uc.log.WithFields(logrus.Fields{
			"checked":  out.Checked,
			"approved": out.Approved,
			"failed":   out.Failed,
		}).Info("автоодобрение этапов завершено")
	}
	return out, nil
}
