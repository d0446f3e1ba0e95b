package milestone_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/payment"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
	"github.com/ignatzorin/escrow-backend/internal/usecase/milestone"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	now        time.Time
	store      *memory.ProjectStore
	txs        *memory.TransactionStore
	gateway    *payment.SandboxGateway
	projects   *escrow.Projects
	releaser   *escrow.Releaser
	client     valueobject.Actor
	freelancer valueobject.Actor
	project    *entity.Project
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		now:        start,
		store:      memory.NewProjectStore(),
		txs:        memory.NewTransactionStore(),
		gateway:    payment.NewSandboxGateway(),
		client:     valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleClient},
		freelancer: valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleFreelancer},
	}
	// часы двигаются вместе с e.now
	c := clock.Clock(func() time.Time { return e.now })
	e.projects = escrow.NewProjects(e.store, c, 0)
	e.releaser = escrow.NewReleaser(e.projects, ledger.NewRecorder(e.txs, c), e.gateway, escrow.NewEmitter(nil, nil))

	p, err := entity.NewProject(entity.NewProjectParams{
		ClientID:    e.client.ID,
		Title:       "Сайт",
		Description: "Корпоративный сайт",
		Budget:      100000,
		Currency:    valueobject.CurrencyUSD,
		Milestones: []entity.MilestoneDraft{
			{Title: "Дизайн", Amount: 60000},
			{Title: "Вёрстка", Amount: 40000},
		},
	}, start)
	require.NoError(t, err)
	require.NoError(t, p.Invite(e.freelancer.ID, start))
	require.NoError(t, p.Accept("acct_1", start))
	require.NoError(t, p.ApplyDeposit(start))
	require.NoError(t, e.store.Create(context.Background(), p))
	e.project = p
	return e
}

func (e *env) ref(i int) milestone.Ref {
	return milestone.Ref{ProjectID: e.project.ID, MilestoneID: e.project.Milestones[i].ID}
}

func (e *env) submit(t *testing.T, i int) {
	t.Helper()
	ctx := context.Background()
	events := escrow.NewEmitter(nil, nil)
	_, err := milestone.NewStartMilestoneUseCase(e.projects, events).Execute(ctx, e.ref(i), e.freelancer)
	require.NoError(t, err)
	_, err = milestone.NewSubmitMilestoneUseCase(e.projects, events).Execute(ctx, milestone.SubmitInput{
		Ref:          e.ref(i),
		Actor:        e.freelancer,
		Deliverables: []string{"result.zip"},
		Notes:        "готово",
	})
	require.NoError(t, err)
}

func TestStart_OnlyFreelancer(t *testing.T) {
	e := newEnv(t)

	_, err := milestone.NewStartMilestoneUseCase(e.projects, nil).Execute(context.Background(), e.ref(0), e.client)
	assert.True(t, apperror.IsForbidden(err))
}

func TestSubmit_IllegalFromPending(t *testing.T) {
	e := newEnv(t)

	_, err := milestone.NewSubmitMilestoneUseCase(e.projects, nil).Execute(context.Background(), milestone.SubmitInput{
		Ref:   e.ref(0),
		Actor: e.freelancer,
	})
	assert.True(t, apperror.IsStateConflict(err))

	stored, err := e.store.FindByID(context.Background(), e.project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusPending, stored.Milestones[0].Status)
}

func TestApprove_PendingMilestoneConflicts(t *testing.T) {
	e := newEnv(t)

	_, err := milestone.NewApproveMilestoneUseCase(e.releaser).Execute(context.Background(), e.ref(0), e.client)
	assert.True(t, apperror.IsStateConflict(err))
	assert.Empty(t, e.gateway.Calls())
}

func TestRevisionCycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.submit(t, 0)

	m, err := milestone.NewRequestRevisionUseCase(e.projects, nil).Execute(ctx, e.ref(0), e.client, "поправить цвета")
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusRevisionRequested, m.Status)
	require.Len(t, m.RevisionHistory, 1)
	assert.Equal(t, "поправить цвета", m.RevisionHistory[0].Notes)

	m, err = milestone.NewResubmitMilestoneUseCase(e.projects, nil).Execute(ctx, milestone.SubmitInput{
		Ref:          e.ref(0),
		Actor:        e.freelancer,
		Deliverables: []string{"v2.zip"},
	})
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusSubmitted, m.Status)
	assert.Equal(t, []string{"v2.zip"}, m.Deliverables)
}

func TestApprove_AllMilestonesCompletesProject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	approve := milestone.NewApproveMilestoneUseCase(e.releaser)

	e.submit(t, 0)
	res, err := approve.Execute(ctx, e.ref(0), e.client)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusActive, res.Project.Status)

	e.submit(t, 1)
	res, err = approve.Execute(ctx, e.ref(1), e.client)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusCompleted, res.Project.Status)
	assert.Equal(t, int64(100000), res.Project.Escrow.TotalReleased)
	assert.Equal(t, int64(0), res.Project.Escrow.Remaining)
	assert.Equal(t, valueobject.EscrowStatusReleased, res.Project.Escrow.Status)
}

func TestAutoApproveDue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.submit(t, 0)
	auto := milestone.NewAutoApproveUseCase(e.releaser, e.projects, e.store)

	// срок ещё не наступил
	out, err := auto.AutoApproveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Approved)

	e.now = start.Add(7*24*time.Hour + time.Minute)
	out, err = auto.AutoApproveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Approved)

	stored, err := e.store.FindByID(ctx, e.project.ID)
	require.NoError(t, err)
	m := stored.Milestones[0]
	assert.Equal(t, valueobject.MilestoneStatusApproved, m.Status)
	assert.True(t, m.AutoApproved)
	assert.Equal(t, int64(60000), stored.Escrow.TotalReleased)

	txs, err := e.txs.ListByProject(ctx, e.project.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, valueobject.TransactionTypeMilestoneRelease, txs[0].Type)
	assert.Equal(t, int64(57840), txs[0].Amount)

	// повтор - пустой проход и no-op на прямом вызове
	out, err = auto.AutoApproveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Checked)

	res, err := auto.Execute(ctx, e.ref(0))
	require.NoError(t, err)
	assert.Nil(t, res)

	txs, err = e.txs.ListByProject(ctx, e.project.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

// disputeFirst сдаёт этап 0, начинает этап 1 и открывает спор по этапу 0.
func (e *env) disputeFirst(t *testing.T, startSecond bool) {
	t.Helper()
	ctx := context.Background()
	e.submit(t, 0)
	if startSecond {
		_, err := milestone.NewStartMilestoneUseCase(e.projects, nil).Execute(ctx, e.ref(1), e.freelancer)
		require.NoError(t, err)
	}
	_, err := e.projects.Mutate(ctx, e.project.ID, func(p *entity.Project, now time.Time) error {
		return p.OpenDispute(p.Milestones[0], e.client.PerformedBy(), now)
	})
	require.NoError(t, err)
}

func TestDisputedProject_OtherMilestoneKeepsWorking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.disputeFirst(t, true)

	_, err := milestone.NewSubmitMilestoneUseCase(e.projects, nil).Execute(ctx, milestone.SubmitInput{
		Ref:          e.ref(1),
		Actor:        e.freelancer,
		Deliverables: []string{"markup.zip"},
	})
	require.NoError(t, err)
	_, err = milestone.NewRequestRevisionUseCase(e.projects, nil).Execute(ctx, e.ref(1), e.client, "мобильная версия")
	require.NoError(t, err)
	m, err := milestone.NewResubmitMilestoneUseCase(e.projects, nil).Execute(ctx, milestone.SubmitInput{
		Ref:          e.ref(1),
		Actor:        e.freelancer,
		Deliverables: []string{"markup-v2.zip"},
	})
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusSubmitted, m.Status)

	// просроченный этап спорного проекта одобряется общим проходом
	e.now = start.Add(7*24*time.Hour + time.Minute)
	out, err := milestone.NewAutoApproveUseCase(e.releaser, e.projects, e.store).AutoApproveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Approved)

	stored, err := e.store.FindByID(ctx, e.project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusDisputed, stored.Status)
	assert.Equal(t, valueobject.MilestoneStatusDisputed, stored.Milestones[0].Status)
	assert.Equal(t, valueobject.MilestoneStatusApproved, stored.Milestones[1].Status)
	assert.True(t, stored.Milestones[1].AutoApproved)
	assert.Equal(t, int64(40000), stored.Escrow.TotalReleased)
	assert.Equal(t, int64(60000), stored.Escrow.Remaining)
}

func TestDisputedProject_ManualApproveOtherMilestone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.disputeFirst(t, true)
	_, err := milestone.NewSubmitMilestoneUseCase(e.projects, nil).Execute(ctx, milestone.SubmitInput{
		Ref:          e.ref(1),
		Actor:        e.freelancer,
		Deliverables: []string{"markup.zip"},
	})
	require.NoError(t, err)

	res, err := milestone.NewApproveMilestoneUseCase(e.releaser).Execute(ctx, e.ref(1), e.client)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusApproved, res.Milestone.Status)
	assert.Equal(t, valueobject.ProjectStatusDisputed, res.Project.Status)
	assert.Equal(t, int64(38560), res.Transaction.Amount)

	// оспоренный этап одобрить нельзя
	_, err = milestone.NewApproveMilestoneUseCase(e.releaser).Execute(ctx, e.ref(0), e.client)
	assert.True(t, apperror.IsStateConflict(err))
}

func TestDisputedProject_StartNeedsActiveProject(t *testing.T) {
	e := newEnv(t)
	e.disputeFirst(t, false)

	_, err := milestone.NewStartMilestoneUseCase(e.projects, nil).Execute(context.Background(), e.ref(1), e.freelancer)
	assert.True(t, apperror.IsStateConflict(err))
}
