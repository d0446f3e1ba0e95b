package entity_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestProject(t *testing.T) *entity.Project {
	t.Helper()
	p, err := entity.NewProject(entity.NewProjectParams{
		ClientID:    uuid.New(),
		Title:       "Лендинг",
		Description: "Вёрстка и интеграция",
		Budget:      100000,
		Currency:    valueobject.CurrencyUSD,
		Milestones: []entity.MilestoneDraft{
			{Title: "Дизайн", Amount: 60000},
			{Title: "Вёрстка", Amount: 40000},
		},
	}, now)
	require.NoError(t, err)
	return p
}

func activate(t *testing.T, p *entity.Project) uuid.UUID {
	t.Helper()
	freelancer := uuid.New()
	require.NoError(t, p.Invite(freelancer, now))
	require.NoError(t, p.Accept("acct_1", now))
	require.NoError(t, p.ApplyDeposit(now))
	return freelancer
}

func TestNewProject_BudgetMismatch(t *testing.T) {
	_, err := entity.NewProject(entity.NewProjectParams{
		ClientID:    uuid.New(),
		Title:       "Проект",
		Description: "Описание",
		Budget:      100000,
		Currency:    valueobject.CurrencyUSD,
		Milestones:  []entity.MilestoneDraft{{Title: "Этап", Amount: 99999}},
	}, now)
	assert.True(t, apperror.IsValidation(err))
}

func TestNewProject_MilestoneCurrencyMismatch(t *testing.T) {
	_, err := entity.NewProject(entity.NewProjectParams{
		ClientID:    uuid.New(),
		Title:       "Проект",
		Description: "Описание",
		Budget:      100,
		Currency:    valueobject.CurrencyUSD,
		Milestones:  []entity.MilestoneDraft{{Title: "Этап", Amount: 100, Currency: valueobject.CurrencyEUR}},
	}, now)
	assert.True(t, apperror.IsValidation(err))
}

func TestProject_Lifecycle(t *testing.T) {
	p := newTestProject(t)
	assert.Equal(t, valueobject.ProjectStatusDraft, p.Status)

	activate(t, p)
	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)
	assert.Equal(t, entity.Escrow{
		Status:    valueobject.EscrowStatusHeld,
		TotalHeld: 100000,
		Remaining: 100000,
	}, p.Escrow)
	require.NoError(t, p.CheckEscrowInvariant())

	m := p.Milestones[0]
	require.NoError(t, m.Start(now))
	require.NoError(t, m.Submit([]string{"design.fig"}, "готово", now))
	require.NoError(t, p.CompleteMilestoneRelease(m, false, p.ClientID.String(), m.Unsettled(), now))

	assert.Equal(t, valueobject.MilestoneStatusApproved, m.Status)
	assert.Equal(t, int64(60000), p.Escrow.TotalReleased)
	assert.Equal(t, int64(40000), p.Escrow.Remaining)
	assert.Equal(t, valueobject.EscrowStatusPartiallyReleased, p.Escrow.Status)
	require.NoError(t, p.CheckEscrowInvariant())
	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)

	last := p.Milestones[1]
	require.NoError(t, last.Start(now))
	require.NoError(t, last.Submit(nil, "", now))
	require.NoError(t, p.CompleteMilestoneRelease(last, true, valueobject.SystemPerformer, last.Unsettled(), now))

	assert.Equal(t, valueobject.ProjectStatusCompleted, p.Status)
	assert.Equal(t, valueobject.EscrowStatusReleased, p.Escrow.Status)
	assert.True(t, last.AutoApproved)
	assert.Equal(t, valueobject.SystemPerformer, p.ActivityLog[len(p.ActivityLog)-2].PerformedBy)
}

func TestProject_IllegalTransitionLeavesStateUnchanged(t *testing.T) {
	p := newTestProject(t)
	before := p.Clone()

	err := p.ApplyDeposit(now)
	assert.True(t, apperror.IsStateConflict(err))
	assert.Equal(t, before.Status, p.Status)
	assert.Equal(t, before.Escrow, p.Escrow)

	m := p.Milestones[0]
	err = m.Submit(nil, "", now)
	assert.True(t, apperror.IsStateConflict(err))
	assert.Equal(t, valueobject.MilestoneStatusPending, m.Status)
}

func TestProject_CancelRefundsRemaining(t *testing.T) {
	p := newTestProject(t)
	activate(t, p)

	require.NoError(t, p.Cancel(valueobject.Actor{ID: p.ClientID, Role: valueobject.RoleClient}, 100000, now))
	assert.Equal(t, valueobject.ProjectStatusCancelled, p.Status)
	assert.Equal(t, int64(0), p.Escrow.TotalHeld)
	assert.Equal(t, int64(100000), p.Escrow.TotalRefunded)
	require.NoError(t, p.CheckEscrowInvariant())
}

func TestProject_CancelBlockedByActiveMilestone(t *testing.T) {
	p := newTestProject(t)
	activate(t, p)
	require.NoError(t, p.Milestones[0].Start(now))

	err := p.CheckCancellable()
	assert.True(t, apperror.IsStateConflict(err))
}

func TestProject_AddMilestoneGrowsBudget(t *testing.T) {
	p := newTestProject(t)
	_, err := p.AddMilestone(entity.MilestoneDraft{Title: "Поддержка", Amount: 5000}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(105000), p.Budget)

	activate(t, p)
	_, err = p.AddMilestone(entity.MilestoneDraft{Title: "Ещё", Amount: 100}, now)
	assert.True(t, apperror.IsStateConflict(err))
}

func TestProject_Duplicate(t *testing.T) {
	p := newTestProject(t)
	activate(t, p)

	cp := p.Duplicate(now)
	assert.NotEqual(t, p.ID, cp.ID)
	assert.Equal(t, valueobject.ProjectStatusDraft, cp.Status)
	assert.Nil(t, cp.FreelancerID)
	require.Len(t, cp.Milestones, 2)
	assert.Equal(t, valueobject.MilestoneStatusPending, cp.Milestones[0].Status)
	assert.Equal(t, p.ID, *cp.DuplicatedFrom)
	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)
}

func TestProject_Claim(t *testing.T) {
	p := newTestProject(t)
	require.NoError(t, p.TakeClaim("release:a", now, 15*time.Minute))

	err := p.TakeClaim("release:b", now.Add(time.Minute), 15*time.Minute)
	assert.True(t, apperror.IsStateConflict(err))

	require.NoError(t, p.TakeClaim("release:b", now.Add(16*time.Minute), 15*time.Minute))
	assert.True(t, p.HoldsClaim("release:b"))

	p.ReleaseClaim("release:a")
	assert.True(t, p.HoldsClaim("release:b"))
	p.ReleaseClaim("release:b")
	assert.Nil(t, p.Claim)
}

func TestProject_BusyWith(t *testing.T) {
	p := newTestProject(t)
	_, busy := p.BusyWith("", now, 15*time.Minute)
	assert.False(t, busy)

	require.NoError(t, p.TakeClaim("release:a", now, 15*time.Minute))
	op, busy := p.BusyWith("", now.Add(time.Minute), 15*time.Minute)
	assert.True(t, busy)
	assert.Equal(t, "release:a", op)

	_, busy = p.BusyWith("release:a", now.Add(time.Minute), 15*time.Minute)
	assert.False(t, busy, "владелец метки не блокирует сам себя")

	_, busy = p.BusyWith("", now.Add(16*time.Minute), 15*time.Minute)
	assert.False(t, busy, "брошенная метка не блокирует")
}

func TestProject_ReleaseWhileAnotherMilestoneDisputed(t *testing.T) {
	p := newTestProject(t)
	activate(t, p)
	disputed, other := p.Milestones[0], p.Milestones[1]
	require.NoError(t, disputed.Start(now))
	require.NoError(t, p.OpenDispute(disputed, "client", now))
	require.Equal(t, valueobject.ProjectStatusDisputed, p.Status)

	require.NoError(t, other.Start(now))
	require.NoError(t, other.Submit([]string{"layout.zip"}, "", now))
	require.NoError(t, p.CompleteMilestoneRelease(other, false, "client", 40000, now))

	assert.Equal(t, valueobject.MilestoneStatusApproved, other.Status)
	assert.Equal(t, valueobject.ProjectStatusDisputed, p.Status)
	assert.Equal(t, int64(40000), p.Escrow.TotalReleased)
	assert.Equal(t, int64(60000), p.Escrow.Remaining)
	require.NoError(t, p.CheckEscrowInvariant())
}

func TestProject_DisputeRefundKeepsInvariant(t *testing.T) {
	p := newTestProject(t)
	activate(t, p)
	m := p.Milestones[1]
	require.NoError(t, m.Start(now))
	require.NoError(t, p.OpenDispute(m, "client", now))
	assert.Equal(t, valueobject.ProjectStatusDisputed, p.Status)

	require.NoError(t, p.ApplyRefund(m, 10000, now))
	require.NoError(t, p.ApplyRelease(m, 30000, now))
	require.NoError(t, p.CheckEscrowInvariant())
	assert.True(t, m.IsSettled())

	require.NoError(t, p.FinishDispute(m, valueobject.DecisionPartialPayment, "arbitrator", false, now))
	assert.Equal(t, valueobject.MilestoneStatusApproved, m.Status)
	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)
	assert.Equal(t, int64(90000), p.Escrow.TotalHeld)
	assert.Equal(t, int64(30000), p.Escrow.TotalReleased)
	assert.Equal(t, int64(60000), p.Escrow.Remaining)
}
