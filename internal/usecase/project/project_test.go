package project_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/payment"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
	"github.com/ignatzorin/escrow-backend/internal/usecase/milestone"
	"github.com/ignatzorin/escrow-backend/internal/usecase/project"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockModerator struct {
	mock.Mock
}

func (m *mockModerator) Moderate(ctx context.Context, kind gateway.ContentKind, content gateway.ModerationContent) (gateway.ModerationResult, error) {
	args := m.Called(ctx, kind, content)
	return args.Get(0).(gateway.ModerationResult), args.Error(1)
}

func approvingModerator() *mockModerator {
	m := &mockModerator{}
	m.On("Moderate", mock.Anything, mock.Anything, mock.Anything).Return(gateway.ModerationResult{IsApproved: true}, nil)
	return m
}

type env struct {
	store      *memory.ProjectStore
	txs        *memory.TransactionStore
	users      *memory.UserDirectory
	gateway    *payment.SandboxGateway
	projects   *escrow.Projects
	recorder   *ledger.Recorder
	events     *escrow.Emitter
	client     valueobject.Actor
	freelancer valueobject.Actor
}

func newEnv() *env {
	c := clock.Fixed(now)
	e := &env{
		store:      memory.NewProjectStore(),
		txs:        memory.NewTransactionStore(),
		users:      memory.NewUserDirectory(),
		gateway:    payment.NewSandboxGateway(),
		events:     escrow.NewEmitter(nil, nil),
		client:     valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleClient},
		freelancer: valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleFreelancer},
	}
	e.projects = escrow.NewProjects(e.store, c, 0)
	e.recorder = ledger.NewRecorder(e.txs, c)
	e.users.Put(e.client.ID, valueobject.RoleClient)
	e.users.Put(e.freelancer.ID, valueobject.RoleFreelancer)
	return e
}

func (e *env) create(t *testing.T, moderator gateway.ContentModerator) *entity.Project {
	t.Helper()
	uc := project.NewCreateProjectUseCase(e.store, moderator, clock.Fixed(now), e.events)
	p, err := uc.Execute(context.Background(), project.CreateProjectInput{
		Actor:       e.client,
		Title:       "Мобильное приложение",
		Description: "Приложение доставки",
		Budget:      decimal.RequireFromString("1000.00"),
		Currency:    "usd",
		Milestones: []project.MilestoneInput{
			{Title: "Прототип", Amount: decimal.RequireFromString("600")},
			{Title: "Релиз", Amount: decimal.RequireFromString("400")},
		},
	})
	require.NoError(t, err)
	return p
}

func (e *env) fund(t *testing.T) *entity.Project {
	t.Helper()
	ctx := context.Background()
	p := e.create(t, approvingModerator())

	_, err := project.NewInviteFreelancerUseCase(e.projects, e.users, e.events).Execute(ctx, p.ID, e.client, e.freelancer.ID)
	require.NoError(t, err)
	_, err = project.NewAcceptInvitationUseCase(e.projects, e.events).Execute(ctx, p.ID, e.freelancer, "acct_42")
	require.NoError(t, err)
	res, err := project.NewDepositUseCase(e.projects, e.recorder, e.gateway, e.events).Execute(ctx, project.DepositInput{
		ProjectID: p.ID,
		Actor:     e.client,
	})
	require.NoError(t, err)
	return res.Project
}

func TestCreateProject_ConvertsToMinorUnits(t *testing.T) {
	e := newEnv()
	p := e.create(t, approvingModerator())

	assert.Equal(t, int64(100000), p.Budget)
	assert.Equal(t, valueobject.CurrencyUSD, p.Currency)
	assert.Equal(t, int64(60000), p.Milestones[0].Amount)
	assert.Equal(t, valueobject.ProjectStatusDraft, p.Status)
}

func TestCreateProject_OnlyClient(t *testing.T) {
	e := newEnv()
	uc := project.NewCreateProjectUseCase(e.store, approvingModerator(), clock.Fixed(now), e.events)

	_, err := uc.Execute(context.Background(), project.CreateProjectInput{Actor: e.freelancer})
	assert.True(t, apperror.IsForbidden(err))
}

func TestCreateProject_ModerationRejected(t *testing.T) {
	e := newEnv()
	mod := &mockModerator{}
	mod.On("Moderate", mock.Anything, gateway.ContentKindProject, mock.Anything).
		Return(gateway.ModerationResult{IsApproved: false, Message: "запрещённый контент"}, nil)
	uc := project.NewCreateProjectUseCase(e.store, mod, clock.Fixed(now), e.events)

	_, err := uc.Execute(context.Background(), project.CreateProjectInput{
		Actor:       e.client,
		Title:       "Проект",
		Description: "Описание",
		Budget:      decimal.NewFromInt(10),
		Currency:    "USD",
		Milestones:  []project.MilestoneInput{{Title: "Этап", Amount: decimal.NewFromInt(10)}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Contains(t, err.Error(), "запрещённый контент")
}

func TestCreateProject_ModeratorUnavailableDenies(t *testing.T) {
	e := newEnv()
	mod := &mockModerator{}
	mod.On("Moderate", mock.Anything, mock.Anything, mock.Anything).
		Return(gateway.ModerationResult{}, errors.New("timeout"))
	uc := project.NewCreateProjectUseCase(e.store, mod, clock.Fixed(now), e.events)

	_, err := uc.Execute(context.Background(), project.CreateProjectInput{
		Actor:       e.client,
		Title:       "Проект",
		Description: "Описание",
		Budget:      decimal.NewFromInt(10),
		Currency:    "USD",
		Milestones:  []project.MilestoneInput{{Title: "Этап", Amount: decimal.NewFromInt(10)}},
	})
	assert.True(t, apperror.IsExternal(err))
}

func TestCreateProject_BudgetMismatchSkipsModeration(t *testing.T) {
	e := newEnv()
	mod := &mockModerator{}
	uc := project.NewCreateProjectUseCase(e.store, mod, clock.Fixed(now), e.events)

	_, err := uc.Execute(context.Background(), project.CreateProjectInput{
		Actor:       e.client,
		Title:       "Проект",
		Description: "Описание",
		Budget:      decimal.NewFromInt(100),
		Currency:    "USD",
		Milestones:  []project.MilestoneInput{{Title: "Этап", Amount: decimal.NewFromInt(99)}},
	})
	assert.True(t, apperror.IsValidation(err))
	mod.AssertNotCalled(t, "Moderate", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeposit_HoldsBudgetAndRecordsClientFee(t *testing.T) {
	e := newEnv()
	p := e.fund(t)

	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)
	assert.Equal(t, entity.Escrow{
		Status:    valueobject.EscrowStatusHeld,
		TotalHeld: 100000,
		Remaining: 100000,
	}, p.Escrow)

	txs, err := e.txs.ListByProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, valueobject.TransactionTypeDeposit, txs[0].Type)
	assert.Equal(t, int64(100000), txs[0].Amount)
	assert.Equal(t, int64(1900), txs[0].Fees.Client)
	assert.Equal(t, int64(1900), txs[0].Fees.Total)

	calls := e.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "1019", calls[0].Deposit.Amount.String())
}

func TestDeposit_GatewayFailure(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	p := e.create(t, approvingModerator())
	_, err := project.NewInviteFreelancerUseCase(e.projects, e.users, e.events).Execute(ctx, p.ID, e.client, e.freelancer.ID)
	require.NoError(t, err)
	_, err = project.NewAcceptInvitationUseCase(e.projects, e.events).Execute(ctx, p.ID, e.freelancer, "acct_42")
	require.NoError(t, err)

	e.gateway.FailNext(1)
	_, err = project.NewDepositUseCase(e.projects, e.recorder, e.gateway, e.events).Execute(ctx, project.DepositInput{ProjectID: p.ID, Actor: e.client})
	assert.True(t, apperror.IsExternal(err))

	stored, err := e.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusAwaitingDeposit, stored.Status)
	assert.Equal(t, int64(0), stored.Escrow.TotalHeld)
	assert.Nil(t, stored.Claim)
}

func TestInvite_RequiresFreelancerRole(t *testing.T) {
	e := newEnv()
	p := e.create(t, approvingModerator())
	other := uuid.New()
	e.users.Put(other, valueobject.RoleClient)

	_, err := project.NewInviteFreelancerUseCase(e.projects, e.users, e.events).Execute(context.Background(), p.ID, e.client, other)
	assert.True(t, apperror.IsValidation(err))
}

func TestAccept_OnlyInvitedFreelancer(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	p := e.create(t, approvingModerator())
	_, err := project.NewInviteFreelancerUseCase(e.projects, e.users, e.events).Execute(ctx, p.ID, e.client, e.freelancer.ID)
	require.NoError(t, err)

	stranger := valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleFreelancer}
	_, err = project.NewAcceptInvitationUseCase(e.projects, e.events).Execute(ctx, p.ID, stranger, "acct")
	assert.True(t, apperror.IsForbidden(err))
}

func TestDecline_ReturnsToDraft(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	p := e.create(t, approvingModerator())
	_, err := project.NewInviteFreelancerUseCase(e.projects, e.users, e.events).Execute(ctx, p.ID, e.client, e.freelancer.ID)
	require.NoError(t, err)

	p, err = project.NewDeclineInvitationUseCase(e.projects, e.events).Execute(ctx, p.ID, e.freelancer)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusDraft, p.Status)
	assert.Nil(t, p.FreelancerID)
}

func TestCancel_RefundsRemaining(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	p := e.fund(t)

	res, err := project.NewCancelProjectUseCase(e.projects, e.recorder, e.gateway, e.events).Execute(ctx, project.CancelInput{
		ProjectID: p.ID,
		Actor:     e.freelancer,
		Reason:    "клиент передумал",
	})
	require.NoError(t, err)

	assert.Equal(t, valueobject.ProjectStatusCancelled, res.Project.Status)
	require.NotNil(t, res.Refund)
	assert.Equal(t, int64(100000), res.Refund.Amount)
	assert.Equal(t, valueobject.TransactionTypeRefund, res.Refund.Type)
	assert.Equal(t, int64(0), res.Project.Escrow.Remaining)
	assert.Equal(t, int64(0), res.Project.Escrow.TotalHeld)
	assert.Equal(t, int64(100000), res.Project.Escrow.TotalRefunded)
	assert.Nil(t, res.Project.Claim)
}

// refundHook выполняет during, пока возврат клиенту ещё не завершён.
type refundHook struct {
	*payment.SandboxGateway
	during func(ctx context.Context)
}

func (g refundHook) RefundToClient(ctx context.Context, req gateway.RefundRequest) (gateway.PaymentResult, error) {
	g.during(ctx)
	return g.SandboxGateway.RefundToClient(ctx, req)
}

func TestCancel_ProjectLockedWhileRefundInFlight(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	p := e.fund(t)

	var startErr, holdErr error
	payments := refundHook{SandboxGateway: e.gateway, during: func(ctx context.Context) {
		_, startErr = milestone.NewStartMilestoneUseCase(e.projects, e.events).Execute(ctx, milestone.Ref{
			ProjectID:   p.ID,
			MilestoneID: p.Milestones[0].ID,
		}, e.freelancer)
		_, holdErr = project.NewHoldProjectUseCase(e.projects, e.events).Execute(ctx, p.ID, e.client, "отпуск")
	}}

	res, err := project.NewCancelProjectUseCase(e.projects, e.recorder, payments, e.events).Execute(ctx, project.CancelInput{
		ProjectID: p.ID,
		Actor:     e.client,
	})
	require.NoError(t, err)
	assert.True(t, apperror.IsStateConflict(startErr), "start: %v", startErr)
	assert.True(t, apperror.IsStateConflict(holdErr), "hold: %v", holdErr)

	assert.Equal(t, valueobject.ProjectStatusCancelled, res.Project.Status)
	assert.Equal(t, valueobject.MilestoneStatusPending, res.Project.Milestones[0].Status)
	assert.Equal(t, int64(100000), res.Refund.Amount)
	assert.Equal(t, int64(0), res.Project.Escrow.Remaining)
	assert.Equal(t, int64(0), res.Project.Escrow.TotalReleased)
}

func TestCancel_BlockedByActiveMilestone(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	p := e.fund(t)
	_, err := e.projects.Mutate(ctx, p.ID, func(p *entity.Project, now time.Time) error {
		return p.Milestones[0].Start(now)
	})
	require.NoError(t, err)

	_, err = project.NewCancelProjectUseCase(e.projects, e.recorder, e.gateway, e.events).Execute(ctx, project.CancelInput{ProjectID: p.ID, Actor: e.client})
	assert.True(t, apperror.IsStateConflict(err))
	assert.Empty(t, e.gateway.Calls()[1:])
}

func TestCancel_DraftWithoutRefund(t *testing.T) {
	e := newEnv()
	p := e.create(t, approvingModerator())

	res, err := project.NewCancelProjectUseCase(e.projects, e.recorder, e.gateway, e.events).Execute(context.Background(), project.CancelInput{ProjectID: p.ID, Actor: e.client})
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusCancelled, res.Project.Status)
	assert.Nil(t, res.Refund)
	assert.Nil(t, res.Project.Claim)
	assert.Empty(t, e.gateway.Calls())
}

func TestHoldAndResume(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	p := e.fund(t)

	p, err := project.NewHoldProjectUseCase(e.projects, e.events).Execute(ctx, p.ID, e.client, "отпуск")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusOnHold, p.Status)

	_, err = project.NewResumeProjectUseCase(e.projects, e.events).Execute(ctx, p.ID, e.freelancer, "")
	assert.True(t, apperror.IsForbidden(err))

	p, err = project.NewResumeProjectUseCase(e.projects, e.events).Execute(ctx, p.ID, e.client, "")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)
}

func TestDuplicate_DoesNotTouchSource(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	p := e.fund(t)

	cp, err := project.NewDuplicateProjectUseCase(e.store, clock.Fixed(now), e.events).Execute(ctx, p.ID, e.client)
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, cp.ID)
	assert.Equal(t, valueobject.ProjectStatusDraft, cp.Status)
	assert.Len(t, cp.Milestones, 2)

	src, err := e.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Version, src.Version)
}

func TestAddMilestone_GrowsBudget(t *testing.T) {
	e := newEnv()
	p := e.create(t, approvingModerator())

	p, m, err := project.NewAddMilestoneUseCase(e.projects, approvingModerator(), e.events).Execute(context.Background(), project.AddMilestoneInput{
		ProjectID: p.ID,
		Actor:     e.client,
		Milestone: project.MilestoneInput{Title: "Поддержка", Amount: decimal.RequireFromString("150.50")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15050), m.Amount)
	assert.Equal(t, int64(115050), p.Budget)
}

func TestListTransactions_ForbiddenForStranger(t *testing.T) {
	e := newEnv()
	p := e.fund(t)

	uc := project.NewListTransactionsUseCase(e.store, e.recorder)
	_, err := uc.Execute(context.Background(), p.ID, valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleClient})
	assert.True(t, apperror.IsForbidden(err))

	txs, err := uc.Execute(context.Background(), p.ID, valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
