package dispute_test

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
	"github.com/ignatzorin/escrow-backend/internal/usecase/dispute"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
)

var start = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

const reason = "Результат не соответствует критериям приёмки"

type mockModerator struct {
	mock.Mock
}

func (m *mockModerator) Moderate(ctx context.Context, kind gateway.ContentKind, content gateway.ModerationContent) (gateway.ModerationResult, error) {
	args := m.Called(ctx, kind, content)
	return args.Get(0).(gateway.ModerationResult), args.Error(1)
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) AnalyzeDispute(ctx context.Context, dc gateway.DisputeContext) (gateway.DisputeAnalysis, error) {
	args := m.Called(ctx, dc)
	return args.Get(0).(gateway.DisputeAnalysis), args.Error(1)
}

type mockInspector struct {
	mock.Mock
}

func (m *mockInspector) Inspect(ctx context.Context, up gateway.EvidenceUpload) (gateway.InspectedEvidence, error) {
	args := m.Called(ctx, up)
	return args.Get(0).(gateway.InspectedEvidence), args.Error(1)
}

type env struct {
	now        time.Time
	store      *memory.ProjectStore
	disputes   *memory.DisputeStore
	txs        *memory.TransactionStore
	users      *memory.UserDirectory
	gateway    *payment.SandboxGateway
	recorder   *ledger.Recorder
	deps       dispute.Deps
	moderator  *mockModerator
	oracle     *mockOracle
	inspector  *mockInspector
	client     valueobject.Actor
	freelancer valueobject.Actor
	admin      valueobject.Actor
	arbitrator valueobject.Actor
	project    *entity.Project
}

// newEnv создаёт активный проект на 1000 USD: этап 400 сдан, этап 600 ещё не начат.
func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		now:        start,
		store:      memory.NewProjectStore(),
		disputes:   memory.NewDisputeStore(),
		txs:        memory.NewTransactionStore(),
		users:      memory.NewUserDirectory(),
		gateway:    payment.NewSandboxGateway(),
		moderator:  &mockModerator{},
		oracle:     &mockOracle{},
		inspector:  &mockInspector{},
		client:     valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleClient},
		freelancer: valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleFreelancer},
		admin:      valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleAdmin},
		arbitrator: valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleArbitrator},
	}
	c := clock.Clock(func() time.Time { return e.now })
	e.recorder = ledger.NewRecorder(e.txs, c)
	e.deps = dispute.Deps{
		Disputes: e.disputes,
		Projects: escrow.NewProjects(e.store, c, 0),
		Events:   escrow.NewEmitter(nil, nil),
		Clock:    c,
		Policy:   dispute.DefaultPolicy(),
	}
	e.users.Put(e.arbitrator.ID, valueobject.RoleArbitrator)
	e.users.Put(e.admin.ID, valueobject.RoleAdmin)
	e.users.Put(e.client.ID, valueobject.RoleClient)
	e.moderator.On("Moderate", mock.Anything, mock.Anything, mock.Anything).
		Return(gateway.ModerationResult{IsApproved: true}, nil).Maybe()

	p, err := entity.NewProject(entity.NewProjectParams{
		ClientID:    e.client.ID,
		Title:       "Лендинг",
		Description: "Одностраничный сайт",
		Budget:      100000,
		Currency:    valueobject.CurrencyUSD,
		Milestones: []entity.MilestoneDraft{
			{Title: "Макет", Amount: 40000},
			{Title: "Вёрстка", Amount: 60000},
		},
	}, start)
	require.NoError(t, err)
	require.NoError(t, p.Invite(e.freelancer.ID, start))
	require.NoError(t, p.Accept("acct_7", start))
	require.NoError(t, p.ApplyDeposit(start))
	require.NoError(t, p.Milestones[0].Start(start))
	require.NoError(t, p.Milestones[0].Submit([]string{"layout.fig"}, "готово", start))
	require.NoError(t, e.store.Create(context.Background(), p))
	e.project = p
	return e
}

func (e *env) oracleFails() {
	e.oracle.On("AnalyzeDispute", mock.Anything, mock.Anything).
		Return(gateway.DisputeAnalysis{}, errors.New("oracle timeout"))
}

func (e *env) reviewer() *dispute.Reviewer {
	return dispute.NewReviewer(e.deps, e.oracle)
}

func (e *env) open(t *testing.T, by valueobject.Actor) *entity.Dispute {
	t.Helper()
	d, err := dispute.NewCreateDisputeUseCase(e.deps, e.moderator, e.inspector).Execute(context.Background(), dispute.CreateDisputeInput{
		ProjectID:   e.project.ID,
		MilestoneID: e.project.Milestones[0].ID,
		Actor:       by,
		Reason:      reason,
	})
	require.NoError(t, err)
	return d
}

func (e *env) payFee(t *testing.T, d *entity.Dispute, by valueobject.Actor) *entity.Dispute {
	t.Helper()
	res, err := dispute.NewPayFeeUseCase(e.deps, e.recorder, e.gateway, e.reviewer()).Execute(context.Background(), dispute.PayFeeInput{
		DisputeID: d.ID,
		Actor:     by,
	})
	require.NoError(t, err)
	return res.Dispute
}

// toMediation открывает спор, оплачивает сборы обеих сторон; оракул недоступен.
func (e *env) toMediation(t *testing.T) *entity.Dispute {
	t.Helper()
	e.oracleFails()
	d := e.open(t, e.client)
	e.payFee(t, d, e.client)
	d = e.payFee(t, d, e.freelancer)
	require.Equal(t, valueobject.DisputeStatusInMediation, d.Status)
	return d
}

func (e *env) toArbitration(t *testing.T) *entity.Dispute {
	t.Helper()
	d := e.toMediation(t)
	d, err := dispute.NewEscalateUseCase(e.deps).Execute(context.Background(), d.ID, e.admin, "передано администратором")
	require.NoError(t, err)
	require.Equal(t, valueobject.DisputeStatusInArbitration, d.Status)
	return d
}

func (e *env) resolve(d *entity.Dispute, by valueobject.Actor, decision, toFreelancer, toClient string) (*dispute.ResolveResult, error) {
	return dispute.NewResolveDisputeUseCase(e.deps, e.recorder, e.gateway).Execute(context.Background(), dispute.ResolveInput{
		DisputeID:          d.ID,
		Actor:              by,
		Decision:           decision,
		AmountToFreelancer: decimal.RequireFromString(toFreelancer),
		AmountToClient:     decimal.RequireFromString(toClient),
		Reason:             "Работа выполнена частично",
	})
}

func (e *env) storedProject(t *testing.T) *entity.Project {
	t.Helper()
	p, err := e.store.FindByID(context.Background(), e.project.ID)
	require.NoError(t, err)
	return p
}

func TestCreateDispute_FeeTierAndReviewAfterBothPay(t *testing.T) {
	e := newEnv(t)
	e.oracle.On("AnalyzeDispute", mock.Anything, mock.MatchedBy(func(dc gateway.DisputeContext) bool {
		return dc.RaisedByClient && dc.Amount.Equal(decimal.NewFromInt(400)) && dc.Currency == "USD"
	})).Return(gateway.DisputeAnalysis{
		ConfidenceScore: gateway.ConfidenceScore{Freelancer: 40, Client: 55},
	}, nil)

	d := e.open(t, e.client)
	assert.Equal(t, valueobject.DisputeStatusPendingFee, d.Status)
	assert.Equal(t, int64(2500), d.Fee.ClientFee)
	assert.Equal(t, int64(2500), d.Fee.FreelancerFee)
	assert.Equal(t, int64(5000), d.Fee.TotalAmount)

	p := e.storedProject(t)
	assert.Equal(t, valueobject.ProjectStatusDisputed, p.Status)
	assert.Equal(t, valueobject.MilestoneStatusDisputed, p.Milestones[0].Status)

	d = e.payFee(t, d, e.client)
	assert.Equal(t, valueobject.DisputeStatusPendingFee, d.Status)
	assert.Equal(t, valueobject.DisputeFeeStatusPartialPaid, d.Fee.Status)
	e.oracle.AssertNotCalled(t, "AnalyzeDispute", mock.Anything, mock.Anything)

	d = e.payFee(t, d, e.freelancer)
	assert.Equal(t, valueobject.DisputeFeeStatusPaid, d.Fee.Status)
	assert.Equal(t, valueobject.DisputeStatusInMediation, d.Status)
	require.NotNil(t, d.AIAnalysis)
	assert.Equal(t, float64(55), d.AIAnalysis.ClientConfidence)
	e.oracle.AssertExpectations(t)

	txs, err := e.txs.ListByProject(context.Background(), e.project.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.Equal(t, valueobject.TransactionTypeDisputeFee, tx.Type)
		assert.Equal(t, int64(2500), tx.Amount)
		assert.Equal(t, valueobject.TransactionStatusCompleted, tx.Status)
	}
}

func TestPayFee_RepeatIsNoop(t *testing.T) {
	e := newEnv(t)
	d := e.open(t, e.freelancer)
	e.payFee(t, d, e.client)

	res, err := dispute.NewPayFeeUseCase(e.deps, e.recorder, e.gateway, e.reviewer()).Execute(context.Background(), dispute.PayFeeInput{
		DisputeID: d.ID,
		Actor:     e.client,
	})
	require.NoError(t, err)
	assert.True(t, res.AlreadyPaid)
	assert.Nil(t, res.Transaction)
	assert.Len(t, e.gateway.Calls(), 1)
}

func TestPayFee_GatewayFailureKeepsFeeUnpaid(t *testing.T) {
	e := newEnv(t)
	d := e.open(t, e.client)
	e.gateway.FailNext(1)

	_, err := dispute.NewPayFeeUseCase(e.deps, e.recorder, e.gateway, e.reviewer()).Execute(context.Background(), dispute.PayFeeInput{
		DisputeID: d.ID,
		Actor:     e.client,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsExternal(err))

	stored, err := e.disputes.FindByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.False(t, stored.Fee.ClientPaid)
	assert.Nil(t, stored.Claim)

	// повтор проходит
	d = e.payFee(t, d, e.client)
	assert.True(t, d.Fee.ClientPaid)
}

func TestCreateDispute_Rules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	uc := dispute.NewCreateDisputeUseCase(e.deps, e.moderator, e.inspector)
	input := dispute.CreateDisputeInput{
		ProjectID:   e.project.ID,
		MilestoneID: e.project.Milestones[0].ID,
		Actor:       e.client,
		Reason:      reason,
	}

	stranger := input
	stranger.Actor = valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	_, err := uc.Execute(ctx, stranger)
	assert.True(t, apperror.IsForbidden(err))

	short := input
	short.Reason = "плохо"
	_, err = uc.Execute(ctx, short)
	assert.True(t, apperror.IsValidation(err))

	pending := input
	pending.MilestoneID = e.project.Milestones[1].ID
	_, err = uc.Execute(ctx, pending)
	assert.True(t, apperror.IsStateConflict(err))

	_, err = uc.Execute(ctx, input)
	require.NoError(t, err)

	again := input
	again.Actor = e.freelancer
	_, err = uc.Execute(ctx, again)
	assert.True(t, apperror.IsStateConflict(err))
}

func TestCreateDispute_ModerationRejected(t *testing.T) {
	e := newEnv(t)
	moderator := &mockModerator{}
	moderator.On("Moderate", mock.Anything, gateway.ContentKindDispute, mock.Anything).
		Return(gateway.ModerationResult{IsApproved: false, Message: "недопустимый текст"}, nil)

	_, err := dispute.NewCreateDisputeUseCase(e.deps, moderator, e.inspector).Execute(context.Background(), dispute.CreateDisputeInput{
		ProjectID:   e.project.ID,
		MilestoneID: e.project.Milestones[0].ID,
		Actor:       e.client,
		Reason:      reason,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Contains(t, err.Error(), "недопустимый текст")

	p := e.storedProject(t)
	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)
	assert.Equal(t, valueobject.MilestoneStatusSubmitted, p.Milestones[0].Status)
}

func TestCreateDispute_InspectsEvidence(t *testing.T) {
	e := newEnv(t)
	e.inspector.On("Inspect", mock.Anything, mock.MatchedBy(func(up gateway.EvidenceUpload) bool {
		return up.Filename == "screen.png" && up.UploadedBy == e.client.ID
	})).Return(gateway.InspectedEvidence{MIMEType: "image/png", Fingerprint: "abc", Verified: true}, nil)

	d, err := dispute.NewCreateDisputeUseCase(e.deps, e.moderator, e.inspector).Execute(context.Background(), dispute.CreateDisputeInput{
		ProjectID:   e.project.ID,
		MilestoneID: e.project.Milestones[0].ID,
		Actor:       e.client,
		Reason:      reason,
		Evidence:    []gateway.EvidenceUpload{{Filename: "screen.png", Size: 1024}},
	})
	require.NoError(t, err)
	require.Len(t, d.Evidence, 1)
	assert.Equal(t, "image/png", d.Evidence[0].Type)
	assert.True(t, d.Evidence[0].Verified)
	e.inspector.AssertExpectations(t)
}

func TestReview_HighConfidenceSuggestsSelfResolution(t *testing.T) {
	e := newEnv(t)
	e.oracle.On("AnalyzeDispute", mock.Anything, mock.Anything).Return(gateway.DisputeAnalysis{
		ConfidenceScore:       gateway.ConfidenceScore{Freelancer: 85, Client: 15},
		RecommendedResolution: "full_payment_to_freelancer",
	}, nil)

	d := e.open(t, e.client)
	e.payFee(t, d, e.client)
	d = e.payFee(t, d, e.freelancer)
	assert.Equal(t, valueobject.DisputeStatusSelfResolution, d.Status)

	// сторона не согласна - спор уходит к медиатору
	_, err := dispute.NewRequestMediationUseCase(e.deps).Execute(context.Background(), d.ID, e.admin, "")
	assert.True(t, apperror.IsForbidden(err))

	d, err = dispute.NewRequestMediationUseCase(e.deps).Execute(context.Background(), d.ID, e.client, "не согласен")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusInMediation, d.Status)
	assert.NotNil(t, d.MediationStartedAt)
}

func TestPostMessage_EscalatesAfterThreshold(t *testing.T) {
	e := newEnv(t)
	d := e.toMediation(t)
	uc := dispute.NewPostMessageUseCase(e.deps, e.moderator)

	for i := 0; i < 10; i++ {
		res, err := uc.Execute(context.Background(), d.ID, e.client, "сообщение")
		require.NoError(t, err)
		assert.False(t, res.Escalated)
	}

	res, err := uc.Execute(context.Background(), d.ID, e.freelancer, "одиннадцатое")
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, valueobject.DisputeStatusInArbitration, res.Dispute.Status)
	assert.Len(t, res.Dispute.Messages, 11)
}

func TestPostMessage_StrangerForbidden(t *testing.T) {
	e := newEnv(t)
	d := e.toMediation(t)

	_, err := dispute.NewPostMessageUseCase(e.deps, e.moderator).Execute(context.Background(), d.ID,
		valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleFreelancer}, "привет")
	assert.True(t, apperror.IsForbidden(err))
}

func TestEscalate_TimeBased(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d := e.toMediation(t)

	_, err := dispute.NewAssignMediatorUseCase(e.deps, e.users).Execute(ctx, d.ID, e.arbitrator.ID, e.admin)
	require.NoError(t, err)

	escalate := dispute.NewEscalateUseCase(e.deps)
	_, err = escalate.Execute(ctx, d.ID, e.client, "")
	assert.True(t, apperror.IsStateConflict(err))

	check, err := dispute.NewEvaluateEscalationUseCase(e.deps).Execute(ctx, d.ID, e.client)
	require.NoError(t, err)
	assert.False(t, check.ShouldEscalate)

	e.now = start.Add(25 * time.Hour)
	n, err := escalate.EscalateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := e.disputes.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusInArbitration, stored.Status)

	// повторный проход ничего не делает
	n, err = escalate.EscalateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResolve_SplitMustMatchMilestone(t *testing.T) {
	e := newEnv(t)
	d := e.toArbitration(t)
	calls := len(e.gateway.Calls())

	_, err := e.resolve(d, e.admin, "partial_payment", "290", "100")
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Len(t, e.gateway.Calls(), calls)

	res, err := e.resolve(d, e.admin, "partial_payment", "300", "100")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusResolved, res.Dispute.Status)
	require.NotNil(t, res.Dispute.Resolution)
	assert.Equal(t, int64(30000), res.Dispute.Resolution.AmountToFreelancer)
	assert.Equal(t, int64(10000), res.Dispute.Resolution.AmountToClient)
	assert.Nil(t, res.Dispute.Claim)

	require.Len(t, res.Transactions, 2)
	assert.Equal(t, valueobject.TransactionTypeDisputeRefund, res.Transactions[0].Type)
	assert.Equal(t, int64(10000), res.Transactions[0].Amount)
	assert.Equal(t, valueobject.TransactionTypeDisputePayment, res.Transactions[1].Type)
	assert.Equal(t, int64(30000), res.Transactions[1].Amount)

	p := res.Project
	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)
	assert.Equal(t, valueobject.MilestoneStatusApproved, p.Milestones[0].Status)
	assert.Equal(t, int64(90000), p.Escrow.TotalHeld)
	assert.Equal(t, int64(30000), p.Escrow.TotalReleased)
	assert.Equal(t, int64(10000), p.Escrow.TotalRefunded)
	assert.Equal(t, int64(60000), p.Escrow.Remaining)
	assert.Equal(t, valueobject.EscrowStatusPartiallyReleased, p.Escrow.Status)
	assert.Nil(t, p.Claim)

	_, err = e.resolve(d, e.admin, "partial_payment", "300", "100")
	assert.True(t, apperror.IsStateConflict(err))
}

func TestResolve_OnlyAdminOrAssignedArbitrator(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d := e.toArbitration(t)

	_, err := e.resolve(d, e.freelancer, "full_payment_to_freelancer", "400", "0")
	assert.True(t, apperror.IsForbidden(err))

	_, err = e.resolve(d, e.arbitrator, "full_payment_to_freelancer", "400", "0")
	assert.True(t, apperror.IsForbidden(err))

	_, err = dispute.NewAssignArbitratorUseCase(e.deps, e.users).Execute(ctx, d.ID, e.arbitrator.ID, e.arbitrator)
	assert.True(t, apperror.IsForbidden(err))
	_, err = dispute.NewAssignArbitratorUseCase(e.deps, e.users).Execute(ctx, d.ID, e.client.ID, e.admin)
	assert.True(t, apperror.IsValidation(err))
	_, err = dispute.NewAssignArbitratorUseCase(e.deps, e.users).Execute(ctx, d.ID, e.arbitrator.ID, e.admin)
	require.NoError(t, err)

	res, err := e.resolve(d, e.arbitrator, "full_refund_to_client", "0", "400")
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, valueobject.TransactionTypeDisputeRefund, res.Transactions[0].Type)
	assert.Equal(t, valueobject.MilestoneStatusRevisionRequested, res.Project.Milestones[0].Status)
	assert.Equal(t, int64(40000), res.Project.Milestones[0].Refunded)
	assert.Equal(t, valueobject.ProjectStatusActive, res.Project.Status)

	// возвращается только доля этапа, средства второго этапа остаются в эскроу
	assert.Equal(t, int64(40000), res.Transactions[0].Amount)
	assert.Equal(t, int64(40000), res.Project.Escrow.TotalRefunded)
	assert.Equal(t, int64(60000), res.Project.Escrow.TotalHeld)
	assert.Equal(t, int64(60000), res.Project.Escrow.Remaining)
	assert.Equal(t, valueobject.EscrowStatusHeld, res.Project.Escrow.Status)
}

func TestResolve_GatewayFailureIsRetryable(t *testing.T) {
	e := newEnv(t)
	d := e.toArbitration(t)
	e.gateway.FailNext(1)

	_, err := e.resolve(d, e.admin, "full_payment_to_freelancer", "400", "0")
	require.Error(t, err)
	assert.True(t, apperror.IsExternal(err))

	stored, err := e.disputes.FindByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusInArbitration, stored.Status)
	assert.Nil(t, stored.Claim)
	p := e.storedProject(t)
	assert.Nil(t, p.Claim)
	assert.Equal(t, int64(0), p.Escrow.TotalReleased)

	res, err := e.resolve(d, e.admin, "full_payment_to_freelancer", "400", "0")
	require.NoError(t, err)
	assert.Equal(t, int64(40000), res.Project.Escrow.TotalReleased)
	assert.Equal(t, valueobject.MilestoneStatusApproved, res.Project.Milestones[0].Status)
}

func TestCreateDispute_RedisputeCooldown(t *testing.T) {
	e := newEnv(t)
	d := e.toArbitration(t)

	_, err := e.resolve(d, e.admin, "revision_required", "0", "0")
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusRevisionRequested, e.storedProject(t).Milestones[0].Status)

	e.now = start.Add(time.Hour)
	_, err = dispute.NewCreateDisputeUseCase(e.deps, e.moderator, e.inspector).Execute(context.Background(), dispute.CreateDisputeInput{
		ProjectID:   e.project.ID,
		MilestoneID: e.project.Milestones[0].ID,
		Actor:       e.client,
		Reason:      reason,
	})
	assert.True(t, apperror.IsRateLimited(err))

	e.now = start.Add(25 * time.Hour)
	again := e.open(t, e.client)
	assert.Equal(t, valueobject.DisputeStatusPendingFee, again.Status)
}

func TestAppeal_ApprovedReturnsToArbitration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d := e.toArbitration(t)
	_, err := e.resolve(d, e.admin, "revision_required", "0", "0")
	require.NoError(t, err)

	submit := dispute.NewSubmitAppealUseCase(e.deps, e.moderator, e.inspector)
	d, err = submit.Execute(ctx, dispute.SubmitAppealInput{
		DisputeID: d.ID,
		Actor:     e.freelancer,
		Reason:    "Арбитр не учёл переписку по макету",
	})
	require.NoError(t, err)
	require.NotNil(t, d.Appeal)
	assert.Equal(t, valueobject.AppealStatusPending, d.Appeal.Status)

	review := dispute.NewReviewAppealUseCase(e.deps)
	_, err = review.Execute(ctx, d.ID, e.client, "APPROVED", "")
	assert.True(t, apperror.IsForbidden(err))

	d, err = review.Execute(ctx, d.ID, e.admin, "APPROVED", "пересмотреть")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusInArbitration, d.Status)
	assert.Nil(t, d.Resolution)
	require.NotNil(t, d.Appeal.PreviousResolution)

	p := e.storedProject(t)
	assert.Equal(t, valueobject.ProjectStatusDisputed, p.Status)
	assert.Equal(t, valueobject.MilestoneStatusDisputed, p.Milestones[0].Status)

	res, err := e.resolve(d, e.admin, "full_payment_to_freelancer", "400", "0")
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusApproved, res.Project.Milestones[0].Status)
}

func TestAppeal_WindowExpired(t *testing.T) {
	e := newEnv(t)
	d := e.toArbitration(t)
	_, err := e.resolve(d, e.admin, "partial_payment", "200", "200")
	require.NoError(t, err)

	e.now = start.Add(8 * 24 * time.Hour)
	_, err = dispute.NewSubmitAppealUseCase(e.deps, e.moderator, e.inspector).Execute(context.Background(), dispute.SubmitAppealInput{
		DisputeID: d.ID,
		Actor:     e.client,
		Reason:    "Решение несправедливо по отношению к клиенту",
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestListDisputes_Visibility(t *testing.T) {
	e := newEnv(t)
	e.open(t, e.client)
	uc := dispute.NewListDisputesUseCase(e.deps)

	list, err := uc.Execute(context.Background(), e.project.ID, e.freelancer)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = uc.Execute(context.Background(), e.project.ID, valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleClient})
	assert.True(t, apperror.IsForbidden(err))
}

// transferHook выполняет during, пока перевод фрилансеру ещё не завершён.
type transferHook struct {
	*payment.SandboxGateway
	during func(ctx context.Context)
}

func (g transferHook) TransferToFreelancer(ctx context.Context, req gateway.TransferRequest) (gateway.PaymentResult, error) {
	g.during(ctx)
	return g.SandboxGateway.TransferToFreelancer(ctx, req)
}

func TestCreateDispute_RejectedWhilePayoutInFlight(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var disputeErr error
	payments := transferHook{SandboxGateway: e.gateway, during: func(ctx context.Context) {
		_, disputeErr = dispute.NewCreateDisputeUseCase(e.deps, e.moderator, e.inspector).Execute(ctx, dispute.CreateDisputeInput{
			ProjectID:   e.project.ID,
			MilestoneID: e.project.Milestones[0].ID,
			Actor:       e.client,
			Reason:      reason,
		})
	}}
	releaser := escrow.NewReleaser(e.deps.Projects, e.recorder, payments, e.deps.Events)

	res, err := releaser.Release(ctx, escrow.ReleaseRequest{
		ProjectID:   e.project.ID,
		MilestoneID: e.project.Milestones[0].ID,
		Actor:       e.client,
	})
	require.NoError(t, err)
	assert.True(t, apperror.IsStateConflict(disputeErr), "dispute: %v", disputeErr)
	assert.Equal(t, int64(38560), res.Transaction.Amount)

	open, err := e.disputes.CountOpenByProject(ctx, e.project.ID)
	require.NoError(t, err)
	assert.Zero(t, open)

	p := e.storedProject(t)
	assert.Equal(t, valueobject.ProjectStatusActive, p.Status)
	assert.Equal(t, valueobject.MilestoneStatusApproved, p.Milestones[0].Status)
	assert.Equal(t, int64(40000), p.Escrow.TotalReleased)
	assert.Equal(t, int64(60000), p.Escrow.Remaining)

	// оплаченный этап больше нельзя оспорить, повторной выплаты не будет
	_, err = dispute.NewCreateDisputeUseCase(e.deps, e.moderator, e.inspector).Execute(ctx, dispute.CreateDisputeInput{
		ProjectID:   e.project.ID,
		MilestoneID: e.project.Milestones[0].ID,
		Actor:       e.client,
		Reason:      reason,
	})
	assert.True(t, apperror.IsStateConflict(err))
	assert.Len(t, e.gateway.Calls(), 1)
}
