// Package app собирает use case'ы и HTTP хэндлеры поверх выбранных хранилищ и внешних сервисов.
package app

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/auth"
	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/http/router"
	"github.com/ignatzorin/escrow-backend/internal/interface/http/handler"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
	"github.com/ignatzorin/escrow-backend/internal/usecase/dispute"
	"github.com/ignatzorin/escrow-backend/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-backend/internal/usecase/ledger"
	"github.com/ignatzorin/escrow-backend/internal/usecase/milestone"
	"github.com/ignatzorin/escrow-backend/internal/usecase/project"
	"github.com/ignatzorin/escrow-backend/internal/ws"
)

// UserDirectory отвечает на вопросы о ролях и запоминает роли из токенов.
type UserDirectory interface {
	repository.UserDirectory
	middleware.RoleRecorder
}

type Storage struct {
	Projects     repository.ProjectRepository
	Disputes     repository.DisputeRepository
	Transactions repository.TransactionRepository
	Users        UserDirectory
	// Health равен nil для хранилища в памяти.
	Health handler.Pinger
}

// Ports - внешние сервисы. Oracle может быть nil: споры тогда сразу уходят к медиатору.
type Ports struct {
	Payments  gateway.PaymentGateway
	Moderator gateway.ContentModerator
	Inspector gateway.EvidenceInspector
	Oracle    gateway.DisputeOracle
	Notify    gateway.NotificationSink
	Audit     gateway.AuditSink
}

type App struct {
	Engine        *gin.Engine
	AutoApprove   *milestone.AutoApproveUseCase
	Escalate      *dispute.EscalateUseCase
	ReviewPending *dispute.ReviewPendingUseCase
}

func New(cfg *config.Config, st Storage, ports Ports, hub *ws.Hub, tokens *auth.TokenManager, c clock.Clock) *App {
	events := escrow.NewEmitter(ports.Notify, ports.Audit)
	projects := escrow.NewProjects(st.Projects, c, cfg.ClaimTimeout)
	recorder := ledger.NewRecorder(st.Transactions, c)
	releaser := escrow.NewReleaser(projects, recorder, ports.Payments, events)

	policy := dispute.DefaultPolicy()
	if cfg.AppealWindow > 0 {
		policy.AppealWindow = cfg.AppealWindow
	}
	if cfg.ClaimTimeout > 0 {
		policy.ClaimTimeout = cfg.ClaimTimeout
	}
	deps := dispute.Deps{
		Disputes: st.Disputes,
		Projects: projects,
		Events:   events,
		Clock:    c,
		Policy:   policy,
	}
	reviewer := dispute.NewReviewer(deps, ports.Oracle)
	escalate := dispute.NewEscalateUseCase(deps)

	projectHandler := handler.NewProjectHandler(handler.ProjectUseCases{
		Create:           project.NewCreateProjectUseCase(st.Projects, ports.Moderator, c, events),
		Get:              project.NewGetProjectUseCase(st.Projects),
		List:             project.NewListProjectsUseCase(st.Projects),
		ListTransactions: project.NewListTransactionsUseCase(st.Projects, recorder),
		Invite:           project.NewInviteFreelancerUseCase(projects, st.Users, events),
		Accept:           project.NewAcceptInvitationUseCase(projects, events),
		Decline:          project.NewDeclineInvitationUseCase(projects, events),
		Deposit:          project.NewDepositUseCase(projects, recorder, ports.Payments, events),
		Cancel:           project.NewCancelProjectUseCase(projects, recorder, ports.Payments, events),
		Archive:          project.NewArchiveProjectUseCase(projects, events),
		Hold:             project.NewHoldProjectUseCase(projects, events),
		Resume:           project.NewResumeProjectUseCase(projects, events),
		Duplicate:        project.NewDuplicateProjectUseCase(st.Projects, c, events),
		AddMilestone:     project.NewAddMilestoneUseCase(projects, ports.Moderator, events),
	})

	milestoneHandler := handler.NewMilestoneHandler(handler.MilestoneUseCases{
		Start:           milestone.NewStartMilestoneUseCase(projects, events),
		Submit:          milestone.NewSubmitMilestoneUseCase(projects, events),
		Resubmit:        milestone.NewResubmitMilestoneUseCase(projects, events),
		RequestRevision: milestone.NewRequestRevisionUseCase(projects, events),
		Approve:         milestone.NewApproveMilestoneUseCase(releaser),
	})

	disputeHandler := handler.NewDisputeHandler(handler.DisputeUseCases{
		Create:             dispute.NewCreateDisputeUseCase(deps, ports.Moderator, ports.Inspector),
		Get:                dispute.NewGetDisputeUseCase(deps),
		ListByProject:      dispute.NewListDisputesUseCase(deps),
		ListByStatus:       dispute.NewListByStatusUseCase(deps),
		PayFee:             dispute.NewPayFeeUseCase(deps, recorder, ports.Payments, reviewer),
		RequestMediation:   dispute.NewRequestMediationUseCase(deps),
		AssignMediator:     dispute.NewAssignMediatorUseCase(deps, st.Users),
		PostMessage:        dispute.NewPostMessageUseCase(deps, ports.Moderator),
		EvaluateEscalation: dispute.NewEvaluateEscalationUseCase(deps),
		Escalate:           escalate,
		AssignArbitrator:   dispute.NewAssignArbitratorUseCase(deps, st.Users),
		Resolve:            dispute.NewResolveDisputeUseCase(deps, recorder, ports.Payments),
		SubmitAppeal:       dispute.NewSubmitAppealUseCase(deps, ports.Moderator, ports.Inspector),
		ReviewAppeal:       dispute.NewReviewAppealUseCase(deps),
	})

	engine := router.SetupRouter(cfg, router.Handlers{
		Project:   projectHandler,
		Milestone: milestoneHandler,
		Dispute:   disputeHandler,
		WS:        handler.NewWSHandler(hub, tokens, cfg.AllowedOrigins),
		Health:    handler.NewHealthHandler(st.Health, cfg.StorageDriver),
	}, tokens, st.Users)

	return &App{
		Engine:        engine,
		AutoApprove:   milestone.NewAutoApproveUseCase(releaser, projects, st.Projects),
		Escalate:      escalate,
		ReviewPending: dispute.NewReviewPendingUseCase(deps, reviewer),
	}
}
