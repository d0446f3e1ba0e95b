package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/auth"
	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/interface/http/handler"
)

type Handlers struct {
	Project   *handler.ProjectHandler
	Milestone *handler.MilestoneHandler
	Dispute   *handler.DisputeHandler
	WS        *handler.WSHandler
	Health    *handler.HealthHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokens *auth.TokenManager, roles middleware.RoleRecorder) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")
	api.GET("/ws", h.WS.Handle)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokens, roles))
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))

	projects := protected.Group("/projects")
	{
		projects.POST("", h.Project.CreateProject)
		projects.GET("", h.Project.ListProjects)

		project := projects.Group("/:id", middleware.UUIDValidator("id"))
		project.GET("", h.Project.GetProject)
		project.POST("/invite", h.Project.InviteFreelancer)
		project.POST("/accept", h.Project.AcceptInvitation)
		project.POST("/decline", h.Project.DeclineInvitation)
		project.POST("/deposit", h.Project.Deposit)
		project.POST("/cancel", h.Project.CancelProject)
		project.POST("/archive", h.Project.ArchiveProject)
		project.POST("/hold", h.Project.HoldProject)
		project.POST("/resume", h.Project.ResumeProject)
		project.POST("/duplicate", h.Project.DuplicateProject)
		project.POST("/milestones", h.Project.AddMilestone)
		project.GET("/transactions", h.Project.ListTransactions)
		project.GET("/disputes", h.Dispute.ListProjectDisputes)

		milestone := project.Group("/milestones/:milestoneId", middleware.UUIDValidator("milestoneId"))
		milestone.POST("/start", h.Milestone.Start)
		milestone.POST("/submit", h.Milestone.Submit)
		milestone.POST("/approve", h.Milestone.Approve)
		milestone.POST("/revision", h.Milestone.RequestRevision)
		milestone.POST("/resubmit", h.Milestone.Resubmit)
		milestone.POST("/dispute", h.Dispute.CreateDispute)
	}

	disputes := protected.Group("/disputes")
	{
		disputes.GET("", h.Dispute.ListDisputes)

		d := disputes.Group("/:id", middleware.UUIDValidator("id"))
		d.GET("", h.Dispute.GetDispute)
		d.POST("/fee", h.Dispute.PayFee)
		d.POST("/request-mediation", h.Dispute.RequestMediation)
		d.POST("/mediator", h.Dispute.AssignMediator)
		d.POST("/messages", h.Dispute.PostMessage)
		d.GET("/escalation", h.Dispute.EvaluateEscalation)
		d.POST("/escalate", h.Dispute.Escalate)
		d.POST("/arbitrator", h.Dispute.AssignArbitrator)
		d.POST("/resolve", h.Dispute.Resolve)
		d.POST("/appeal", h.Dispute.SubmitAppeal)
		d.POST("/appeal/review", h.Dispute.ReviewAppeal)
	}

	return r
}
