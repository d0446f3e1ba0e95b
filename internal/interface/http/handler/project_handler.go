package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/interface/http/dto"
	"github.com/ignatzorin/escrow-backend/internal/interface/http/response"
	"github.com/ignatzorin/escrow-backend/internal/usecase/project"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

type ProjectUseCases struct {
	Create           *project.CreateProjectUseCase
	Get              *project.GetProjectUseCase
	List             *project.ListProjectsUseCase
	ListTransactions *project.ListTransactionsUseCase
	Invite           *project.InviteFreelancerUseCase
	Accept           *project.AcceptInvitationUseCase
	Decline          *project.DeclineInvitationUseCase
	Deposit          *project.DepositUseCase
	Cancel           *project.CancelProjectUseCase
	Archive          *project.StatusChangeUseCase
	Hold             *project.StatusChangeUseCase
	Resume           *project.StatusChangeUseCase
	Duplicate        *project.DuplicateProjectUseCase
	AddMilestone     *project.AddMilestoneUseCase
}

type ProjectHandler struct {
	uc ProjectUseCases
}

func NewProjectHandler(uc ProjectUseCases) *ProjectHandler {
	return &ProjectHandler{uc: uc}
}

func toMilestoneInput(req dto.MilestoneRequest) (project.MilestoneInput, error) {
	if err := validation.ValidateMilestoneText(req.Title, req.Description, req.AcceptanceCriteria); err != nil {
		return project.MilestoneInput{}, err
	}
	deadline, err := dto.ParseDeadline(req.Deadline)
	if err != nil {
		return project.MilestoneInput{}, errors.New("некорректный формат дедлайна этапа")
	}
	return project.MilestoneInput{
		Title:              req.Title,
		Description:        req.Description,
		AcceptanceCriteria: req.AcceptanceCriteria,
		Amount:             req.Amount,
		Deadline:           deadline,
	}, nil
}

// CreateProject обрабатывает POST /api/projects.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}
	if err := validation.ValidateProjectTitle(req.Title); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Description != "" {
		if err := validation.ValidateProjectDescription(req.Description); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	deadline, err := dto.ParseDeadline(req.Deadline)
	if err != nil {
		response.BadRequest(c, "некорректный формат дедлайна")
		return
	}

	milestones := make([]project.MilestoneInput, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		in, err := toMilestoneInput(m)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		milestones = append(milestones, in)
	}

	p, err := h.uc.Create.Execute(c.Request.Context(), project.CreateProjectInput{
		Actor:                actor,
		Title:                req.Title,
		Description:          req.Description,
		Category:             req.Category,
		Budget:               req.Budget,
		Currency:             req.Currency,
		Deadline:             deadline,
		Milestones:           milestones,
		ClientFeePercent:     req.ClientFeePercent,
		FreelancerFeePercent: req.FreelancerFeePercent,
		AutoApproveDays:      req.AutoApproveDays,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToProjectResponse(p))
}

// ListProjects обрабатывает GET /api/projects.
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}

	projects, err := h.uc.List.Execute(c.Request.Context(), actor, repository.ProjectFilter{
		Status: c.Query("status"),
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToProjectResponses(projects))
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	p, err := h.uc.Get.Execute(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToProjectResponse(p))
}

func (h *ProjectHandler) ListTransactions(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	txs, err := h.uc.ListTransactions.Execute(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToTransactionResponses(txs))
}

// InviteFreelancer обрабатывает POST /api/projects/:id/invite.
func (h *ProjectHandler) InviteFreelancer(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.InviteFreelancerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите freelancer_id")
		return
	}
	freelancerID, err := uuid.Parse(req.FreelancerID)
	if err != nil {
		response.BadRequest(c, "некорректный freelancer_id")
		return
	}

	p, err := h.uc.Invite.Execute(c.Request.Context(), id, actor, freelancerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToProjectResponse(p))
}

func (h *ProjectHandler) AcceptInvitation(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите payout_account")
		return
	}

	p, err := h.uc.Accept.Execute(c.Request.Context(), id, actor, req.PayoutAccount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToProjectResponse(p))
}

func (h *ProjectHandler) DeclineInvitation(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	p, err := h.uc.Decline.Execute(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToProjectResponse(p))
}

// Deposit обрабатывает POST /api/projects/:id/deposit.
func (h *ProjectHandler) Deposit(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите payment_method_ref")
		return
	}

	res, err := h.uc.Deposit.Execute(c.Request.Context(), project.DepositInput{
		ProjectID:        id,
		Actor:            actor,
		PaymentMethodRef: req.PaymentMethodRef,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDepositResponse(res))
}

func (h *ProjectHandler) CancelProject(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.uc.Cancel.Execute(c.Request.Context(), project.CancelInput{
		ProjectID: id,
		Actor:     actor,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToCancelResponse(res))
}

func (h *ProjectHandler) ArchiveProject(c *gin.Context) {
	h.changeStatus(c, h.uc.Archive)
}

func (h *ProjectHandler) HoldProject(c *gin.Context) {
	h.changeStatus(c, h.uc.Hold)
}

func (h *ProjectHandler) ResumeProject(c *gin.Context) {
	h.changeStatus(c, h.uc.Resume)
}

func (h *ProjectHandler) changeStatus(c *gin.Context, uc *project.StatusChangeUseCase) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	p, err := uc.Execute(c.Request.Context(), id, actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToProjectResponse(p))
}

func (h *ProjectHandler) DuplicateProject(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	p, err := h.uc.Duplicate.Execute(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToProjectResponse(p))
}

// AddMilestone обрабатывает POST /api/projects/:id/milestones.
func (h *ProjectHandler) AddMilestone(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.MilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}
	in, err := toMilestoneInput(req)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p, _, err := h.uc.AddMilestone.Execute(c.Request.Context(), project.AddMilestoneInput{
		ProjectID: id,
		Actor:     actor,
		Milestone: in,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToProjectResponse(p))
}
