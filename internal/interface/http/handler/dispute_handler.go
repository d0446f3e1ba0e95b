package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/interface/http/dto"
	"github.com/ignatzorin/escrow-backend/internal/interface/http/response"
	"github.com/ignatzorin/escrow-backend/internal/usecase/dispute"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

type DisputeUseCases struct {
	Create             *dispute.CreateDisputeUseCase
	Get                *dispute.GetDisputeUseCase
	ListByProject      *dispute.ListDisputesUseCase
	ListByStatus       *dispute.ListByStatusUseCase
	PayFee             *dispute.PayFeeUseCase
	RequestMediation   *dispute.RequestMediationUseCase
	AssignMediator     *dispute.AssignMediatorUseCase
	PostMessage        *dispute.PostMessageUseCase
	EvaluateEscalation *dispute.EvaluateEscalationUseCase
	Escalate           *dispute.EscalateUseCase
	AssignArbitrator   *dispute.AssignArbitratorUseCase
	Resolve            *dispute.ResolveDisputeUseCase
	SubmitAppeal       *dispute.SubmitAppealUseCase
	ReviewAppeal       *dispute.ReviewAppealUseCase
}

type DisputeHandler struct {
	uc DisputeUseCases
}

func NewDisputeHandler(uc DisputeUseCases) *DisputeHandler {
	return &DisputeHandler{uc: uc}
}

// CreateDispute обрабатывает POST /api/projects/:id/milestones/:milestoneId/dispute.
func (h *DisputeHandler) CreateDispute(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	ref, ok := milestoneRef(c)
	if !ok {
		return
	}

	var req dto.CreateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите причину спора")
		return
	}
	if err := validateEvidence(req.Reason, req.Evidence); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	d, err := h.uc.Create.Execute(c.Request.Context(), dispute.CreateDisputeInput{
		ProjectID:   ref.ProjectID,
		MilestoneID: ref.MilestoneID,
		Actor:       actor,
		Reason:      req.Reason,
		Evidence:    dto.ToEvidenceUploads(req.Evidence, actor.ID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToDisputeResponse(d))
}

func (h *DisputeHandler) ListProjectDisputes(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	list, err := h.uc.ListByProject.Execute(c.Request.Context(), projectID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponses(list))
}

// ListDisputes обрабатывает GET /api/disputes?status=... (очередь сотрудников).
func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	status := c.Query("status")
	if status == "" {
		response.BadRequest(c, "укажите status")
		return
	}

	list, err := h.uc.ListByStatus.Execute(c.Request.Context(), status, actor, parseIntQuery(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponses(list))
}

func (h *DisputeHandler) GetDispute(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	d, err := h.uc.Get.Execute(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}

// PayFee обрабатывает POST /api/disputes/:id/fee.
func (h *DisputeHandler) PayFee(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.PayFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите payment_method_ref")
		return
	}

	res, err := h.uc.PayFee.Execute(c.Request.Context(), dispute.PayFeeInput{
		DisputeID:        id,
		Actor:            actor,
		PaymentMethodRef: req.PaymentMethodRef,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	out := dto.PayFeeResponse{
		Dispute:     dto.ToDisputeResponse(res.Dispute),
		AlreadyPaid: res.AlreadyPaid,
	}
	if res.Transaction != nil {
		tx := dto.ToTransactionResponse(res.Transaction)
		out.Transaction = &tx
	}
	response.Success(c, out)
}

func (h *DisputeHandler) RequestMediation(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.NoteRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	d, err := h.uc.RequestMediation.Execute(c.Request.Context(), id, actor, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}

func (h *DisputeHandler) AssignMediator(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := bindAssignee(c)
	if !ok {
		return
	}

	d, err := h.uc.AssignMediator.Execute(c.Request.Context(), id, userID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}

// PostMessage обрабатывает POST /api/disputes/:id/messages.
func (h *DisputeHandler) PostMessage(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "сообщение не может быть пустым")
		return
	}
	if err := validation.ValidateNotes("сообщение", req.Content); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.uc.PostMessage.Execute(c.Request.Context(), id, actor, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.PostMessageResponse{
		Dispute:    dto.ToDisputeResponse(res.Dispute),
		Message:    res.Message,
		Escalation: res.Escalation,
		Escalated:  res.Escalated,
	})
}

// EvaluateEscalation обрабатывает GET /api/disputes/:id/escalation.
func (h *DisputeHandler) EvaluateEscalation(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	check, err := h.uc.EvaluateEscalation.Execute(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, check)
}

func (h *DisputeHandler) Escalate(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.NoteRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	d, err := h.uc.Escalate.Execute(c.Request.Context(), id, actor, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}

func (h *DisputeHandler) AssignArbitrator(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := bindAssignee(c)
	if !ok {
		return
	}

	d, err := h.uc.AssignArbitrator.Execute(c.Request.Context(), id, userID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}

// Resolve обрабатывает POST /api/disputes/:id/resolve. Суммы в валюте этапа.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите решение и его обоснование")
		return
	}

	res, err := h.uc.Resolve.Execute(c.Request.Context(), dispute.ResolveInput{
		DisputeID:          id,
		Actor:              actor,
		Decision:           req.Decision,
		AmountToFreelancer: req.AmountToFreelancer,
		AmountToClient:     req.AmountToClient,
		Reason:             req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ResolveDisputeResponse{
		Dispute:      dto.ToDisputeResponse(res.Dispute),
		Project:      dto.ToProjectResponse(res.Project),
		Transactions: dto.ToTransactionResponses(res.Transactions),
	})
}

func (h *DisputeHandler) SubmitAppeal(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.SubmitAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите причину апелляции")
		return
	}
	if err := validateEvidence(req.Reason, req.Evidence); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	d, err := h.uc.SubmitAppeal.Execute(c.Request.Context(), dispute.SubmitAppealInput{
		DisputeID: id,
		Actor:     actor,
		Reason:    req.Reason,
		Evidence:  dto.ToEvidenceUploads(req.Evidence, actor.ID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToDisputeResponse(d))
}

func (h *DisputeHandler) ReviewAppeal(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReviewAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "решение должно быть APPROVED или REJECTED")
		return
	}

	d, err := h.uc.ReviewAppeal.Execute(c.Request.Context(), id, actor, req.Decision, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}

func bindAssignee(c *gin.Context) (uuid.UUID, bool) {
	var req dto.AssignUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите user_id")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.UserID)
	if err != nil {
		response.BadRequest(c, "некорректный user_id")
		return uuid.Nil, false
	}
	return id, true
}

func validateEvidence(reason string, items []dto.EvidenceRequest) error {
	if err := validation.ValidateNotes("причина", reason); err != nil {
		return err
	}
	if len(items) > validation.MaxEvidenceCount {
		return fmt.Errorf("можно приложить не более %d доказательств", validation.MaxEvidenceCount)
	}
	for _, e := range items {
		if err := validation.ValidateFilename(e.Filename); err != nil {
			return err
		}
		if e.URL != "" {
			if err := validation.ValidateLink(e.URL); err != nil {
				return err
			}
		}
	}
	return nil
}
