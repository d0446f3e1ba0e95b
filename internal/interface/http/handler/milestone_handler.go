package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/interface/http/dto"
	"github.com/ignatzorin/escrow-backend/internal/interface/http/response"
	"github.com/ignatzorin/escrow-backend/internal/usecase/milestone"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

type MilestoneUseCases struct {
	Start           *milestone.StartMilestoneUseCase
	Submit          *milestone.SubmitMilestoneUseCase
	Resubmit        *milestone.ResubmitMilestoneUseCase
	RequestRevision *milestone.RequestRevisionUseCase
	Approve         *milestone.ApproveMilestoneUseCase
}

// MilestoneHandler обслуживает /api/projects/:id/milestones/:milestoneId/*.
type MilestoneHandler struct {
	uc MilestoneUseCases
}

func NewMilestoneHandler(uc MilestoneUseCases) *MilestoneHandler {
	return &MilestoneHandler{uc: uc}
}

func milestoneRef(c *gin.Context) (milestone.Ref, bool) {
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return milestone.Ref{}, false
	}
	milestoneID, ok := parseUUIDParam(c, "milestoneId")
	if !ok {
		return milestone.Ref{}, false
	}
	return milestone.Ref{ProjectID: projectID, MilestoneID: milestoneID}, true
}

func (h *MilestoneHandler) Start(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	ref, ok := milestoneRef(c)
	if !ok {
		return
	}

	m, err := h.uc.Start.Execute(c.Request.Context(), ref, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToMilestoneResponse(m))
}

func (h *MilestoneHandler) Submit(c *gin.Context) {
	h.submit(c, h.uc.Submit.Execute)
}

func (h *MilestoneHandler) Resubmit(c *gin.Context) {
	h.submit(c, h.uc.Resubmit.Execute)
}

func (h *MilestoneHandler) submit(c *gin.Context, execute func(context.Context, milestone.SubmitInput) (*entity.Milestone, error)) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	ref, ok := milestoneRef(c)
	if !ok {
		return
	}

	var req dto.SubmitMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите хотя бы один результат работы")
		return
	}
	if err := validation.ValidateDeliverables(req.Deliverables); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateNotes("комментарий", req.Notes); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	m, err := execute(c.Request.Context(), milestone.SubmitInput{
		Ref:          ref,
		Actor:        actor,
		Deliverables: req.Deliverables,
		Notes:        req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToMilestoneResponse(m))
}

// RequestRevision обрабатывает POST .../revision.
func (h *MilestoneHandler) RequestRevision(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	ref, ok := milestoneRef(c)
	if !ok {
		return
	}

	var req dto.RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "опишите, что нужно доработать")
		return
	}
	if err := validation.ValidateNotes("комментарий", req.Notes); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	m, err := h.uc.RequestRevision.Execute(c.Request.Context(), ref, actor, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToMilestoneResponse(m))
}

// Approve обрабатывает POST .../approve: одобрение этапа и выплата фрилансеру.
func (h *MilestoneHandler) Approve(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	ref, ok := milestoneRef(c)
	if !ok {
		return
	}

	res, err := h.uc.Approve.Execute(c.Request.Context(), ref, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToReleaseResponse(res))
}
