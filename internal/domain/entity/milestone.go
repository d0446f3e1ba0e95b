package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type Milestone struct {
	ID                 uuid.UUID
	ProjectID          uuid.UUID
	Position           int
	Title              string
	Description        string
	AcceptanceCriteria string
	Amount             int64
	Currency           valueobject.Currency
	Deadline           *time.Time
	Status             valueobject.MilestoneStatus
	Deliverables       []string
	SubmissionNotes    string
	RevisionHistory    []RevisionRequest
	AutoApproved       bool
	// Released и Refunded - уже перечисленные фрилансеру и возвращённые клиенту суммы.
	Released    int64
	Refunded    int64
	StartedAt   *time.Time
	SubmittedAt *time.Time
	ApprovedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RevisionRequest struct {
	RequestedAt time.Time `json:"requestedAt"`
	RequestedBy string    `json:"requestedBy"`
	Notes       string    `json:"notes"`
}

// MilestoneDraft - входные данные для создания этапа.
type MilestoneDraft struct {
	Title              string
	Description        string
	AcceptanceCriteria string
	Amount             int64
	Currency           valueobject.Currency
	Deadline           *time.Time
}

func newMilestone(projectID uuid.UUID, position int, d MilestoneDraft, projectCurrency valueobject.Currency, now time.Time) (*Milestone, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, apperror.Validation("название этапа обязательно")
	}
	if d.Amount <= 0 {
		return nil, apperror.Validation("сумма этапа должна быть больше нуля")
	}
	currency := d.Currency
	if currency == "" {
		currency = projectCurrency
	}
	if !currency.IsValid() {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "валюта этапа %q не поддерживается", currency)
	}
	if currency != projectCurrency {
		return nil, apperror.Validation("валюта этапа должна совпадать с валютой проекта")
	}
	if d.Deadline != nil && d.Deadline.Before(now) {
		return nil, apperror.Validation("дедлайн этапа не может быть в прошлом")
	}
	return &Milestone{
		ID:                 uuid.New(),
		ProjectID:          projectID,
		Position:           position,
		Title:              title,
		Description:        d.Description,
		AcceptanceCriteria: d.AcceptanceCriteria,
		Amount:             d.Amount,
		Currency:           currency,
		Deadline:           d.Deadline,
		Status:             valueobject.MilestoneStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (m *Milestone) transition(next valueobject.MilestoneStatus, now time.Time) error {
	if !m.Status.CanTransitionTo(next) {
		return apperror.Newf(apperror.ErrCodeStateConflict,
			"этап в статусе %s не может перейти в %s", m.Status, next)
	}
	m.Status = next
	m.UpdatedAt = now
	return nil
}

// Unsettled - часть суммы этапа, ещё находящаяся в эскроу.
func (m *Milestone) Unsettled() int64 {
	return m.Amount - m.Released - m.Refunded
}

func (m *Milestone) IsSettled() bool {
	return m.Unsettled() == 0
}

// IsClosed - этап больше не участвует в работе: одобрен или полностью урегулирован.
func (m *Milestone) IsClosed() bool {
	return m.Status == valueobject.MilestoneStatusApproved || m.IsSettled()
}

func (m *Milestone) Start(now time.Time) error {
	if err := m.transition(valueobject.MilestoneStatusInProgress, now); err != nil {
		return err
	}
	m.StartedAt = &now
	return nil
}

func (m *Milestone) Submit(deliverables []string, notes string, now time.Time) error {
	if m.Status != valueobject.MilestoneStatusInProgress {
		return apperror.Newf(apperror.ErrCodeStateConflict, "сдать можно только этап в работе, текущий статус %s", m.Status)
	}
	return m.submit(deliverables, notes, now)
}

func (m *Milestone) Resubmit(deliverables []string, notes string, now time.Time) error {
	if m.Status != valueobject.MilestoneStatusRevisionRequested {
		return apperror.Newf(apperror.ErrCodeStateConflict, "повторно сдать можно только этап на доработке, текущий статус %s", m.Status)
	}
	if m.IsSettled() {
		return apperror.StateConflict("средства по этапу уже распределены")
	}
	return m.submit(deliverables, notes, now)
}

func (m *Milestone) submit(deliverables []string, notes string, now time.Time) error {
	if err := m.transition(valueobject.MilestoneStatusSubmitted, now); err != nil {
		return err
	}
	m.Deliverables = append([]string(nil), deliverables...)
	m.SubmissionNotes = notes
	m.SubmittedAt = &now
	return nil
}

func (m *Milestone) RequestRevision(requestedBy, notes string, now time.Time) error {
	if m.Status != valueobject.MilestoneStatusSubmitted {
		return apperror.Newf(apperror.ErrCodeStateConflict, "доработку можно запросить только для сданного этапа, текущий статус %s", m.Status)
	}
	if err := m.transition(valueobject.MilestoneStatusRevisionRequested, now); err != nil {
		return err
	}
	m.RevisionHistory = append(m.RevisionHistory, RevisionRequest{
		RequestedAt: now,
		RequestedBy: requestedBy,
		Notes:       notes,
	})
	return nil
}

func (m *Milestone) MarkDisputed(now time.Time) error {
	if !m.Status.IsDisputable() {
		return apperror.Newf(apperror.ErrCodeStateConflict, "этап в статусе %s нельзя оспорить", m.Status)
	}
	if m.IsSettled() {
		return apperror.StateConflict("средства по этапу уже распределены")
	}
	return m.transition(valueobject.MilestoneStatusDisputed, now)
}

// ReviewDue - этап ждёт решения клиента дольше срока автоодобрения.
func (m *Milestone) ReviewDue(autoApproveDays int, now time.Time) bool {
	if m.Status != valueobject.MilestoneStatusSubmitted || m.SubmittedAt == nil {
		return false
	}
	deadline := m.SubmittedAt.Add(time.Duration(autoApproveDays) * 24 * time.Hour)
	return !now.Before(deadline)
}

func (m *Milestone) approve(auto bool, now time.Time) error {
	if err := m.transition(valueobject.MilestoneStatusApproved, now); err != nil {
		return err
	}
	m.AutoApproved = auto
	m.ApprovedAt = &now
	return nil
}

// settleOutcome переводит этап в итоговый статус решения по спору.
func (m *Milestone) settleOutcome(decision valueobject.Decision, now time.Time) error {
	next := decision.MilestoneOutcome()
	if m.Status == next {
		return nil
	}
	if next == valueobject.MilestoneStatusApproved {
		return m.approve(false, now)
	}
	return m.transition(next, now)
}
