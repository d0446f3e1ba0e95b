package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type Project struct {
	ID                      uuid.UUID
	ClientID                uuid.UUID
	FreelancerID            *uuid.UUID
	FreelancerPayoutAccount string
	Title                   string
	Description             string
	Category                string
	Budget                  int64
	Currency                valueobject.Currency
	Deadline                *time.Time
	Status                  valueobject.ProjectStatus
	Escrow                  Escrow
	PaymentSchedule         PaymentSchedule
	Milestones              []*Milestone
	ActivityLog             []ActivityEntry
	Claim                   *OperationClaim
	DuplicatedFrom          *uuid.UUID
	// Version увеличивается хранилищем при каждом успешном обновлении.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Escrow хранит суммы в минимальных единицах валюты проекта.
// После депозита всегда TotalHeld == TotalReleased + Remaining.
type Escrow struct {
	Status        valueobject.EscrowStatus
	TotalHeld     int64
	TotalReleased int64
	TotalRefunded int64
	Remaining     int64
}

type PaymentSchedule struct {
	ClientFeePercent     decimal.Decimal `json:"clientFeePercent"`
	FreelancerFeePercent decimal.Decimal `json:"freelancerFeePercent"`
	TotalFeePercent      decimal.Decimal `json:"totalFeePercent"`
	AutoApproveDays      int             `json:"autoApproveDays"`
}

func DefaultPaymentSchedule() PaymentSchedule {
	return PaymentSchedule{
		ClientFeePercent:     valueobject.DefaultClientFeePercent,
		FreelancerFeePercent: valueobject.DefaultFreelancerFeePercent,
		TotalFeePercent:      valueobject.DefaultClientFeePercent.Add(valueobject.DefaultFreelancerFeePercent),
		AutoApproveDays:      valueobject.DefaultAutoApproveDays,
	}
}

type ActivityEntry struct {
	Action      string         `json:"action"`
	PerformedBy string         `json:"performedBy"`
	Timestamp   time.Time      `json:"timestamp"`
	Details     map[string]any `json:"details,omitempty"`
}

type NewProjectParams struct {
	ClientID    uuid.UUID
	Title       string
	Description string
	Category    string
	Budget      int64
	Currency    valueobject.Currency
	Deadline    *time.Time
	Milestones  []MilestoneDraft
	Schedule    *PaymentSchedule
}

func NewProject(p NewProjectParams, now time.Time) (*Project, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, apperror.Validation("название проекта обязательно")
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, apperror.Validation("описание проекта обязательно")
	}
	if !p.Currency.IsValid() {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "валюта %q не поддерживается", p.Currency)
	}
	if p.Budget <= 0 {
		return nil, apperror.Validation("бюджет проекта должен быть больше нуля")
	}
	if p.Deadline != nil && p.Deadline.Before(now) {
		return nil, apperror.Validation("дедлайн не может быть в прошлом")
	}
	if len(p.Milestones) == 0 {
		return nil, apperror.Validation("проект должен содержать хотя бы один этап")
	}

	schedule := DefaultPaymentSchedule()
	if p.Schedule != nil {
		if err := validateSchedule(*p.Schedule); err != nil {
			return nil, err
		}
		schedule = *p.Schedule
		schedule.TotalFeePercent = schedule.ClientFeePercent.Add(schedule.FreelancerFeePercent)
	}

	project := &Project{
		ID:              uuid.New(),
		ClientID:        p.ClientID,
		Title:           title,
		Description:     p.Description,
		Category:        p.Category,
		Budget:          p.Budget,
		Currency:        p.Currency,
		Deadline:        p.Deadline,
		Status:          valueobject.ProjectStatusDraft,
		Escrow:          Escrow{Status: valueobject.EscrowStatusNone},
		PaymentSchedule: schedule,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var sum int64
	for i, d := range p.Milestones {
		m, err := newMilestone(project.ID, i, d, p.Currency, now)
		if err != nil {
			return nil, err
		}
		if sum > sum+m.Amount {
			return nil, apperror.Validation("сумма этапов вне допустимого диапазона")
		}
		sum += m.Amount
		project.Milestones = append(project.Milestones, m)
	}
	if sum != p.Budget {
		return nil, apperror.Newf(apperror.ErrCodeValidation,
			"сумма этапов %d не равна бюджету проекта %d", sum, p.Budget)
	}

	project.record("project_created", p.ClientID.String(), now, map[string]any{
		"budget":     p.Budget,
		"currency":   string(p.Currency),
		"milestones": len(project.Milestones),
	})
	return project, nil
}

func validateSchedule(s PaymentSchedule) error {
	if err := valueobject.ValidateFeePercent(s.ClientFeePercent); err != nil {
		return err
	}
	if err := valueobject.ValidateFeePercent(s.FreelancerFeePercent); err != nil {
		return err
	}
	if s.AutoApproveDays <= 0 {
		return apperror.Validation("срок автоодобрения должен быть больше нуля")
	}
	return nil
}

func (p *Project) transition(next valueobject.ProjectStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return apperror.Newf(apperror.ErrCodeStateConflict,
			"проект в статусе %s не может перейти в %s", p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = now
	return nil
}

func (p *Project) record(action, performedBy string, now time.Time, details map[string]any) {
	p.ActivityLog = append(p.ActivityLog, ActivityEntry{
		Action:      action,
		PerformedBy: performedBy,
		Timestamp:   now,
		Details:     details,
	})
}

// Record добавляет запись в журнал действий проекта.
func (p *Project) Record(action string, actor valueobject.Actor, now time.Time, details map[string]any) {
	p.record(action, actor.PerformedBy(), now, details)
	p.UpdatedAt = now
}

func (p *Project) IsClient(userID uuid.UUID) bool {
	return p.ClientID == userID
}

func (p *Project) IsFreelancer(userID uuid.UUID) bool {
	return p.FreelancerID != nil && *p.FreelancerID == userID
}

func (p *Project) IsParticipant(userID uuid.UUID) bool {
	return p.IsClient(userID) || p.IsFreelancer(userID)
}

func (p *Project) Milestone(id uuid.UUID) (*Milestone, error) {
	for _, m := range p.Milestones {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, apperror.ErrMilestoneNotFound
}

func (p *Project) Invite(freelancerID uuid.UUID, now time.Time) error {
	if p.FreelancerID != nil {
		return apperror.StateConflict("фрилансер уже приглашён в проект")
	}
	if freelancerID == p.ClientID {
		return apperror.Validation("клиент не может пригласить самого себя")
	}
	if err := p.transition(valueobject.ProjectStatusPendingAcceptance, now); err != nil {
		return err
	}
	p.FreelancerID = &freelancerID
	p.record("freelancer_invited", p.ClientID.String(), now, map[string]any{"freelancerId": freelancerID.String()})
	return nil
}

func (p *Project) Accept(payoutAccount string, now time.Time) error {
	if strings.TrimSpace(payoutAccount) == "" {
		return apperror.Validation("не указан счёт для выплат")
	}
	if err := p.transition(valueobject.ProjectStatusAwaitingDeposit, now); err != nil {
		return err
	}
	p.FreelancerPayoutAccount = payoutAccount
	p.record("invitation_accepted", p.FreelancerID.String(), now, nil)
	return nil
}

func (p *Project) Decline(now time.Time) error {
	if p.Status != valueobject.ProjectStatusPendingAcceptance {
		return apperror.Newf(apperror.ErrCodeStateConflict, "отклонить приглашение можно только в статусе %s", valueobject.ProjectStatusPendingAcceptance)
	}
	performedBy := p.FreelancerID.String()
	if err := p.transition(valueobject.ProjectStatusDraft, now); err != nil {
		return err
	}
	p.FreelancerID = nil
	p.record("invitation_declined", performedBy, now, nil)
	return nil
}

// ApplyDeposit переводит проект в работу после успешного платежа клиента.
func (p *Project) ApplyDeposit(now time.Time) error {
	if err := p.transition(valueobject.ProjectStatusActive, now); err != nil {
		return err
	}
	p.Escrow = Escrow{
		Status:    valueobject.EscrowStatusHeld,
		TotalHeld: p.Budget,
		Remaining: p.Budget,
	}
	p.record("funds_deposited", p.ClientID.String(), now, map[string]any{"amount": p.Budget})
	return nil
}

// CheckCancellable проверяет, что ни один этап не находится в работе.
func (p *Project) CheckCancellable() error {
	if !p.Status.CanTransitionTo(valueobject.ProjectStatusCancelled) {
		return apperror.Newf(apperror.ErrCodeStateConflict, "проект в статусе %s нельзя отменить", p.Status)
	}
	for _, m := range p.Milestones {
		if m.Status.IsActive() {
			return apperror.StateConflict("нельзя отменить проект с этапами в работе")
		}
	}
	return nil
}

// Cancel отменяет проект. refunded - сумма, возвращённая клиенту из эскроу.
func (p *Project) Cancel(actor valueobject.Actor, refunded int64, now time.Time) error {
	if err := p.CheckCancellable(); err != nil {
		return err
	}
	if refunded != p.Escrow.Remaining {
		return apperror.StateConflict("сумма возврата не совпадает с остатком эскроу")
	}
	if refunded > 0 {
		p.Escrow.TotalHeld -= refunded
		p.Escrow.TotalRefunded += refunded
		p.Escrow.Remaining = 0
		p.Escrow.Status = valueobject.EscrowStatusRefunded
	}
	if err := p.transition(valueobject.ProjectStatusCancelled, now); err != nil {
		return err
	}
	p.record("project_cancelled", actor.PerformedBy(), now, map[string]any{"refunded": refunded})
	return nil
}

func (p *Project) Archive(now time.Time) error {
	if err := p.transition(valueobject.ProjectStatusArchived, now); err != nil {
		return err
	}
	p.record("project_archived", p.ClientID.String(), now, nil)
	return nil
}

func (p *Project) Hold(reason string, now time.Time) error {
	if p.Status != valueobject.ProjectStatusActive {
		return apperror.Newf(apperror.ErrCodeStateConflict, "приостановить можно только активный проект, текущий статус %s", p.Status)
	}
	if err := p.transition(valueobject.ProjectStatusOnHold, now); err != nil {
		return err
	}
	p.record("project_on_hold", p.ClientID.String(), now, map[string]any{"reason": reason})
	return nil
}

func (p *Project) Resume(now time.Time) error {
	if p.Status != valueobject.ProjectStatusOnHold {
		return apperror.Newf(apperror.ErrCodeStateConflict, "возобновить можно только приостановленный проект, текущий статус %s", p.Status)
	}
	if err := p.transition(valueobject.ProjectStatusActive, now); err != nil {
		return err
	}
	p.record("project_resumed", p.ClientID.String(), now, nil)
	return nil
}

// AddMilestone добавляет этап до начала финансирования; бюджет растёт на сумму этапа.
func (p *Project) AddMilestone(d MilestoneDraft, now time.Time) (*Milestone, error) {
	if p.Status != valueobject.ProjectStatusDraft && p.Status != valueobject.ProjectStatusPendingAcceptance {
		return nil, apperror.Newf(apperror.ErrCodeStateConflict, "добавлять этапы можно только до принятия проекта, текущий статус %s", p.Status)
	}
	m, err := newMilestone(p.ID, len(p.Milestones), d, p.Currency, now)
	if err != nil {
		return nil, err
	}
	if p.Budget > p.Budget+m.Amount {
		return nil, apperror.Validation("бюджет проекта вне допустимого диапазона")
	}
	p.Milestones = append(p.Milestones, m)
	p.Budget += m.Amount
	p.UpdatedAt = now
	p.record("milestone_added", p.ClientID.String(), now, map[string]any{
		"milestoneId": m.ID.String(),
		"amount":      m.Amount,
	})
	return m, nil
}

// Duplicate создаёт новый черновик по образцу проекта, не изменяя исходный.
func (p *Project) Duplicate(now time.Time) *Project {
	cp := &Project{
		ID:              uuid.New(),
		ClientID:        p.ClientID,
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category,
		Budget:          p.Budget,
		Currency:        p.Currency,
		Status:          valueobject.ProjectStatusDraft,
		Escrow:          Escrow{Status: valueobject.EscrowStatusNone},
		PaymentSchedule: p.PaymentSchedule,
		DuplicatedFrom:  &p.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.Deadline != nil && p.Deadline.After(now) {
		cp.Deadline = p.Deadline
	}
	for i, m := range p.Milestones {
		tpl := &Milestone{
			ID:                 uuid.New(),
			ProjectID:          cp.ID,
			Position:           i,
			Title:              m.Title,
			Description:        m.Description,
			AcceptanceCriteria: m.AcceptanceCriteria,
			Amount:             m.Amount,
			Currency:           m.Currency,
			Status:             valueobject.MilestoneStatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if m.Deadline != nil && m.Deadline.After(now) {
			tpl.Deadline = m.Deadline
		}
		cp.Milestones = append(cp.Milestones, tpl)
	}
	cp.record("project_duplicated", p.ClientID.String(), now, map[string]any{"sourceProjectId": p.ID.String()})
	return cp
}

// TakeClaim занимает проект под денежную операцию key.
// Чужая метка старше timeout считается брошенной и перехватывается.
func (p *Project) TakeClaim(key string, now time.Time, timeout time.Duration) error {
	c, err := acquireClaim(p.Claim, key, now, timeout)
	if err != nil {
		return err
	}
	p.Claim = c
	p.UpdatedAt = now
	return nil
}

// BusyWith возвращает ключ чужой действующей метки. Пустой owner означает, что вызывающий метки не держит.
func (p *Project) BusyWith(owner string, now time.Time, timeout time.Duration) (string, bool) {
	if !p.Claim.Live(now, timeout) || p.Claim.Key == owner {
		return "", false
	}
	return p.Claim.Key, true
}

func (p *Project) HoldsClaim(key string) bool {
	return p.Claim != nil && p.Claim.Key == key
}

func (p *Project) ReleaseClaim(key string) {
	if p.HoldsClaim(key) {
		p.Claim = nil
	}
}

// ApplyRelease фиксирует выплату фрилансеру из эскроу по этапу.
func (p *Project) ApplyRelease(m *Milestone, amount int64, now time.Time) error {
	if amount <= 0 || amount > m.Unsettled() || amount > p.Escrow.Remaining {
		return apperror.Newf(apperror.ErrCodeStateConflict,
			"выплата %d превышает остаток по этапу %d или эскроу %d", amount, m.Unsettled(), p.Escrow.Remaining)
	}
	m.Released += amount
	m.UpdatedAt = now
	p.Escrow.TotalReleased += amount
	p.Escrow.Remaining -= amount
	p.refreshEscrowStatus()
	p.UpdatedAt = now
	return nil
}

// ApplyRefund фиксирует возврат клиенту: средства покидают эскроу.
func (p *Project) ApplyRefund(m *Milestone, amount int64, now time.Time) error {
	if amount <= 0 || amount > m.Unsettled() || amount > p.Escrow.Remaining {
		return apperror.Newf(apperror.ErrCodeStateConflict,
			"возврат %d превышает остаток по этапу %d или эскроу %d", amount, m.Unsettled(), p.Escrow.Remaining)
	}
	m.Refunded += amount
	m.UpdatedAt = now
	p.Escrow.TotalHeld -= amount
	p.Escrow.TotalRefunded += amount
	p.Escrow.Remaining -= amount
	p.refreshEscrowStatus()
	p.UpdatedAt = now
	return nil
}

func (p *Project) refreshEscrowStatus() {
	switch {
	case p.Escrow.Remaining > 0 && p.Escrow.TotalReleased > 0:
		p.Escrow.Status = valueobject.EscrowStatusPartiallyReleased
	case p.Escrow.Remaining > 0:
		p.Escrow.Status = valueobject.EscrowStatusHeld
	case p.Escrow.TotalReleased > 0:
		p.Escrow.Status = valueobject.EscrowStatusReleased
	default:
		p.Escrow.Status = valueobject.EscrowStatusRefunded
	}
}

// CompleteMilestoneRelease одобряет этап после выплаты.
func (p *Project) CompleteMilestoneRelease(m *Milestone, auto bool, performedBy string, amount int64, now time.Time) error {
	if !p.Status.AcceptsMilestoneWork() {
		return apperror.Newf(apperror.ErrCodeStateConflict, "проект в статусе %s не принимает одобрение этапов", p.Status)
	}
	if err := p.ApplyRelease(m, amount, now); err != nil {
		return err
	}
	if err := m.approve(auto, now); err != nil {
		return err
	}
	p.record("milestone_approved", performedBy, now, map[string]any{
		"milestoneId":  m.ID.String(),
		"amount":       amount,
		"autoApproved": auto,
	})
	p.AdvanceIfComplete(now)
	return nil
}

// OpenDispute переводит этап и проект в спор.
func (p *Project) OpenDispute(m *Milestone, raisedBy string, now time.Time) error {
	if !p.Status.AcceptsMilestoneWork() {
		return apperror.Newf(apperror.ErrCodeStateConflict, "проект в статусе %s нельзя оспорить", p.Status)
	}
	if err := m.MarkDisputed(now); err != nil {
		return err
	}
	if p.Status == valueobject.ProjectStatusActive {
		if err := p.transition(valueobject.ProjectStatusDisputed, now); err != nil {
			return err
		}
	}
	p.record("milestone_disputed", raisedBy, now, map[string]any{"milestoneId": m.ID.String()})
	return nil
}

// WithdrawDispute откатывает OpenDispute, если спор так и не был создан.
func (p *Project) WithdrawDispute(m *Milestone, previous valueobject.MilestoneStatus, otherOpen bool, now time.Time) {
	if m.Status == valueobject.MilestoneStatusDisputed {
		m.Status = previous
		m.UpdatedAt = now
	}
	if !otherOpen && p.Status == valueobject.ProjectStatusDisputed {
		p.Status = valueobject.ProjectStatusActive
		p.UpdatedAt = now
	}
	p.record("milestone_dispute_withdrawn", valueobject.SystemPerformer, now, map[string]any{"milestoneId": m.ID.String()})
}

// ReopenDispute возвращает этап и проект в спор после одобренной апелляции.
func (p *Project) ReopenDispute(m *Milestone, now time.Time) error {
	if m.Status.CanTransitionTo(valueobject.MilestoneStatusDisputed) && !m.IsSettled() {
		if err := m.transition(valueobject.MilestoneStatusDisputed, now); err != nil {
			return err
		}
	}
	if p.Status == valueobject.ProjectStatusActive {
		if err := p.transition(valueobject.ProjectStatusDisputed, now); err != nil {
			return err
		}
	}
	p.record("dispute_reopened", valueobject.SystemPerformer, now, map[string]any{"milestoneId": m.ID.String()})
	return nil
}

// FinishDispute фиксирует исход спора по этапу после исполнения всех выплат.
func (p *Project) FinishDispute(m *Milestone, decision valueobject.Decision, decidedBy string, otherOpen bool, now time.Time) error {
	if err := m.settleOutcome(decision, now); err != nil {
		return err
	}
	if !otherOpen && p.Status == valueobject.ProjectStatusDisputed {
		if err := p.transition(valueobject.ProjectStatusActive, now); err != nil {
			return err
		}
	}
	p.record("dispute_resolved", decidedBy, now, map[string]any{
		"milestoneId": m.ID.String(),
		"decision":    string(decision),
	})
	p.AdvanceIfComplete(now)
	return nil
}

// AdvanceIfComplete завершает активный проект, когда все этапы закрыты.
func (p *Project) AdvanceIfComplete(now time.Time) bool {
	if p.Status != valueobject.ProjectStatusActive {
		return false
	}
	for _, m := range p.Milestones {
		if !m.IsClosed() {
			return false
		}
	}
	if err := p.transition(valueobject.ProjectStatusCompleted, now); err != nil {
		return false
	}
	p.record("project_completed", valueobject.SystemPerformer, now, nil)
	return true
}

// CheckEscrowInvariant проверяет сохранение денег в эскроу.
func (p *Project) CheckEscrowInvariant() error {
	e := p.Escrow
	if e.TotalHeld != e.TotalReleased+e.Remaining || e.Remaining < 0 {
		return apperror.Newf(apperror.ErrCodeInternal,
			"нарушен баланс эскроу: held=%d released=%d remaining=%d", e.TotalHeld, e.TotalReleased, e.Remaining)
	}
	return nil
}

// MilestonesAwaitingReview возвращает сданные этапы, ожидающие решения клиента.
func (p *Project) MilestonesAwaitingReview() []*Milestone {
	var out []*Milestone
	for _, m := range p.Milestones {
		if m.Status == valueobject.MilestoneStatusSubmitted {
			out = append(out, m)
		}
	}
	return out
}
