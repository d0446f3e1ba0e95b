package entity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

const (
	MinDisputeReasonLength = 10
	MaxDisputeReasonLength = 1000
	MaxMessageLength       = 5000
)

type Dispute struct {
	ID                   uuid.UUID
	ProjectID            uuid.UUID
	MilestoneID          uuid.UUID
	RaisedBy             uuid.UUID
	Reason               string
	Evidence             []Evidence
	Status               valueobject.DisputeStatus
	Fee                  DisputeFee
	AIAnalysis           *AIAnalysis
	MediatorID           *uuid.UUID
	MediatorAssignedAt   *time.Time
	MediationStartedAt   *time.Time
	ArbitratorID         *uuid.UUID
	ArbitratorAssignedAt *time.Time
	Messages             []DisputeMessage
	Resolution           *Resolution
	Timeline             []TimelineEntry
	Appeal               *Appeal
	Claim                *OperationClaim
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Evidence struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	Type        string    `json:"type"`
	Size        int64     `json:"size"`
	UploadedBy  uuid.UUID `json:"uploadedBy"`
	Verified    bool      `json:"verified"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// DisputeFee - фиксированный сбор с каждой стороны в минимальных единицах валюты этапа.
type DisputeFee struct {
	ClientFee        int64                        `json:"clientFee"`
	FreelancerFee    int64                        `json:"freelancerFee"`
	TotalAmount      int64                        `json:"totalAmount"`
	Currency         valueobject.Currency         `json:"currency"`
	ClientPaid       bool                         `json:"clientPaid"`
	FreelancerPaid   bool                         `json:"freelancerPaid"`
	ClientPaidAt     *time.Time                   `json:"clientPaidAt,omitempty"`
	FreelancerPaidAt *time.Time                   `json:"freelancerPaidAt,omitempty"`
	Status           valueobject.DisputeFeeStatus `json:"status"`
}

type AIAnalysis struct {
	FreelancerConfidence  float64   `json:"freelancerConfidence"`
	ClientConfidence      float64   `json:"clientConfidence"`
	RecommendedResolution string    `json:"recommendedResolution"`
	KeyIssues             []string  `json:"keyIssues"`
	Reasoning             string    `json:"reasoning"`
	AnalyzedAt            time.Time `json:"analyzedAt"`
}

// IsHighConfidence - уверенность хотя бы одной стороны выше порога.
func (a *AIAnalysis) IsHighConfidence(threshold float64) bool {
	return a != nil && (a.FreelancerConfidence > threshold || a.ClientConfidence > threshold)
}

type DisputeMessage struct {
	ID         uuid.UUID        `json:"id"`
	SenderID   uuid.UUID        `json:"senderId"`
	SenderRole valueobject.Role `json:"senderRole"`
	Content    string           `json:"content"`
	CreatedAt  time.Time        `json:"createdAt"`
}

type Resolution struct {
	Decision           valueobject.Decision `json:"decision"`
	AmountToFreelancer int64                `json:"amountToFreelancer"`
	AmountToClient     int64                `json:"amountToClient"`
	DecisionReason     string               `json:"decisionReason"`
	DecidedBy          uuid.UUID            `json:"decidedBy"`
	DecidedAt          time.Time            `json:"decidedAt"`
}

type TimelineEntry struct {
	Status    valueobject.DisputeStatus `json:"status"`
	Timestamp time.Time                 `json:"timestamp"`
	Note      string                    `json:"note,omitempty"`
	Action    string                    `json:"action"`
	Actor     string                    `json:"actor,omitempty"`
}

type Appeal struct {
	ID          uuid.UUID                `json:"id"`
	AppellantID uuid.UUID                `json:"appellantId"`
	Reason      string                   `json:"reason"`
	Evidence    []Evidence               `json:"evidence,omitempty"`
	Status      valueobject.AppealStatus `json:"status"`
	SubmittedAt time.Time                `json:"submittedAt"`
	ReviewedBy  *uuid.UUID               `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time               `json:"reviewedAt,omitempty"`
	Notes       string                   `json:"notes,omitempty"`
	// PreviousResolution - решение, отменённое одобренной апелляцией.
	PreviousResolution *Resolution `json:"previousResolution,omitempty"`
}

type NewDisputeParams struct {
	ProjectID   uuid.UUID
	MilestoneID uuid.UUID
	RaisedBy    uuid.UUID
	Reason      string
	Evidence    []Evidence
	// FeePerParty уже посчитан по тарифу суммы этапа.
	FeePerParty int64
	Currency    valueobject.Currency
}

// ValidateDisputeReason проверяет длину причины в символах.
func ValidateDisputeReason(reason string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(reason))
	if n < MinDisputeReasonLength || n > MaxDisputeReasonLength {
		return apperror.Newf(apperror.ErrCodeValidation,
			"причина спора должна содержать от %d до %d символов", MinDisputeReasonLength, MaxDisputeReasonLength)
	}
	return nil
}

func NewDispute(p NewDisputeParams, now time.Time) (*Dispute, error) {
	if err := ValidateDisputeReason(p.Reason); err != nil {
		return nil, err
	}
	if p.FeePerParty <= 0 {
		return nil, apperror.Validation("сбор за спор должен быть больше нуля")
	}
	d := &Dispute{
		ID:          uuid.New(),
		ProjectID:   p.ProjectID,
		MilestoneID: p.MilestoneID,
		RaisedBy:    p.RaisedBy,
		Reason:      strings.TrimSpace(p.Reason),
		Evidence:    p.Evidence,
		Status:      valueobject.DisputeStatusPendingFee,
		Fee: DisputeFee{
			ClientFee:     p.FeePerParty,
			FreelancerFee: p.FeePerParty,
			TotalAmount:   2 * p.FeePerParty,
			Currency:      p.Currency,
			Status:        valueobject.DisputeFeeStatusPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.log("dispute_created", p.RaisedBy.String(), "", now)
	return d, nil
}

func (d *Dispute) log(action, actor, note string, now time.Time) {
	d.Timeline = append(d.Timeline, TimelineEntry{
		Status:    d.Status,
		Timestamp: now,
		Note:      note,
		Action:    action,
		Actor:     actor,
	})
	d.UpdatedAt = now
}

func (d *Dispute) transition(next valueobject.DisputeStatus, now time.Time) error {
	if !d.Status.CanTransitionTo(next) {
		return apperror.Newf(apperror.ErrCodeStateConflict,
			"спор в статусе %s не может перейти в %s", d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = now
	return nil
}

func (d *Dispute) requireStatus(allowed ...valueobject.DisputeStatus) error {
	for _, s := range allowed {
		if d.Status == s {
			return nil
		}
	}
	return apperror.Newf(apperror.ErrCodeStateConflict, "операция недоступна для спора в статусе %s", d.Status)
}

// FeeFor возвращает сумму сбора стороны и признак оплаты.
func (d *Dispute) FeeFor(role valueobject.Role) (amount int64, paid bool, err error) {
	switch role {
	case valueobject.RoleClient:
		return d.Fee.ClientFee, d.Fee.ClientPaid, nil
	case valueobject.RoleFreelancer:
		return d.Fee.FreelancerFee, d.Fee.FreelancerPaid, nil
	}
	return 0, false, apperror.Forbidden("сбор за спор оплачивают только стороны проекта")
}

// MarkFeePaid отмечает оплату стороны. Повторная оплата ничего не меняет.
// Возвращает true, когда обе стороны оплатили и спор перешёл к рассмотрению.
func (d *Dispute) MarkFeePaid(role valueobject.Role, payerID uuid.UUID, now time.Time) (bool, error) {
	if err := d.requireStatus(valueobject.DisputeStatusPendingFee); err != nil {
		return false, err
	}
	switch role {
	case valueobject.RoleClient:
		if d.Fee.ClientPaid {
			return false, nil
		}
		d.Fee.ClientPaid = true
		d.Fee.ClientPaidAt = &now
	case valueobject.RoleFreelancer:
		if d.Fee.FreelancerPaid {
			return false, nil
		}
		d.Fee.FreelancerPaid = true
		d.Fee.FreelancerPaidAt = &now
	default:
		return false, apperror.Forbidden("сбор за спор оплачивают только стороны проекта")
	}
	d.log("fee_paid", payerID.String(), string(role), now)

	if !d.Fee.ClientPaid || !d.Fee.FreelancerPaid {
		d.Fee.Status = valueobject.DisputeFeeStatusPartialPaid
		return false, nil
	}
	d.Fee.Status = valueobject.DisputeFeeStatusPaid
	if err := d.transition(valueobject.DisputeStatusPendingReview, now); err != nil {
		return false, err
	}
	d.log("review_started", valueobject.SystemPerformer, "", now)
	return true, nil
}

// ApplyReview завершает автоматическое рассмотрение. analysis может быть nil при сбое оракула.
func (d *Dispute) ApplyReview(analysis *AIAnalysis, threshold float64, now time.Time) error {
	if err := d.requireStatus(valueobject.DisputeStatusPendingReview); err != nil {
		return err
	}
	d.AIAnalysis = analysis
	if analysis.IsHighConfidence(threshold) {
		if err := d.transition(valueobject.DisputeStatusSelfResolution, now); err != nil {
			return err
		}
		d.log("self_resolution_suggested", valueobject.SystemPerformer, analysis.RecommendedResolution, now)
		return nil
	}
	note := "уверенность анализа ниже порога"
	if analysis == nil {
		note = "анализ недоступен"
	}
	return d.enterMediation(valueobject.SystemPerformer, note, now)
}

func (d *Dispute) enterMediation(actor, note string, now time.Time) error {
	if err := d.transition(valueobject.DisputeStatusInMediation, now); err != nil {
		return err
	}
	d.MediationStartedAt = &now
	d.log("mediation_started", actor, note, now)
	return nil
}

// RequestMediation - сторона отказывается от самостоятельного урегулирования.
func (d *Dispute) RequestMediation(actorID uuid.UUID, note string, now time.Time) error {
	if err := d.requireStatus(valueobject.DisputeStatusSelfResolution); err != nil {
		return err
	}
	return d.enterMediation(actorID.String(), note, now)
}

func (d *Dispute) AssignMediator(mediatorID uuid.UUID, now time.Time) error {
	if err := d.requireStatus(valueobject.DisputeStatusInMediation); err != nil {
		return err
	}
	if d.MediatorID != nil {
		if *d.MediatorID == mediatorID {
			return nil
		}
		return apperror.StateConflict("медиатор уже назначен")
	}
	d.MediatorID = &mediatorID
	d.MediatorAssignedAt = &now
	d.log("mediator_assigned", mediatorID.String(), "", now)
	return nil
}

func (d *Dispute) PostMessage(sender valueobject.Actor, content string, now time.Time) (*DisputeMessage, error) {
	if err := d.requireStatus(
		valueobject.DisputeStatusSelfResolution,
		valueobject.DisputeStatusInMediation,
		valueobject.DisputeStatusInArbitration,
	); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.Validation("сообщение не может быть пустым")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "сообщение не должно превышать %d символов", MaxMessageLength)
	}
	msg := DisputeMessage{
		ID:         uuid.New(),
		SenderID:   sender.ID,
		SenderRole: sender.Role,
		Content:    content,
		CreatedAt:  now,
	}
	d.Messages = append(d.Messages, msg)
	d.UpdatedAt = now
	return &msg, nil
}

// EscalationCheck - результат проверки условий эскалации.
type EscalationCheck struct {
	ShouldEscalate bool      `json:"shouldEscalate"`
	Reasons        []string  `json:"reasons"`
	MessageCount   int       `json:"messageCount"`
	MediationSince time.Time `json:"mediationSince"`
}

// EvaluateEscalation проверяет, можно ли передать спор в арбитраж:
// медиация длится дольше after с момента назначения медиатора
// либо число сообщений превысило threshold. Без медиатора срок не идёт.
func (d *Dispute) EvaluateEscalation(after time.Duration, threshold int, now time.Time) EscalationCheck {
	check := EscalationCheck{MessageCount: len(d.Messages)}
	if d.Status != valueobject.DisputeStatusInMediation {
		return check
	}
	if since := d.MediatorAssignedAt; since != nil {
		check.MediationSince = *since
		if now.Sub(*since) > after {
			check.Reasons = append(check.Reasons, fmt.Sprintf("медиация длится дольше %s", after))
		}
	}
	if len(d.Messages) > threshold {
		check.Reasons = append(check.Reasons, fmt.Sprintf("сообщений больше %d", threshold))
	}
	check.ShouldEscalate = len(check.Reasons) > 0
	return check
}

func (d *Dispute) Escalate(actor, note string, now time.Time) error {
	if err := d.transition(valueobject.DisputeStatusInArbitration, now); err != nil {
		return err
	}
	d.log("escalated_to_arbitration", actor, note, now)
	return nil
}

func (d *Dispute) AssignArbitrator(arbitratorID uuid.UUID, assignedBy string, now time.Time) error {
	if err := d.requireStatus(valueobject.DisputeStatusInArbitration); err != nil {
		return err
	}
	d.ArbitratorID = &arbitratorID
	d.ArbitratorAssignedAt = &now
	d.log("arbitrator_assigned", assignedBy, arbitratorID.String(), now)
	return nil
}

// CheckResolvable проверяет, что спор ждёт решения.
func (d *Dispute) CheckResolvable() error {
	return d.requireStatus(valueobject.DisputeStatusInArbitration, valueobject.DisputeStatusSelfResolution)
}

func (d *Dispute) Resolve(r Resolution, now time.Time) error {
	if err := d.CheckResolvable(); err != nil {
		return err
	}
	if err := d.transition(valueobject.DisputeStatusResolved, now); err != nil {
		return err
	}
	d.Resolution = &r
	d.log("resolved", r.DecidedBy.String(), string(r.Decision), now)
	return nil
}

func (d *Dispute) SubmitAppeal(appellantID uuid.UUID, reason string, evidence []Evidence, window time.Duration, now time.Time) (*Appeal, error) {
	if err := d.requireStatus(valueobject.DisputeStatusResolved); err != nil {
		return nil, err
	}
	if d.Appeal != nil {
		return nil, apperror.StateConflict("апелляция по спору уже подана")
	}
	if d.Resolution == nil {
		return nil, apperror.StateConflict("у спора нет решения")
	}
	if window > 0 && now.Sub(d.Resolution.DecidedAt) > window {
		return nil, apperror.Validation("срок подачи апелляции истёк")
	}
	if err := ValidateDisputeReason(reason); err != nil {
		return nil, err
	}
	d.Appeal = &Appeal{
		ID:          uuid.New(),
		AppellantID: appellantID,
		Reason:      strings.TrimSpace(reason),
		Evidence:    evidence,
		Status:      valueobject.AppealStatusPending,
		SubmittedAt: now,
	}
	d.log("appeal_submitted", appellantID.String(), "", now)
	return d.Appeal, nil
}

// ReviewAppeal фиксирует решение по апелляции. Одобрение отменяет прежнее решение и возвращает спор в арбитраж.
func (d *Dispute) ReviewAppeal(reviewerID uuid.UUID, decision valueobject.AppealStatus, notes string, now time.Time) error {
	if d.Appeal == nil {
		return apperror.StateConflict("апелляция не подана")
	}
	if d.Appeal.Status != valueobject.AppealStatusPending {
		return apperror.StateConflict("апелляция уже рассмотрена")
	}
	if err := d.requireStatus(valueobject.DisputeStatusResolved); err != nil {
		return err
	}
	if decision == valueobject.AppealStatusApproved {
		if err := d.transition(valueobject.DisputeStatusInArbitration, now); err != nil {
			return err
		}
		d.Appeal.PreviousResolution = d.Resolution
		d.Resolution = nil
	}
	d.Appeal.Status = decision
	d.Appeal.ReviewedBy = &reviewerID
	d.Appeal.ReviewedAt = &now
	d.Appeal.Notes = notes
	d.log("appeal_reviewed", reviewerID.String(), string(decision), now)
	return nil
}

func (d *Dispute) TakeClaim(key string, now time.Time, timeout time.Duration) error {
	c, err := acquireClaim(d.Claim, key, now, timeout)
	if err != nil {
		return err
	}
	d.Claim = c
	d.UpdatedAt = now
	return nil
}

func (d *Dispute) ReleaseClaim(key string) {
	if d.HoldsClaim(key) {
		d.Claim = nil
	}
}

func (d *Dispute) HoldsClaim(key string) bool {
	return d.Claim != nil && d.Claim.Key == key
}
