package valueobject

import "github.com/ignatzorin/escrow-backend/internal/pkg/apperror"

type ProjectStatus string

const (
	ProjectStatusDraft             ProjectStatus = "DRAFT"
	ProjectStatusPendingAcceptance ProjectStatus = "PENDING_ACCEPTANCE"
	ProjectStatusAwaitingDeposit   ProjectStatus = "AWAITING_DEPOSIT"
	ProjectStatusActive            ProjectStatus = "ACTIVE"
	ProjectStatusOnHold            ProjectStatus = "ON_HOLD"
	ProjectStatusDisputed          ProjectStatus = "DISPUTED"
	ProjectStatusCompleted         ProjectStatus = "COMPLETED"
	ProjectStatusCancelled         ProjectStatus = "CANCELLED"
	ProjectStatusArchived          ProjectStatus = "ARCHIVED"
)

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusDraft:             {ProjectStatusPendingAcceptance, ProjectStatusCancelled, ProjectStatusArchived},
	ProjectStatusPendingAcceptance: {ProjectStatusAwaitingDeposit, ProjectStatusDraft, ProjectStatusCancelled},
	ProjectStatusAwaitingDeposit:   {ProjectStatusActive, ProjectStatusCancelled},
	ProjectStatusActive:            {ProjectStatusDisputed, ProjectStatusCompleted, ProjectStatusCancelled, ProjectStatusOnHold},
	ProjectStatusOnHold:            {ProjectStatusActive, ProjectStatusCancelled},
	ProjectStatusDisputed:          {ProjectStatusActive, ProjectStatusCompleted},
	ProjectStatusCompleted:         {ProjectStatusArchived},
	ProjectStatusCancelled:         {ProjectStatusArchived},
	ProjectStatusArchived:          {},
}

func (s ProjectStatus) IsValid() bool {
	_, ok := projectTransitions[s]
	return ok
}

func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	return contains(projectTransitions[s], next)
}

// IsTerminal - проект больше не принимает денежных операций.
func (s ProjectStatus) IsTerminal() bool {
	switch s {
	case ProjectStatusCompleted, ProjectStatusCancelled, ProjectStatusArchived:
		return true
	}
	return false
}

// AcceptsMilestoneWork - сдача, доработка и одобрение этапов разрешены.
// Спор по одному этапу не останавливает работу по остальным.
func (s ProjectStatus) AcceptsMilestoneWork() bool {
	return s == ProjectStatusActive || s == ProjectStatusDisputed
}

func NewProjectStatus(status string) (ProjectStatus, error) {
	s := ProjectStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус проекта")
	}
	return s, nil
}

type MilestoneStatus string

const (
	MilestoneStatusPending           MilestoneStatus = "PENDING"
	MilestoneStatusInProgress        MilestoneStatus = "IN_PROGRESS"
	MilestoneStatusSubmitted         MilestoneStatus = "SUBMITTED"
	MilestoneStatusRevisionRequested MilestoneStatus = "REVISION_REQUESTED"
	MilestoneStatusApproved          MilestoneStatus = "APPROVED"
	MilestoneStatusDisputed          MilestoneStatus = "DISPUTED"
)

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusPending:           {MilestoneStatusInProgress},
	MilestoneStatusInProgress:        {MilestoneStatusSubmitted, MilestoneStatusDisputed},
	MilestoneStatusSubmitted:         {MilestoneStatusApproved, MilestoneStatusRevisionRequested, MilestoneStatusDisputed},
	MilestoneStatusRevisionRequested: {MilestoneStatusSubmitted, MilestoneStatusDisputed},
	MilestoneStatusDisputed:          {MilestoneStatusApproved, MilestoneStatusRevisionRequested},
	MilestoneStatusApproved:          {},
}

func (s MilestoneStatus) IsValid() bool {
	_, ok := milestoneTransitions[s]
	return ok
}

func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	return contains(milestoneTransitions[s], next)
}

// IsActive - над этапом идёт работа, отмена проекта запрещена.
func (s MilestoneStatus) IsActive() bool {
	switch s {
	case MilestoneStatusInProgress, MilestoneStatusSubmitted, MilestoneStatusRevisionRequested:
		return true
	}
	return false
}

// IsDisputable - из этого статуса любая сторона может открыть спор.
func (s MilestoneStatus) IsDisputable() bool {
	return s.IsActive()
}

func NewMilestoneStatus(status string) (MilestoneStatus, error) {
	s := MilestoneStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус этапа")
	}
	return s, nil
}

type DisputeStatus string

const (
	DisputeStatusPendingFee     DisputeStatus = "PENDING_FEE"
	DisputeStatusPendingReview  DisputeStatus = "PENDING_REVIEW"
	DisputeStatusSelfResolution DisputeStatus = "SELF_RESOLUTION"
	DisputeStatusInMediation    DisputeStatus = "IN_MEDIATION"
	DisputeStatusInArbitration  DisputeStatus = "IN_ARBITRATION"
	DisputeStatusResolved       DisputeStatus = "RESOLVED"

	// legacyDisputeStatusEscalated встречается в старых записях, читается как IN_ARBITRATION.
	legacyDisputeStatusEscalated DisputeStatus = "ESCALATED"
)

var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusPendingFee:     {DisputeStatusPendingReview},
	DisputeStatusPendingReview:  {DisputeStatusSelfResolution, DisputeStatusInMediation},
	DisputeStatusSelfResolution: {DisputeStatusInMediation, DisputeStatusResolved},
	DisputeStatusInMediation:    {DisputeStatusInArbitration},
	DisputeStatusInArbitration:  {DisputeStatusResolved},
	DisputeStatusResolved:       {DisputeStatusInArbitration},
}

func (s DisputeStatus) IsValid() bool {
	_, ok := disputeTransitions[s]
	return ok
}

func (s DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	return contains(disputeTransitions[s], next)
}

func (s DisputeStatus) IsOpen() bool {
	return s != DisputeStatusResolved
}

func NewDisputeStatus(status string) (DisputeStatus, error) {
	s := DisputeStatus(status)
	if s == legacyDisputeStatusEscalated {
		return DisputeStatusInArbitration, nil
	}
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус спора")
	}
	return s, nil
}

type EscrowStatus string

const (
	EscrowStatusNone              EscrowStatus = "NONE"
	EscrowStatusHeld              EscrowStatus = "HELD"
	EscrowStatusPartiallyReleased EscrowStatus = "PARTIALLY_RELEASED"
	EscrowStatusReleased          EscrowStatus = "RELEASED"
	EscrowStatusRefunded          EscrowStatus = "REFUNDED"
)

type TransactionType string

const (
	TransactionTypeDeposit          TransactionType = "DEPOSIT"
	TransactionTypeMilestoneRelease TransactionType = "MILESTONE_RELEASE"
	TransactionTypeDisputePayment   TransactionType = "DISPUTE_PAYMENT"
	TransactionTypeDisputeRefund    TransactionType = "DISPUTE_REFUND"
	TransactionTypeDisputeFee       TransactionType = "DISPUTE_FEE"
	TransactionTypeWithdrawal       TransactionType = "WITHDRAWAL"
	TransactionTypeRefund           TransactionType = "REFUND"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeMilestoneRelease, TransactionTypeDisputePayment,
		TransactionTypeDisputeRefund, TransactionTypeDisputeFee, TransactionTypeWithdrawal, TransactionTypeRefund:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusPending && (next == TransactionStatusCompleted || next == TransactionStatusFailed)
}

type DisputeFeeStatus string

const (
	DisputeFeeStatusPending     DisputeFeeStatus = "PENDING"
	DisputeFeeStatusPartialPaid DisputeFeeStatus = "PARTIALLY_PAID"
	DisputeFeeStatusPaid        DisputeFeeStatus = "PAID"
)

type AppealStatus string

const (
	AppealStatusPending  AppealStatus = "PENDING"
	AppealStatusApproved AppealStatus = "APPROVED"
	AppealStatusRejected AppealStatus = "REJECTED"
)

func NewAppealReviewDecision(decision string) (AppealStatus, error) {
	s := AppealStatus(decision)
	if s != AppealStatusApproved && s != AppealStatusRejected {
		return "", apperror.New(apperror.ErrCodeValidation, "решение по апелляции должно быть APPROVED или REJECTED")
	}
	return s, nil
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
