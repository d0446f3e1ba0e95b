package valueobject

import "github.com/ignatzorin/escrow-backend/internal/pkg/apperror"

// Decision - итог арбитража по спорному этапу.
type Decision string

const (
	DecisionFullPayment      Decision = "full_payment_to_freelancer"
	DecisionPartialPayment   Decision = "partial_payment"
	DecisionFullRefund       Decision = "full_refund_to_client"
	DecisionRevisionRequired Decision = "revision_required"
)

func (d Decision) IsValid() bool {
	switch d {
	case DecisionFullPayment, DecisionPartialPayment, DecisionFullRefund, DecisionRevisionRequired:
		return true
	}
	return false
}

// PaysFreelancer - решение переводит фрилансеру хотя бы часть суммы этапа.
func (d Decision) PaysFreelancer() bool {
	switch d {
	case DecisionFullPayment, DecisionPartialPayment:
		return true
	case DecisionFullRefund, DecisionRevisionRequired:
		return false
	}
	return false
}

// RequiresExactSplit - суммы сторон обязаны точно совпасть с суммой этапа.
func (d Decision) RequiresExactSplit() bool {
	return d != DecisionRevisionRequired
}

// MilestoneOutcome - статус этапа после исполнения решения.
func (d Decision) MilestoneOutcome() MilestoneStatus {
	switch d {
	case DecisionFullPayment, DecisionPartialPayment:
		return MilestoneStatusApproved
	case DecisionFullRefund, DecisionRevisionRequired:
		return MilestoneStatusRevisionRequested
	}
	return MilestoneStatusDisputed
}

// CheckSplit проверяет согласованность решения с распределением сумм.
func (d Decision) CheckSplit(toFreelancer, toClient, milestoneAmount int64) error {
	if toFreelancer < 0 || toClient < 0 {
		return apperror.Validation("суммы распределения не могут быть отрицательными")
	}
	switch d {
	case DecisionRevisionRequired:
		// средства остаются в эскроу до повторной сдачи этапа
		if toFreelancer != 0 || toClient != 0 {
			return apperror.Validation("при доработке средства не распределяются")
		}
		return nil
	case DecisionFullPayment:
		if toClient != 0 {
			return apperror.Validation("при полной оплате возврат клиенту должен быть нулевым")
		}
	case DecisionFullRefund:
		if toFreelancer != 0 {
			return apperror.Validation("при полном возврате выплата фрилансеру должна быть нулевой")
		}
	case DecisionPartialPayment:
		if toFreelancer == 0 || toClient == 0 {
			return apperror.Validation("частичная оплата требует ненулевых сумм обеим сторонам")
		}
	}
	if toFreelancer+toClient != milestoneAmount {
		return apperror.Newf(apperror.ErrCodeValidation,
			"сумма распределения %d не равна сумме этапа %d", toFreelancer+toClient, milestoneAmount)
	}
	return nil
}

func NewDecision(decision string) (Decision, error) {
	d := Decision(decision)
	if !d.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректное решение по спору")
	}
	return d, nil
}
