package ledger

import (
	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// ReleaseBreakdown - расчёт выплаты фрилансеру по этапу.
type ReleaseBreakdown struct {
	Gross         int64
	Net           int64
	FreelancerFee int64
	ClientFee     int64
	Fees          entity.Fees
}

// Release удерживает комиссию фрилансера из суммы этапа. Net + FreelancerFee == Gross.
// Комиссия клиента уже оплачена при депозите и указывается для аудита.
func Release(gross int64, s entity.PaymentSchedule) ReleaseBreakdown {
	freelancerFee := valueobject.SplitFee(gross, s.FreelancerFeePercent)
	clientFee := valueobject.SplitFee(gross, s.ClientFeePercent)
	return ReleaseBreakdown{
		Gross:         gross,
		Net:           gross - freelancerFee,
		FreelancerFee: freelancerFee,
		ClientFee:     clientFee,
		Fees:          entity.NewFees(clientFee, freelancerFee),
	}
}

// DepositFees - комиссия клиента сверх бюджета проекта.
func DepositFees(budget int64, s entity.PaymentSchedule) entity.Fees {
	return entity.NewFees(valueobject.SplitFee(budget, s.ClientFeePercent), 0)
}
