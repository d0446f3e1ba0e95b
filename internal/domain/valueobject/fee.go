package valueobject

import (
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

var (
	DefaultClientFeePercent     = decimal.RequireFromString("1.9")
	DefaultFreelancerFeePercent = decimal.RequireFromString("3.6")
)

const DefaultAutoApproveDays = 7

// Границы тарифов спорного сбора, в единицах валюты этапа.
var (
	disputeFeeLowerTier  = decimal.NewFromInt(500)
	disputeFeeMiddleTier = decimal.NewFromInt(2000)

	disputeFeeLow    = decimal.NewFromInt(25)
	disputeFeeMiddle = decimal.NewFromInt(35)
	disputeFeeHigh   = decimal.NewFromInt(50)
)

// DisputeFeePerParty возвращает фиксированный сбор с каждой стороны в минимальных единицах.
func DisputeFeePerParty(milestoneAmount int64, c Currency) (int64, error) {
	amount := ToDecimal(milestoneAmount, c)
	fee := disputeFeeHigh
	switch {
	case amount.LessThan(disputeFeeLowerTier):
		fee = disputeFeeLow
	case amount.LessThan(disputeFeeMiddleTier):
		fee = disputeFeeMiddle
	}
	return ToMinorUnits(fee, c)
}

var maxFeePercent = decimal.NewFromInt(50)

// ValidateFeePercent отклоняет проценты вне диапазона [0, 50): выплата всегда больше нуля.
func ValidateFeePercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThanOrEqual(maxFeePercent) {
		return apperror.Validation("процент комиссии должен быть в диапазоне от 0 до 50")
	}
	return nil
}
