package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// ParseDeadline разбирает необязательную дату в RFC3339.
func ParseDeadline(deadlineStr *string) (*time.Time, error) {
	if deadlineStr == nil || *deadlineStr == "" {
		return nil, nil
	}

	deadline, err := time.Parse(time.RFC3339, *deadlineStr)
	if err != nil {
		return nil, err
	}
	deadline = deadline.UTC()
	return &deadline, nil
}

func ParseUUIDs(uuidStrs []string) ([]uuid.UUID, error) {
	uuids := make([]uuid.UUID, 0, len(uuidStrs))
	for _, str := range uuidStrs {
		id, err := uuid.Parse(str)
		if err != nil {
			return nil, err
		}
		uuids = append(uuids, id)
	}
	return uuids, nil
}

// amount переводит минимальные единицы в десятичную сумму для ответа.
func amount(minor int64, c valueobject.Currency) decimal.Decimal {
	return valueobject.ToDecimal(minor, c)
}
