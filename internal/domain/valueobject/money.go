package valueobject

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Currency - ISO код фиатной валюты или символ криптовалюты.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyCHF Currency = "CHF"
	CurrencyCNY Currency = "CNY"
	CurrencyINR Currency = "INR"
	CurrencyJPY Currency = "JPY"
	CurrencyBTC Currency = "BTC"
	CurrencyETH Currency = "ETH"
)

// Таблица знаков после запятой фиксирована и не настраивается.
var currencyDecimals = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyCAD: 2,
	CurrencyAUD: 2,
	CurrencyCHF: 2,
	CurrencyCNY: 2,
	CurrencyINR: 2,
	CurrencyJPY: 0,
	CurrencyBTC: 8,
	CurrencyETH: 18,
}

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	hundred       = decimal.NewFromInt(100)
)

// ParseCurrency нормализует код и отклоняет неподдерживаемые валюты.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", apperror.Newf(apperror.ErrCodeValidation, "валюта %q не поддерживается", code)
	}
	return c, nil
}

func (c Currency) IsValid() bool {
	_, ok := currencyDecimals[c]
	return ok
}

// Decimals возвращает количество знаков минимальной единицы.
func (c Currency) Decimals() int32 {
	return currencyDecimals[c]
}

func (c Currency) IsCrypto() bool {
	return c == CurrencyBTC || c == CurrencyETH
}

// ToMinorUnits переводит человекочитаемую сумму в целое число минимальных единиц.
// Дробная часть сверх точности валюты округляется до ближайшего, половина от нуля.
func ToMinorUnits(amount decimal.Decimal, c Currency) (int64, error) {
	if !c.IsValid() {
		return 0, apperror.Newf(apperror.ErrCodeValidation, "валюта %q не поддерживается", c)
	}
	minor := amount.Shift(c.Decimals()).Round(0)
	if minor.Abs().GreaterThan(maxMinorUnits) {
		return 0, apperror.Newf(apperror.ErrCodeValidation, "сумма %s %s вне допустимого диапазона", amount.String(), c)
	}
	return minor.IntPart(), nil
}

// ToDecimal переводит минимальные единицы обратно в десятичную сумму.
func ToDecimal(minor int64, c Currency) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-c.Decimals())
}

// SplitFee считает комиссию в минимальных единицах: round(amount * percent / 100).
func SplitFee(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).Round(0).IntPart()
}

// Money - сумма в минимальных единицах конкретной валюты.
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

func NewMoney(amount int64, c Currency) (Money, error) {
	if amount < 0 {
		return Money{}, apperror.Validation("сумма не может быть отрицательной")
	}
	if !c.IsValid() {
		return Money{}, apperror.Newf(apperror.ErrCodeValidation, "валюта %q не поддерживается", c)
	}
	return Money{Amount: amount, Currency: c}, nil
}

// MoneyFromDecimal собирает Money из десятичной суммы.
func MoneyFromDecimal(amount decimal.Decimal, c Currency) (Money, error) {
	if amount.IsNegative() {
		return Money{}, apperror.Validation("сумма не может быть отрицательной")
	}
	minor, err := ToMinorUnits(amount, c)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: minor, Currency: c}, nil
}

func (m Money) Decimal() decimal.Decimal {
	return ToDecimal(m.Amount, m.Currency)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.Decimal().StringFixed(m.Currency.Decimals()))
}
