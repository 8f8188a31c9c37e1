package parser

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/sales-manager/pkg/money"
)

var errNotFinite = errors.New("amount is not a finite number")

// ParseCurrency converts a sheet cell into a BRL amount.
//
// Numeric cells are taken as the amount. Text cells may carry an "R$" prefix
// and use pt-BR separators, so "R$ 1.234,56" is 1234.56. A dot is always a
// thousands separator: "R$ 45.30" reads as 4530.00.
func ParseCurrency(v any) (*money.Money, error) {
	return parseCurrency(v, money.BRL, money.PtBR)
}

func parseCurrency(v any, currency string, loc money.Locale) (*money.Money, error) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, errNotFinite
		}
		return money.NewFromFloat(x, currency), nil
	case float32:
		return parseCurrency(float64(x), currency, loc)
	case int64:
		return money.NewFromDecimal(decimal.NewFromInt(x), currency), nil
	case int:
		return money.NewFromDecimal(decimal.NewFromInt(int64(x)), currency), nil
	case string:
		return money.ParseLocalized(x, loc, currency)
	default:
		return nil, fmt.Errorf("%w: unsupported cell %v", money.ErrInvalidAmount, v)
	}
}
