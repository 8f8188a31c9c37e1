package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a localized amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// Locale describes how a numeric locale writes monetary amounts.
// Locales are plain values passed to the parser; nothing here touches
// process-wide state.
type Locale struct {
	Name     string
	Decimal  string
	Grouping string
	Symbols  []string
}

var (
	// PtBR is the Brazilian Portuguese locale: 1.234,56 and the R$ symbol.
	PtBR = Locale{Name: "pt_BR", Decimal: ",", Grouping: ".", Symbols: []string{"R$"}}

	// EnUS is the American English locale: 1,234.56 and the $ symbol.
	EnUS = Locale{Name: "en_US", Decimal: ".", Grouping: ",", Symbols: []string{"US$", "$"}}
)

// Delocalize strips currency symbols and grouping separators from s and
// rewrites its decimal separator to a dot.
//
// Grouping separators are removed wherever they appear, without checking their
// positions, so under PtBR "45.30" delocalizes to "4530".
func (l Locale) Delocalize(s string) string {
	s = strings.TrimSpace(s)
	for _, sym := range l.Symbols {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimPrefix(s, sym)
			break
		}
	}
	s = strings.TrimSpace(s)

	if l.Grouping != "" {
		s = strings.ReplaceAll(s, l.Grouping, "")
	}
	if l.Decimal != "" && l.Decimal != "." {
		s = strings.ReplaceAll(s, l.Decimal, ".")
	}
	return s
}

// ParseDecimal parses a localized number into an exact decimal.
func (l Locale) ParseDecimal(s string) (decimal.Decimal, error) {
	normalized := l.Delocalize(s)
	if normalized == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	if strings.ContainsAny(normalized, " \t") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q (%s locale)", ErrInvalidAmount, s, l.Name)
	}
	return d, nil
}

// ParseLocalized parses a monetary string written in the given locale.
func ParseLocalized(s string, loc Locale, currencyCode string) (*Money, error) {
	d, err := loc.ParseDecimal(s)
	if err != nil {
		return nil, err
	}
	return NewFromDecimal(d, currencyCode), nil
}
