package common

import (
	"fmt"
	"time"
)

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// MonthName returns the capitalized pt-BR name of m.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return m.String()
	}
	return monthNames[m-1]
}

// MonthYear formats t as "Julho de 2018".
func MonthYear(t time.Time) string {
	return fmt.Sprintf("%s de %d", MonthName(t.Month()), t.Year())
}

// FirstOfMonth truncates t to midnight UTC on the first day of its month.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth reads a month from a form value: "2018-07", "2018-07-15" or "15/07/2018".
// The result is normalized to the first of the month.
func ParseMonth(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01", "02/01/2006", "01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return FirstOfMonth(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid month %q", ErrBadRequest, s)
}
