package date

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaxYear is a UK fiscal year, running from 6 April to 5 April.
// It is identified by the calendar year it starts in.
type TaxYear int

// TaxYearOf returns the tax year containing d.
func TaxYearOf(d Date) TaxYear {
	if d.Month() < time.April || (d.Month() == time.April && d.Day() < 6) {
		return TaxYear(d.Year() - 1)
	}
	return TaxYear(d.Year())
}

// Start returns 6 April of the starting year.
func (y TaxYear) Start() Date { return New(int(y), time.April, 6) }

// End returns 5 April of the following year.
func (y TaxYear) End() Date { return New(int(y)+1, time.April, 5) }

// Range returns the days covered by the tax year.
func (y TaxYear) Range() Range { return Range{From: y.Start(), To: y.End()} }

// String returns the usual label, e.g. "2024/25".
func (y TaxYear) String() string { return fmt.Sprintf("%d/%02d", int(y), (int(y)+1)%100) }

// ParseTaxYear parses a "2024/25" label, or a bare starting year "2024".
func ParseTaxYear(s string) (TaxYear, error) {
	s = strings.TrimSpace(s)
	start, end, hasEnd := strings.Cut(s, "/")
	y, err := strconv.Atoi(start)
	if err != nil {
		return 0, fmt.Errorf("invalid tax year %q: %w", s, err)
	}
	if hasEnd {
		e, err := strconv.Atoi(end)
		if err != nil || e != (y+1)%100 {
			return 0, fmt.Errorf("invalid tax year %q: want %d/%02d", s, y, (y+1)%100)
		}
	}
	return TaxYear(y), nil
}
