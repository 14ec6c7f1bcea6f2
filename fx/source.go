package fx

import (
	"context"
	"time"

	"github.com/etnz/cgt/date"
	"github.com/shopspring/decimal"
)

// Rates maps a currency code to its rate, in units per 1 GBP.
type Rates map[string]decimal.Decimal

// MonthlySource returns the official rates of a month.
type MonthlySource interface {
	MonthlyRates(ctx context.Context, year int, month time.Month) (Rates, error)
}

// YearlySource returns the average rates of a calendar year. It returns an
// error wrapping ErrRateUnavailable when the year is not published yet.
type YearlySource interface {
	YearlyAverages(ctx context.Context, year int) (Rates, error)
}

// DailySource returns the daily rate series of currencies between two dates
// included. Non trading days are absent from the series.
type DailySource interface {
	DailyRates(ctx context.Context, from, to date.Date, currencies []string) (map[string]*date.History[decimal.Decimal], error)
}

// Sources gathers the transports of every strategy. A nil source makes its
// strategy fail with ErrRateFetchFailed.
type Sources struct {
	Monthly MonthlySource
	Yearly  YearlySource
	Daily   DailySource
}
