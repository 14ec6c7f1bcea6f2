// Package fx converts transaction amounts to GBP under a selectable rate
// strategy: HMRC monthly rates, HMRC yearly averages, or daily spot rates.
//
// Rates are expressed as units of foreign currency per 1 GBP, the way HMRC
// publishes them, so that amount in GBP = native amount / rate.
package fx

import (
	"fmt"
	"strings"

	"github.com/etnz/cgt/date"
)

// Strategy selects how a rate is resolved for a date.
type Strategy int

const (
	// Monthly uses the HMRC exchange rate published for the month.
	Monthly Strategy = iota
	// YearlyAverage uses the HMRC average rate for the calendar year.
	YearlyAverage
	// DailySpot uses the daily reference rate of the day, or the closest
	// previous one within a week.
	DailySpot
)

// Strategies lists every strategy.
var Strategies = []Strategy{Monthly, YearlyAverage, DailySpot}

func (s Strategy) String() string {
	switch s {
	case Monthly:
		return "monthly"
	case YearlyAverage:
		return "yearly"
	case DailySpot:
		return "daily"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month":
		return Monthly, nil
	case "yearly", "year", "yearly-average":
		return YearlyAverage, nil
	case "daily", "day", "daily-spot", "spot":
		return DailySpot, nil
	default:
		return Monthly, fmt.Errorf("unknown rate strategy %q (want monthly, yearly or daily)", s)
	}
}

// Period returns the granularity of the strategy's rates.
func (s Strategy) Period() date.Period {
	switch s {
	case YearlyAverage:
		return date.Yearly
	case DailySpot:
		return date.Daily
	default:
		return date.Monthly
	}
}

// DateKey returns the cache date key of on: YYYY-MM, YYYY or YYYY-MM-DD.
func (s Strategy) DateKey(on date.Date) string { return date.Key(on, s.Period()) }

// CacheKey returns the composite key {strategy}-{dateKey}-{currency}.
func CacheKey(s Strategy, dateKey, currency string) string {
	return fmt.Sprintf("%s-%s-%s", s, dateKey, currency)
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Strategy) UnmarshalText(b []byte) error {
	parsed, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
