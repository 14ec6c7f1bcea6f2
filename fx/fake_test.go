package fx

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/etnz/cgt/date"
	"github.com/shopspring/decimal"
)

var errDown = errors.New("connection refused")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeMonthly serves rates by "YYYY-MM" key.
type fakeMonthly struct {
	mu    sync.Mutex
	calls int
	rates map[string]Rates
	fail  int           // number of calls that fail before succeeding
	gate  chan struct{} // when set, calls block until it is closed
}

func (f *fakeMonthly) MonthlyRates(ctx context.Context, year int, month time.Month) (Rates, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return nil, errDown
	}
	r, ok := f.rates[date.Key(date.New(year, month, 1), date.Monthly)]
	if !ok {
		return nil, ErrRateUnavailable
	}
	return r, nil
}

func (f *fakeMonthly) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeYearly serves rates by year.
type fakeYearly struct {
	calls int
	rates map[int]Rates
	err   error
}

func (f *fakeYearly) YearlyAverages(ctx context.Context, year int) (Rates, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rates[year]
	if !ok {
		return nil, ErrRateUnavailable
	}
	return r, nil
}

// fakeDaily publishes a constant rate on every weekday.
type fakeDaily struct {
	calls int
	rate  decimal.Decimal
}

func (f *fakeDaily) DailyRates(ctx context.Context, from, to date.Date, currencies []string) (map[string]*date.History[decimal.Decimal], error) {
	f.calls++
	out := make(map[string]*date.History[decimal.Decimal])
	for _, cur := range currencies {
		h := new(date.History[decimal.Decimal])
		for d := from; !d.After(to); d = d.Add(1) {
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			h.Append(d, f.rate)
		}
		out[cur] = h
	}
	return out, nil
}

func fixedNow(d date.Date) func() time.Time {
	return func() time.Time { return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC) }
}
