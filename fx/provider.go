package fx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/etnz/cgt"
	"github.com/etnz/cgt/date"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// maxWalkBack is how many days a daily rate may be carried forward
	// over weekends and holidays.
	maxWalkBack = 7
	// maxDailyBatch is the longest range requested from a daily source at once.
	maxDailyBatch = 365

	sourceMonthly = "hmrc-monthly"
	sourceYearly  = "hmrc-yearly"
	sourceDerived = "hmrc-monthly-average"
	sourceDaily   = "ecb-daily"
)

var one = decimal.NewFromInt(1)

// Rate is a resolved conversion rate.
type Rate struct {
	Value   decimal.Decimal // units of currency per 1 GBP
	DateKey string
	Source  string
}

// Provider resolves the rates of one strategy, from the store first and the
// strategy's source otherwise.
type Provider struct {
	strategy    Strategy
	store       Store
	sources     Sources
	concurrency int
	log         zerolog.Logger
	now         func() time.Time
}

// NewProvider returns a provider of strategy s.
func NewProvider(s Strategy, store Store, sources Sources, log zerolog.Logger) *Provider {
	return &Provider{
		strategy:    s,
		store:       store,
		sources:     sources,
		concurrency: 4,
		log:         log.With().Str("strategy", s.String()).Logger(),
		now:         time.Now,
	}
}

// Strategy returns the provider's strategy.
func (p *Provider) Strategy() Strategy { return p.strategy }

func (p *Provider) today() date.Date { return date.New(p.now().Date()) }

// Rate returns the rate of currency on a date. GBP resolves to exactly 1.
// Errors are *RateError wrapping ErrRateUnavailable or ErrRateFetchFailed.
func (p *Provider) Rate(ctx context.Context, on date.Date, currency string) (Rate, error) {
	key := p.strategy.DateKey(on)
	if currency == cgt.GBP {
		return Rate{Value: one, DateKey: key, Source: cgt.GBP}, nil
	}
	if e, ok := p.lookup(ctx, p.strategy, key, currency); ok {
		return Rate{Value: e.Rate, DateKey: e.DateKey, Source: e.Source}, nil
	}

	var (
		r   Rate
		err error
	)
	switch p.strategy {
	case Monthly:
		r, err = p.monthly(ctx, on, currency)
	case YearlyAverage:
		r, err = p.yearly(ctx, on, currency)
	case DailySpot:
		r, err = p.daily(ctx, on, currency)
	default:
		err = fmt.Errorf("unsupported strategy %d", int(p.strategy))
	}
	if err != nil {
		if !errors.Is(err, ErrRateUnavailable) && !errors.Is(err, ErrRateFetchFailed) {
			err = fmt.Errorf("%w: %w", ErrRateFetchFailed, err)
		}
		return Rate{}, &RateError{Strategy: p.strategy, DateKey: key, Currency: currency, Err: err}
	}
	return r, nil
}

// lookup reads the store. Store failures count as misses.
func (p *Provider) lookup(ctx context.Context, s Strategy, key, currency string) (Entry, bool) {
	e, ok, err := p.store.Get(ctx, s, key, currency)
	if err != nil {
		p.log.Warn().Err(err).Str("key", CacheKey(s, key, currency)).Msg("rate cache read failed")
		return Entry{}, false
	}
	return e, ok
}

func (p *Provider) save(ctx context.Context, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	if err := p.store.BulkPut(ctx, entries); err != nil {
		p.log.Warn().Err(err).Int("entries", len(entries)).Msg("rate cache write failed")
		return
	}
	p.log.Debug().Int("entries", len(entries)).Msg("rates cached")
}

func (p *Provider) entries(key string, rates Rates, source string) []Entry {
	fetched := p.now().UTC()
	entries := make([]Entry, 0, len(rates))
	for _, cur := range slices.Sorted(maps.Keys(rates)) {
		entries = append(entries, Entry{Strategy: p.strategy, DateKey: key, Currency: cur, Rate: rates[cur], Source: source, FetchedAt: fetched})
	}
	return entries
}

func pick(rates Rates, key, currency, source string) (Rate, error) {
	v, ok := rates[currency]
	if !ok || !v.IsPositive() {
		return Rate{}, fmt.Errorf("%w: %s is not in the %s rates of %s", ErrRateUnavailable, currency, source, key)
	}
	return Rate{Value: v, DateKey: key, Source: source}, nil
}

func (p *Provider) fetchMonth(ctx context.Context, year int, month time.Month) (Rates, error) {
	if p.sources.Monthly == nil {
		return nil, errors.New("no monthly rate source")
	}
	rates, err := p.sources.Monthly.MonthlyRates(ctx, year, month)
	if err != nil {
		return nil, err
	}
	p.save(ctx, p.entries(date.Key(date.New(year, month, 1), date.Monthly), rates, sourceMonthly))
	return rates, nil
}

func (p *Provider) monthly(ctx context.Context, on date.Date, currency string) (Rate, error) {
	rates, err := p.fetchMonth(ctx, on.Year(), on.Month())
	if err != nil {
		return Rate{}, err
	}
	return pick(rates, p.strategy.DateKey(on), currency, sourceMonthly)
}

func (p *Provider) fetchYear(ctx context.Context, year int) (Rates, error) {
	if year >= p.today().Year() {
		return nil, fmt.Errorf("%w: yearly averages of %d are not published yet", ErrRateUnavailable, year)
	}
	if p.sources.Yearly == nil {
		return nil, errors.New("no yearly rate source")
	}
	rates, err := p.sources.Yearly.YearlyAverages(ctx, year)
	if err != nil {
		return nil, err
	}
	p.save(ctx, p.entries(date.Key(date.New(year, time.January, 1), date.Yearly), rates, sourceYearly))
	return rates, nil
}

func (p *Provider) yearly(ctx context.Context, on date.Date, currency string) (Rate, error) {
	rates, err := p.fetchYear(ctx, on.Year())
	if errors.Is(err, ErrRateUnavailable) {
		return p.derived(ctx, on.Year(), currency, err)
	}
	if err != nil {
		return Rate{}, err
	}
	return pick(rates, p.strategy.DateKey(on), currency, sourceYearly)
}

// derived averages the monthly rates of the year found in the store. The
// result is not cached so the official average replaces it once published.
func (p *Provider) derived(ctx context.Context, year int, currency string, cause error) (Rate, error) {
	sum, n := decimal.Zero, 0
	for m := time.January; m <= time.December; m++ {
		e, ok := p.lookup(ctx, Monthly, date.Key(date.New(year, m, 1), date.Monthly), currency)
		if !ok {
			continue
		}
		sum = sum.Add(e.Rate)
		n++
	}
	if n == 0 {
		return Rate{}, fmt.Errorf("%w and no monthly %s rate is cached", cause, currency)
	}
	p.log.Info().Int("year", year).Str("currency", currency).Int("months", n).Msg("using average of cached monthly rates")
	return Rate{
		Value:   sum.Div(decimal.NewFromInt(int64(n))),
		DateKey: fmt.Sprintf("%04d", year),
		Source:  fmt.Sprintf("%s(%d)", sourceDerived, n),
	}, nil
}

func (p *Provider) fetchDays(ctx context.Context, window date.Range, currencies []string) (map[string]*date.History[decimal.Decimal], error) {
	if p.sources.Daily == nil {
		return nil, errors.New("no daily rate source")
	}
	return p.sources.Daily.DailyRates(ctx, window.From, window.To, currencies)
}

// dailyEntries returns the cache entries of every day of r that has a rate
// at most maxWalkBack days old. Carried forward rates are only cached for
// past days, today's rate may still be published.
func (p *Provider) dailyEntries(series map[string]*date.History[decimal.Decimal], r date.Range) []Entry {
	today := p.today()
	fetched := p.now().UTC()
	var entries []Entry
	for _, cur := range slices.Sorted(maps.Keys(series)) {
		h := series[cur]
		for d := r.From; !d.After(r.To); d = d.Add(1) {
			obs, v, ok := h.ValueAsOf(d)
			if !ok || d.DaysSince(obs) > maxWalkBack || !v.IsPositive() {
				continue
			}
			if obs != d && !d.Before(today) {
				continue
			}
			entries = append(entries, Entry{Strategy: DailySpot, DateKey: d.String(), Currency: cur, Rate: v, Source: dailySource(d, obs), FetchedAt: fetched})
		}
	}
	return entries
}

func dailySource(on, observed date.Date) string {
	if on == observed {
		return sourceDaily
	}
	return fmt.Sprintf("%s(%s)", sourceDaily, observed)
}

func (p *Provider) daily(ctx context.Context, on date.Date, currency string) (Rate, error) {
	window := date.Range{From: on.Add(-maxWalkBack), To: on}
	series, err := p.fetchDays(ctx, window, []string{currency})
	if err != nil {
		return Rate{}, err
	}
	p.save(ctx, p.dailyEntries(series, window))

	h := series[currency]
	if h == nil {
		return Rate{}, fmt.Errorf("%w: no daily %s rate", ErrRateUnavailable, currency)
	}
	obs, v, ok := h.ValueAsOf(on)
	if !ok || on.DaysSince(obs) > maxWalkBack || !v.IsPositive() {
		return Rate{}, fmt.Errorf("%w: no daily %s rate in the %d days up to %s", ErrRateUnavailable, currency, maxWalkBack, on)
	}
	if obs != on {
		p.log.Debug().Stringer("date", on).Stringer("observed", obs).Str("currency", currency).Msg("daily rate carried forward")
	}
	return Rate{Value: v, DateKey: on.String(), Source: dailySource(on, obs)}, nil
}

// Prefetch loads into the store every rate of currencies between from and to
// that is not cached yet. Failures are joined, resolution retries them.
func (p *Provider) Prefetch(ctx context.Context, from, to date.Date, currencies []string) error {
	currencies = slices.DeleteFunc(slices.Clone(currencies), func(c string) bool { return c == cgt.GBP })
	slices.Sort(currencies)
	currencies = slices.Compact(currencies)
	if len(currencies) == 0 || to.Before(from) {
		return nil
	}

	switch p.strategy {
	case DailySpot:
		return p.prefetchDaily(ctx, date.Range{From: from, To: to}, currencies)
	case YearlyAverage:
		var keys []date.Date
		for y := from.Year(); y <= to.Year() && y < p.today().Year(); y++ {
			keys = append(keys, date.New(y, time.January, 1))
		}
		return p.prefetchPeriods(ctx, keys, currencies, func(ctx context.Context, d date.Date) error {
			_, err := p.fetchYear(ctx, d.Year())
			return err
		})
	default:
		var keys []date.Date
		for m := from.StartOf(date.Monthly); !m.After(to); m = m.EndOf(date.Monthly).Add(1) {
			keys = append(keys, m)
		}
		return p.prefetchPeriods(ctx, keys, currencies, func(ctx context.Context, d date.Date) error {
			_, err := p.fetchMonth(ctx, d.Year(), d.Month())
			return err
		})
	}
}

// prefetchPeriods fetches, concurrently, the periods missing a currency.
func (p *Provider) prefetchPeriods(ctx context.Context, periods []date.Date, currencies []string, fetch func(context.Context, date.Date) error) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(p.concurrency)
	for _, d := range periods {
		key := p.strategy.DateKey(d)
		if !p.missing(ctx, key, currencies) {
			continue
		}
		g.Go(func() error {
			if err := fetch(ctx, d); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("prefetch %s %s: %w", p.strategy, key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

func (p *Provider) missing(ctx context.Context, key string, currencies []string) bool {
	for _, cur := range currencies {
		if _, ok := p.lookup(ctx, p.strategy, key, cur); !ok {
			return true
		}
	}
	return false
}

func (p *Provider) prefetchDaily(ctx context.Context, r date.Range, currencies []string) error {
	today := p.today()
	var errs []error
	for _, chunk := range r.Split(maxDailyBatch) {
		var missing []string
		for _, cur := range currencies {
			for d := chunk.From; !d.After(chunk.To); d = d.Add(1) {
				if !d.Before(today) || p.missing(ctx, d.String(), []string{cur}) {
					missing = append(missing, cur)
					break
				}
			}
		}
		if len(missing) == 0 {
			p.log.Debug().Stringer("from", chunk.From).Stringer("to", chunk.To).Msg("daily rates already cached")
			continue
		}
		window := date.Range{From: chunk.From.Add(-maxWalkBack), To: chunk.To}
		series, err := p.fetchDays(ctx, window, missing)
		if err != nil {
			errs = append(errs, fmt.Errorf("prefetch daily %s: %w", chunk.Identifier(), err))
			continue
		}
		p.save(ctx, p.dailyEntries(series, chunk))
	}
	return errors.Join(errs...)
}
