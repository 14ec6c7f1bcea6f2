package fx

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/etnz/cgt"
	"github.com/etnz/cgt/date"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options configures an Engine.
type Options struct {
	Strategy    Strategy // initially active strategy
	Concurrency int      // maximum concurrent rate resolutions, 4 when zero
	Log         zerolog.Logger
}

// Engine enriches transactions with GBP amounts. Concurrent requests for the
// same rate share one resolution, resolved rates are kept in memory until the
// active strategy changes.
type Engine struct {
	providers   map[Strategy]*Provider
	concurrency int
	log         zerolog.Logger

	mu      sync.RWMutex
	current Strategy
	memo    map[string]Rate

	switching sync.Mutex
	flight    singleflight.Group
}

// NewEngine returns an engine reading and writing rates to store.
func NewEngine(store Store, sources Sources, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	log := opts.Log.With().Str("component", "fx").Logger()
	e := &Engine{
		providers:   make(map[Strategy]*Provider, len(Strategies)),
		concurrency: opts.Concurrency,
		log:         log,
		current:     opts.Strategy,
		memo:        make(map[string]Rate),
	}
	for _, s := range Strategies {
		p := NewProvider(s, store, sources, log)
		p.concurrency = opts.Concurrency
		e.providers[s] = p
	}
	return e
}

// Strategy returns the active strategy.
func (e *Engine) Strategy() Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Provider returns the provider of strategy s.
func (e *Engine) Provider(s Strategy) *Provider { return e.providers[s] }

// Rate resolves one rate. Failed resolutions are not remembered.
func (e *Engine) Rate(ctx context.Context, s Strategy, on date.Date, currency string) (Rate, error) {
	p := e.Provider(s)
	if p == nil {
		return Rate{}, &RateError{Strategy: s, DateKey: on.String(), Currency: currency, Err: ErrRateUnavailable}
	}
	key := CacheKey(s, s.DateKey(on), currency)
	e.mu.RLock()
	r, ok := e.memo[key]
	e.mu.RUnlock()
	if ok {
		return r, nil
	}

	v, err, _ := e.flight.Do(key, func() (any, error) {
		r, err := p.Rate(ctx, on, currency)
		if err != nil {
			return Rate{}, err
		}
		e.mu.Lock()
		e.memo[key] = r
		e.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return Rate{}, err
	}
	return v.(Rate), nil
}

// Failure is a transaction left out of an enrichment.
type Failure struct {
	Transaction cgt.Transaction
	Err         error
}

// Enrichment is the outcome of enriching a batch.
type Enrichment struct {
	Strategy     Strategy
	Transactions []cgt.EnrichedTransaction // in input order
	Failures     []Failure
}

// fetchErr joins the transport failures of the batch.
func (r Enrichment) fetchErr() error {
	var errs []error
	for _, f := range r.Failures {
		if errors.Is(f.Err, ErrRateFetchFailed) {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

// Enrich converts txs to GBP under strategy s. A transaction whose rate
// cannot be resolved is reported in Failures and does not stop the others.
// The returned error is only set when ctx is done.
func (e *Engine) Enrich(ctx context.Context, txs []cgt.Transaction, s Strategy) (Enrichment, error) {
	type pair struct{ key, currency string }
	res := Enrichment{Strategy: s, Transactions: make([]cgt.EnrichedTransaction, 0, len(txs))}

	dates := make(map[pair]date.Date)
	currencies := make(map[string]bool)
	var span date.Range
	for _, tx := range txs {
		if tx.Currency == cgt.GBP {
			continue
		}
		k := pair{s.DateKey(tx.Date), tx.Currency}
		if _, ok := dates[k]; !ok {
			dates[k] = tx.Date
		}
		currencies[tx.Currency] = true
		span = span.Extend(tx.Date)
	}

	if len(dates) > 0 {
		if p := e.Provider(s); p != nil {
			if err := p.Prefetch(ctx, span.From, span.To, slices.Sorted(maps.Keys(currencies))); err != nil {
				e.log.Warn().Err(err).Stringer("strategy", s).Msg("rate prefetch incomplete")
			}
		}
	}

	var (
		mu    sync.Mutex
		rates = make(map[pair]Rate, len(dates))
		errs  = make(map[pair]error)
		g     errgroup.Group
	)
	g.SetLimit(e.concurrency)
	for k, on := range dates {
		g.Go(func() error {
			r, err := e.Rate(ctx, s, on, k.currency)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[k] = err
			} else {
				rates[k] = r
			}
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for _, tx := range txs {
		if tx.Currency == cgt.GBP {
			res.Transactions = append(res.Transactions, tx.Enrich(one, s.DateKey(tx.Date), cgt.GBP))
			continue
		}
		k := pair{s.DateKey(tx.Date), tx.Currency}
		if err, failed := errs[k]; failed {
			res.Failures = append(res.Failures, Failure{Transaction: tx, Err: err})
			continue
		}
		r := rates[k]
		res.Transactions = append(res.Transactions, tx.Enrich(r.Value, r.DateKey, r.Source))
	}
	if len(res.Failures) > 0 {
		e.log.Warn().Stringer("strategy", s).Int("failed", len(res.Failures)).Int("enriched", len(res.Transactions)).Msg("some transactions have no rate")
	}
	return res, nil
}

// SwitchStrategy re-enriches txs under s and makes s the active strategy.
// On a transport failure or cancellation the previous strategy stays active
// and the error wraps ErrStrategySwitchFailed. Unpublished rates are reported
// as failures of the returned enrichment and do not prevent the switch.
func (e *Engine) SwitchStrategy(ctx context.Context, s Strategy, txs []cgt.Transaction) (Enrichment, error) {
	if !e.switching.TryLock() {
		return Enrichment{}, ErrSwitchInProgress
	}
	defer e.switching.Unlock()

	prev := e.Strategy()
	res, err := e.Enrich(ctx, txs, s)
	if err == nil {
		err = res.fetchErr()
	}
	if err != nil {
		e.log.Error().Err(err).Stringer("from", prev).Stringer("to", s).Msg("strategy switch rolled back")
		return Enrichment{}, &SwitchError{From: prev, To: s, Err: err}
	}

	e.mu.Lock()
	e.current = s
	e.memo = make(map[string]Rate)
	e.mu.Unlock()
	e.log.Info().Stringer("from", prev).Stringer("to", s).Int("transactions", len(res.Transactions)).Msg("strategy switched")
	return res, nil
}
