// Package session ties a transaction set to an FX engine and computes the
// tax outcome of the set under the active rate strategy.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/etnz/cgt"
	"github.com/etnz/cgt/date"
	"github.com/etnz/cgt/fx"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Snapshot is the tax outcome of a transaction set under one strategy.
type Snapshot struct {
	Strategy  fx.Strategy
	Enriched  []cgt.EnrichedTransaction
	Failures  []fx.Failure // transactions left out for lack of a rate
	Disposals []cgt.Disposal
	Pools     []cgt.Pool // by asset
	Issues    []cgt.Issue
	TaxYears  []cgt.TaxYearSummary // chronological
}

// TaxYear returns the summary of year y.
func (s Snapshot) TaxYear(y date.TaxYear) (cgt.TaxYearSummary, bool) {
	i := slices.IndexFunc(s.TaxYears, func(t cgt.TaxYearSummary) bool { return t.Year == y })
	if i < 0 {
		return cgt.TaxYearSummary{}, false
	}
	return s.TaxYears[i], true
}

// DisposalsIn returns the disposals of tax year y.
func (s Snapshot) DisposalsIn(y date.TaxYear) []cgt.Disposal {
	var out []cgt.Disposal
	for _, d := range s.Disposals {
		if d.TaxYear() == y {
			out = append(out, d)
		}
	}
	return out
}

func newSnapshot(e fx.Enrichment) Snapshot {
	m := cgt.MatchDisposals(e.Transactions)
	return Snapshot{
		Strategy:  e.Strategy,
		Enriched:  e.Transactions,
		Failures:  e.Failures,
		Disposals: m.Disposals,
		Pools:     m.Pools,
		Issues:    m.Issues,
		TaxYears:  cgt.Summarize(e.Transactions, m.Disposals),
	}
}

// Session holds the transactions under study. It is safe for concurrent use.
type Session struct {
	engine    *fx.Engine
	log       zerolog.Logger
	snapshots *cache.Cache

	mu      sync.RWMutex
	txs     []cgt.Transaction
	version int
}

// New returns an empty session converting amounts with engine.
func New(engine *fx.Engine, log zerolog.Logger) *Session {
	return &Session{
		engine:    engine,
		log:       log.With().Str("component", "session").Logger(),
		snapshots: cache.New(30*time.Minute, time.Hour),
	}
}

// Load replaces the transactions of the session.
func (s *Session) Load(txs []cgt.Transaction) {
	s.mu.Lock()
	s.txs = slices.Clone(txs)
	s.version++
	s.mu.Unlock()
	s.snapshots.Flush()
	s.log.Debug().Int("transactions", len(txs)).Msg("transactions loaded")
}

// Transactions returns the loaded transactions.
func (s *Session) Transactions() []cgt.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.txs)
}

// Strategy returns the active rate strategy.
func (s *Session) Strategy() fx.Strategy { return s.engine.Strategy() }

func (s *Session) current() ([]cgt.Transaction, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txs, keyOf(s.engine.Strategy(), s.version)
}

func keyOf(st fx.Strategy, version int) string { return fmt.Sprintf("%s/%d", st, version) }

// Snapshot returns the outcome under the active strategy, computing it on
// first use after a change of data or strategy.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	txs, key := s.current()
	if v, ok := s.snapshots.Get(key); ok {
		return v.(Snapshot), nil
	}
	e, err := s.engine.Enrich(ctx, txs, s.engine.Strategy())
	if err != nil {
		return Snapshot{}, err
	}
	snap := newSnapshot(e)
	s.snapshots.SetDefault(key, snap)
	s.log.Debug().Str("key", key).Int("disposals", len(snap.Disposals)).Msg("snapshot computed")
	return snap, nil
}

// SetStrategy switches the active strategy and returns the new outcome. On
// failure the previous strategy and its snapshot stay in place.
func (s *Session) SetStrategy(ctx context.Context, st fx.Strategy) (Snapshot, error) {
	s.mu.RLock()
	txs, version := s.txs, s.version
	s.mu.RUnlock()

	e, err := s.engine.SwitchStrategy(ctx, st, txs)
	if err != nil {
		return Snapshot{}, err
	}
	snap := newSnapshot(e)
	s.snapshots.SetDefault(keyOf(st, version), snap)
	return snap, nil
}
