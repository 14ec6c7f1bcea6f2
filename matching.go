package cgt

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/etnz/cgt/date"
)

// Match is one slice of a disposal matched against an acquisition or the pool.
type Match struct {
	Rule          Rule
	AcquisitionID string // empty when matched against the pool
	Date          date.Date
	Quantity      Quantity
	Cost          Money
}

// Disposal is the outcome of matching one disposal event. All amounts are GBP.
type Disposal struct {
	TransactionID string
	Asset         AssetID
	Date          date.Date
	Quantity      Quantity
	Proceeds      Money
	Fee           Money

	// Quantity is split by rule: SameDay + ThirtyDay + Pool == Quantity.
	SameDay, ThirtyDay, Pool             Quantity
	SameDayCost, ThirtyDayCost, PoolCost Money
	// ShortCoverCost is the cost of later acquisitions that covered the
	// unfunded part of the disposal.
	ShortCoverCost Money
	Matches        []Match

	// Underfunded is set when the pool could not fund the disposal. Unfunded
	// is the part that left the pool negative.
	Underfunded bool
	Unfunded    Quantity
	// Short is set when the disposal is an intentional short sale.
	Short bool

	seq int // input position, for stable ordering
}

// Cost returns the total allowable cost.
func (d Disposal) Cost() Money {
	return d.SameDayCost.Add(d.ThirtyDayCost).Add(d.PoolCost).Add(d.ShortCoverCost)
}

// Gain returns proceeds less allowable cost and disposal fee. Negative for a loss.
func (d Disposal) Gain() Money { return d.Proceeds.Sub(d.Cost()).Sub(d.Fee) }

// TaxYear returns the tax year the disposal belongs to.
func (d Disposal) TaxYear() date.TaxYear { return date.TaxYearOf(d.Date) }

// Pool is the Section 104 holding of one asset.
type Pool struct {
	Asset    AssetID
	Quantity Quantity
	Cost     Money
	// Short is set while the holding is negative because of an open short.
	Short bool
}

// AverageCost returns the cost per unit, zero for an empty pool.
func (p Pool) AverageCost() Money {
	if !p.Quantity.IsPositive() {
		return M(0, GBP)
	}
	return p.Cost.Div(p.Quantity)
}

// Matching is the result of running the matching engine.
type Matching struct {
	Disposals []Disposal // by date, then input order
	Pools     []Pool     // by asset
	Issues    []Issue
}

// Pool returns the pool of an asset.
func (m Matching) Pool(asset AssetID) (Pool, bool) {
	i, found := slices.BinarySearchFunc(m.Pools, asset, func(p Pool, a AssetID) int { return cmp.Compare(p.Asset, a) })
	if !found {
		return Pool{}, false
	}
	return m.Pools[i], true
}

// MatchDisposals applies the same-day, 30-day and Section 104 rules to every
// asset independently. Transactions that are not trades or splits are ignored.
//
// It is a pure function of its input.
func MatchDisposals(txs []EnrichedTransaction) Matching {
	byAsset := make(map[AssetID][]event)
	for i, tx := range txs {
		if !tx.Kind.IsTrade() && tx.Kind != KindStockSplit {
			continue
		}
		id := tx.AssetID()
		byAsset[id] = append(byAsset[id], event{seq: i, tx: tx})
	}

	var res Matching
	for _, id := range slices.Sorted(maps.Keys(byAsset)) {
		m := matcher{asset: id, events: byAsset[id]}
		m.run()
		res.Disposals = append(res.Disposals, m.disposals...)
		res.Issues = append(res.Issues, m.issues...)
		if m.pool != nil {
			res.Pools = append(res.Pools, *m.pool)
		}
	}
	slices.SortStableFunc(res.Disposals, func(a, b Disposal) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return res
}

type role int

const (
	inert role = iota
	acquisition
	disposal
	split
)

// event is a trade or split of one asset.
//
// Quantities in norm and rem are expressed in post-split units (units * adj)
// so that acquisitions and disposals separated by a split can be matched.
type event struct {
	seq   int
	tx    EnrichedTransaction
	role  role
	units Quantity // units at the event date
	adj   Quantity // product of the splits after the event
	norm  Quantity
	rem   Quantity // not yet matched
	cost  Money    // acquisitions only
	disp  int      // disposals only: index in matcher.disposals
}

type matcher struct {
	asset     AssetID
	events    []event
	disposals []Disposal
	pool      *Pool
	shorts    lots
	issues    []Issue
}

func (m *matcher) run() {
	slices.SortStableFunc(m.events, func(a, b event) int { return a.tx.Date.Compare(b.tx.Date) })
	m.classify()
	m.normalize()
	m.matchSameDay()
	m.matchThirtyDay()
	m.matchPool()
}

func (m *matcher) issue(tx EnrichedTransaction, err error) {
	m.issues = append(m.issues, Issue{TransactionID: tx.ID, Asset: m.asset, Err: err})
}

// classify assigns each event its role. Option closes at zero consideration
// dispose of a long position or acquire back a short one.
func (m *matcher) classify() {
	position := Q(0)
	for i := range m.events {
		e := &m.events[i]
		tx := e.tx
		switch tx.Kind {
		case KindStockSplit:
			e.role = split
			position = position.Mul(Q(tx.SplitRatio.New)).Div(Q(tx.SplitRatio.Old))
			continue
		case KindBuy, KindBuyToOpen, KindBuyToClose:
			e.role, e.units = acquisition, tx.Units()
		case KindSell, KindSellToOpen, KindSellToClose:
			e.role, e.units = disposal, tx.Units()
		case KindAssigned, KindExpired, KindExercised:
			e.units = tx.Units()
			if e.units.IsZero() {
				e.units = position.Abs()
			}
			switch {
			case position.IsPositive():
				e.role = disposal
			case position.IsNegative():
				e.role = acquisition
			default:
				m.issue(tx, fmt.Errorf("%s without an open position", tx.Kind))
				continue
			}
		}
		if e.units.IsZero() {
			e.role = inert
			continue
		}

		switch e.role {
		case acquisition:
			position = position.Add(e.units)
			e.cost = tx.FeeGBP
			if !tx.Kind.closesAtZero() {
				e.cost = tx.TotalGBP.Add(tx.FeeGBP)
			}
		case disposal:
			position = position.Sub(e.units)
			proceeds := tx.TotalGBP
			if tx.Kind.closesAtZero() {
				proceeds = M(0, GBP)
			}
			e.disp = len(m.disposals)
			m.disposals = append(m.disposals, Disposal{
				TransactionID:  tx.ID,
				Asset:          m.asset,
				Date:           tx.Date,
				Quantity:       e.units,
				Proceeds:       proceeds,
				Fee:            tx.FeeGBP,
				SameDayCost:    M(0, GBP),
				ThirtyDayCost:  M(0, GBP),
				PoolCost:       M(0, GBP),
				ShortCoverCost: M(0, GBP),
				Short:          tx.Short || tx.Kind == KindSellToOpen,
				seq:            e.seq,
			})
		}
	}
}

// normalize expresses every quantity in the units in force after the last split.
func (m *matcher) normalize() {
	adj := Q(1)
	for i := len(m.events) - 1; i >= 0; i-- {
		e := &m.events[i]
		if e.role == split {
			adj = adj.Mul(Q(e.tx.SplitRatio.New)).Div(Q(e.tx.SplitRatio.Old))
			continue
		}
		e.adj = adj
		e.norm = e.units.Mul(adj)
		e.rem = e.norm
	}
}

// matchSameDay treats all acquisitions of a day as a single acquisition
// consumed pro rata by the disposals of that day.
func (m *matcher) matchSameDay() {
	for i := 0; i < len(m.events); {
		j := i
		for j < len(m.events) && m.events[j].tx.Date == m.events[i].tx.Date {
			j++
		}
		m.sameDay(m.events[i:j])
		i = j
	}
}

func (m *matcher) sameDay(day []event) {
	var acqs, disps []*event
	total := Q(0)
	for k := range day {
		switch e := &day[k]; e.role {
		case acquisition:
			acqs = append(acqs, e)
			total = total.Add(e.norm)
		case disposal:
			disps = append(disps, e)
		}
	}
	if len(acqs) == 0 || len(disps) == 0 {
		return
	}

	left := total
	for _, d := range disps {
		if left.IsZero() {
			break
		}
		take := d.rem.Min(left)
		left, d.rem = left.Sub(take), d.rem.Sub(take)
		disposal := &m.disposals[d.disp]
		disposal.SameDay = disposal.SameDay.Add(take.Div(d.adj))
		for _, a := range acqs {
			cost := a.cost.Pro(take, total)
			disposal.SameDayCost = disposal.SameDayCost.Add(cost)
			disposal.Matches = append(disposal.Matches, Match{
				Rule:          SameDay,
				AcquisitionID: a.tx.ID,
				Date:          a.tx.Date,
				Quantity:      a.norm.Mul(take).Div(total).Div(d.adj),
				Cost:          cost,
			})
		}
	}

	for _, a := range acqs {
		if left.IsZero() {
			a.rem = Q(0)
		} else {
			a.rem = a.norm.Mul(left).Div(total)
		}
	}
}

// matchThirtyDay matches each disposal, in date order, with acquisitions in
// the following 30 days, earliest first.
func (m *matcher) matchThirtyDay() {
	for i := range m.events {
		d := &m.events[i]
		if d.role != disposal || d.rem.IsZero() {
			continue
		}
		limit := d.tx.Date.Add(30)
		for j := i + 1; j < len(m.events) && !d.rem.IsZero(); j++ {
			a := &m.events[j]
			if a.tx.Date.After(limit) {
				break
			}
			if a.role != acquisition || !a.tx.Date.After(d.tx.Date) || a.rem.IsZero() {
				continue
			}
			take := d.rem.Min(a.rem)
			d.rem, a.rem = d.rem.Sub(take), a.rem.Sub(take)
			cost := a.cost.Pro(take, a.norm)
			disposal := &m.disposals[d.disp]
			disposal.ThirtyDay = disposal.ThirtyDay.Add(take.Div(d.adj))
			disposal.ThirtyDayCost = disposal.ThirtyDayCost.Add(cost)
			disposal.Matches = append(disposal.Matches, Match{
				Rule:          ThirtyDay,
				AcquisitionID: a.tx.ID,
				Date:          a.tx.Date,
				Quantity:      take.Div(d.adj),
				Cost:          cost,
			})
		}
	}
}

func (m *matcher) openPool() *Pool {
	if m.pool == nil {
		m.pool = &Pool{Asset: m.asset, Quantity: Q(0), Cost: M(0, GBP)}
	}
	return m.pool
}

// matchPool replays events in order against the Section 104 holding, in
// actual units. Unmatched acquisitions first cover open shorts, then join
// the pool; disposals take what is left of them from the pool at average cost.
func (m *matcher) matchPool() {
	for i := range m.events {
		e := &m.events[i]
		switch e.role {
		case split:
			r := e.tx.SplitRatio
			if m.pool != nil {
				m.pool.Quantity = m.pool.Quantity.Mul(Q(r.New)).Div(Q(r.Old))
			}
			m.shorts = m.shorts.split(r)

		case acquisition:
			if e.rem.IsZero() {
				continue
			}
			pool := m.openPool()
			units := e.rem.Div(e.adj)
			cost := e.cost.Pro(e.rem, e.norm)

			var covered lots
			covered, m.shorts = m.shorts.take(units)
			for _, c := range covered {
				coverCost := cost.Pro(c.Quantity, units)
				d := &m.disposals[c.disposal]
				d.ShortCoverCost = d.ShortCoverCost.Add(coverCost)
				d.Matches = append(d.Matches, Match{
					Rule:          Section104,
					AcquisitionID: e.tx.ID,
					Date:          e.tx.Date,
					Quantity:      c.Quantity,
					Cost:          coverCost,
				})
				pool.Quantity = pool.Quantity.Add(c.Quantity)
				units, cost = units.Sub(c.Quantity), cost.Sub(coverCost)
			}
			pool.Quantity = pool.Quantity.Add(units)
			pool.Cost = pool.Cost.Add(cost)

		case disposal:
			d := &m.disposals[e.disp]
			part := d.Quantity.Sub(d.SameDay).Sub(d.ThirtyDay)
			if !part.IsPositive() {
				continue
			}
			pool := m.openPool()
			d.Pool = part

			take := Q(0)
			if pool.Quantity.IsPositive() {
				take = part.Min(pool.Quantity)
			}
			if take.IsPositive() {
				cost := pool.Cost
				if !take.Equal(pool.Quantity) {
					cost = pool.Cost.Pro(take, pool.Quantity)
				}
				pool.Quantity, pool.Cost = pool.Quantity.Sub(take), pool.Cost.Sub(cost)
				d.PoolCost = cost
				d.Matches = append(d.Matches, Match{Rule: Section104, Date: d.Date, Quantity: take, Cost: cost})
			}

			if unfunded := part.Sub(take); unfunded.IsPositive() {
				d.Underfunded, d.Unfunded = true, unfunded
				pool.Quantity = pool.Quantity.Sub(unfunded)
				m.shorts = append(m.shorts, lot{disposal: e.disp, Date: d.Date, Quantity: unfunded})
				if !d.Short {
					m.issue(e.tx, fmt.Errorf("%w: %s units unfunded", ErrUnderfundedPool, unfunded))
				}
			}
		}
	}
	if m.pool != nil {
		m.pool.Short = m.pool.Quantity.IsNegative()
	}
}
