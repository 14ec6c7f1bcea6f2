package cgt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/etnz/cgt/date"
	"github.com/shopspring/decimal"
)

// onlyDisposal runs the engine and fails unless it produced exactly one disposal.
func onlyDisposal(t *testing.T, txs ...EnrichedTransaction) (Disposal, Matching) {
	t.Helper()
	res := MatchDisposals(txs)
	if len(res.Disposals) != 1 {
		t.Fatalf("MatchDisposals() produced %d disposals, want 1", len(res.Disposals))
	}
	return res.Disposals[0], res
}

func TestMatchDisposals_PoolAndSplit(t *testing.T) {
	d, res := onlyDisposal(t,
		trade("b1", "2024-01-10", KindBuy, "ACME", 10, 1000),
		splitOf("s1", "2024-02-01", "ACME", 10, 1),
		trade("s2", "2024-06-03", KindSell, "ACME", 50, 1000),
	)

	if !d.Pool.Equal(Q(50)) {
		t.Errorf("Pool quantity = %v, want 50", d.Pool)
	}
	if !d.PoolCost.Equal(GBPm(500)) {
		t.Errorf("PoolCost = %v, want 500", d.PoolCost)
	}
	if got := d.Gain(); !got.Equal(GBPm(500)) {
		t.Errorf("Gain() = %v, want 500", got)
	}
	pool, ok := res.Pool("ACME")
	if !ok {
		t.Fatalf("Pool(ACME) not found")
	}
	if !pool.Quantity.Equal(Q(50)) || !pool.AverageCost().Equal(GBPm(10)) {
		t.Errorf("pool = %v units at %v, want 50 at 10", pool.Quantity, pool.AverageCost())
	}
}

func TestMatchDisposals_SplitRoundTrip(t *testing.T) {
	res := MatchDisposals([]EnrichedTransaction{
		trade("b1", "2024-01-10", KindBuy, "ACME", 10, 1000),
		splitOf("s1", "2024-02-01", "ACME", 10, 1),
		splitOf("s2", "2024-03-01", "ACME", 1, 10),
	})
	pool, ok := res.Pool("ACME")
	if !ok {
		t.Fatalf("Pool(ACME) not found")
	}
	if !pool.Quantity.Equal(Q(10)) {
		t.Errorf("Quantity = %v, want 10", pool.Quantity)
	}
	if !pool.Cost.Equal(GBPm(1000)) {
		t.Errorf("Cost = %v, want 1000", pool.Cost)
	}
	if !pool.AverageCost().Equal(GBPm(100)) {
		t.Errorf("AverageCost() = %v, want 100", pool.AverageCost())
	}
}

func TestMatchDisposals_SameDayBeforePool(t *testing.T) {
	d, res := onlyDisposal(t,
		trade("b1", "2024-01-02", KindBuy, "ACME", 100, 1000),
		trade("b2", "2024-03-01", KindBuy, "ACME", 10, 200),
		trade("s1", "2024-03-01", KindSell, "ACME", 10, 250),
	)

	if !d.SameDay.Equal(Q(10)) || !d.Pool.IsZero() || !d.ThirtyDay.IsZero() {
		t.Errorf("breakdown = %v/%v/%v, want 10/0/0", d.SameDay, d.ThirtyDay, d.Pool)
	}
	if !d.Cost().Equal(GBPm(200)) {
		t.Errorf("Cost() = %v, want 200", d.Cost())
	}
	pool, _ := res.Pool("ACME")
	if !pool.Quantity.Equal(Q(100)) || !pool.Cost.Equal(GBPm(1000)) {
		t.Errorf("pool = %v units for %v, want untouched 100 for 1000", pool.Quantity, pool.Cost)
	}
}

func TestMatchDisposals_SameDayAveragesAcquisitions(t *testing.T) {
	d, res := onlyDisposal(t,
		trade("b1", "2024-03-01", KindBuy, "ACME", 10, 100),
		trade("b2", "2024-03-01", KindBuy, "ACME", 10, 300),
		trade("s1", "2024-03-01", KindSell, "ACME", 10, 250),
	)
	// Both acquisitions form one at 20 a unit.
	if !d.SameDayCost.Equal(GBPm(200)) {
		t.Errorf("SameDayCost = %v, want 200", d.SameDayCost)
	}
	pool, _ := res.Pool("ACME")
	if !pool.Quantity.Equal(Q(10)) || !pool.Cost.Equal(GBPm(200)) {
		t.Errorf("pool = %v units for %v, want 10 for 200", pool.Quantity, pool.Cost)
	}
}

func TestMatchDisposals_ThirtyDayWindow(t *testing.T) {
	testCases := []struct {
		name      string
		rebuy     string
		thirtyDay int64
	}{
		{"next day", "2024-03-02", 10},
		{"thirtieth day", "2024-03-31", 10},
		{"thirty-first day", "2024-04-01", 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, _ := onlyDisposal(t,
				trade("b1", "2024-01-02", KindBuy, "ACME", 100, 1000),
				trade("s1", "2024-03-01", KindSell, "ACME", 10, 250),
				trade("b2", tc.rebuy, KindBuy, "ACME", 10, 150),
			)
			if !d.ThirtyDay.Equal(Q(tc.thirtyDay)) {
				t.Errorf("ThirtyDay = %v, want %d", d.ThirtyDay, tc.thirtyDay)
			}
			if !d.SameDay.Add(d.ThirtyDay).Add(d.Pool).Equal(d.Quantity) {
				t.Errorf("breakdown %v+%v+%v != %v", d.SameDay, d.ThirtyDay, d.Pool, d.Quantity)
			}
		})
	}
}

func TestMatchDisposals_ThirtyDayEarliestFirstAndOnce(t *testing.T) {
	res := MatchDisposals([]EnrichedTransaction{
		trade("b0", "2024-01-02", KindBuy, "ACME", 100, 1000),
		trade("s1", "2024-03-01", KindSell, "ACME", 10, 250),
		trade("s2", "2024-03-05", KindSell, "ACME", 10, 250),
		trade("b1", "2024-03-10", KindBuy, "ACME", 5, 60),
		trade("b2", "2024-03-12", KindBuy, "ACME", 10, 150),
	})
	if len(res.Disposals) != 2 {
		t.Fatalf("got %d disposals, want 2", len(res.Disposals))
	}
	first, second := res.Disposals[0], res.Disposals[1]
	// s1 takes all of b1 and half of b2, s2 the rest of b2.
	if !first.ThirtyDay.Equal(Q(10)) || !first.ThirtyDayCost.Equal(GBPm(135)) {
		t.Errorf("first 30-day = %v for %v, want 10 for 135", first.ThirtyDay, first.ThirtyDayCost)
	}
	if !second.ThirtyDay.Equal(Q(5)) || !second.Pool.Equal(Q(5)) {
		t.Errorf("second breakdown = %v/%v, want 5 from 30-day and 5 from pool", second.ThirtyDay, second.Pool)
	}
	if !second.Cost().Equal(GBPm(125)) {
		t.Errorf("second Cost() = %v, want 75+50", second.Cost())
	}
}

func TestMatchDisposals_Fees(t *testing.T) {
	d, _ := onlyDisposal(t,
		withFee(trade("b1", "2024-01-02", KindBuy, "ACME", 10, 1000), 10),
		withFee(trade("s1", "2024-05-02", KindSell, "ACME", 10, 1500), 5),
	)
	// 1500 - (1000 + 10) - 5
	if got := d.Gain(); !got.Equal(GBPm(485)) {
		t.Errorf("Gain() = %v, want 485", got)
	}
}

func TestMatchDisposals_Underfunded(t *testing.T) {
	res := MatchDisposals([]EnrichedTransaction{
		trade("b1", "2024-01-02", KindBuy, "ACME", 4, 400),
		trade("s1", "2024-03-01", KindSell, "ACME", 10, 1500),
	})
	d := res.Disposals[0]
	if !d.Underfunded || !d.Unfunded.Equal(Q(6)) {
		t.Errorf("Underfunded = %v, Unfunded = %v, want true, 6", d.Underfunded, d.Unfunded)
	}
	if !d.Pool.Equal(Q(10)) {
		t.Errorf("Pool = %v, want 10", d.Pool)
	}
	pool, _ := res.Pool("ACME")
	if !pool.Short || !pool.Quantity.Equal(Q(-6)) {
		t.Errorf("pool = %v short=%v, want -6 short", pool.Quantity, pool.Short)
	}
	if len(res.Issues) != 1 || !errors.Is(res.Issues[0], ErrUnderfundedPool) {
		t.Errorf("Issues = %v, want one ErrUnderfundedPool", res.Issues)
	}
}

func TestMatchDisposals_ShortCoveredLater(t *testing.T) {
	short := trade("s1", "2024-01-02", KindSell, "ACME", 10, 1500)
	short.Short = true
	res := MatchDisposals([]EnrichedTransaction{
		short,
		trade("b1", "2024-03-15", KindBuy, "ACME", 4, 400),
		splitOf("x1", "2024-04-01", "ACME", 2, 1),
		trade("b2", "2024-05-15", KindBuy, "ACME", 20, 1000),
	})
	d := res.Disposals[0]
	if !d.Short || !d.Underfunded {
		t.Errorf("Short = %v, Underfunded = %v, want both", d.Short, d.Underfunded)
	}
	if len(res.Issues) != 0 {
		t.Errorf("Issues = %v, want none for a flagged short", res.Issues)
	}
	// 4 units for 400, then 12 post-split units out of 20 for 600.
	if !d.ShortCoverCost.Equal(GBPm(1000)) {
		t.Errorf("ShortCoverCost = %v, want 1000", d.ShortCoverCost)
	}
	if got := d.Gain(); !got.Equal(GBPm(500)) {
		t.Errorf("Gain() = %v, want 500", got)
	}
	pool, _ := res.Pool("ACME")
	if pool.Short || !pool.Quantity.Equal(Q(8)) || !pool.Cost.Equal(GBPm(400)) {
		t.Errorf("pool = %v units for %v short=%v, want 8 for 400", pool.Quantity, pool.Cost, pool.Short)
	}
}

func option(kind Kind, id, on string, contracts, total float64) EnrichedTransaction {
	tx := trade(id, on, kind, "", contracts, total)
	tx.Option = &OptionContract{
		Underlying: "ACME",
		Expiry:     date.New(2024, 3, 15),
		Strike:     decimal.NewFromInt(50),
		Right:      Call,
	}
	return tx
}

func TestMatchDisposals_Options(t *testing.T) {
	t.Run("written call expires", func(t *testing.T) {
		d, res := onlyDisposal(t,
			option(KindSellToOpen, "o1", "2024-01-10", 1, 300),
			option(KindExpired, "o2", "2024-03-15", 0, 0),
		)
		if d.Asset != "ACME 2024-03-15 50 C" {
			t.Errorf("Asset = %q", d.Asset)
		}
		if !d.Quantity.Equal(Q(100)) {
			t.Errorf("Quantity = %v, want 100 units", d.Quantity)
		}
		if !d.Short || len(res.Issues) != 0 {
			t.Errorf("Short = %v, Issues = %v, want a clean short", d.Short, res.Issues)
		}
		if got := d.Gain(); !got.Equal(GBPm(300)) {
			t.Errorf("Gain() = %v, want 300", got)
		}
		pool, _ := res.Pool(d.Asset)
		if !pool.Quantity.IsZero() || pool.Short {
			t.Errorf("pool = %v short=%v, want closed", pool.Quantity, pool.Short)
		}
	})
	t.Run("bought call expires", func(t *testing.T) {
		d, _ := onlyDisposal(t,
			option(KindBuyToOpen, "o1", "2024-01-10", 2, 500),
			option(KindExpired, "o2", "2024-03-15", 0, 0),
		)
		if !d.Proceeds.IsZero() || !d.Quantity.Equal(Q(200)) {
			t.Errorf("disposal = %v units for %v, want 200 for 0", d.Quantity, d.Proceeds)
		}
		if got := d.Gain(); !got.Equal(GBPm(-500)) {
			t.Errorf("Gain() = %v, want -500", got)
		}
	})
	t.Run("expiry without position", func(t *testing.T) {
		res := MatchDisposals([]EnrichedTransaction{option(KindExpired, "o2", "2024-03-15", 0, 0)})
		if len(res.Disposals) != 0 || len(res.Issues) != 1 {
			t.Errorf("got %d disposals and %d issues, want 0 and 1", len(res.Disposals), len(res.Issues))
		}
	})
}

func TestMatchDisposals_IgnoresIncomeAndUnknown(t *testing.T) {
	res := MatchDisposals([]EnrichedTransaction{
		trade("d1", "2024-01-02", KindDividend, "ACME", 0, 10),
		trade("u1", "2024-01-03", KindUnknown, "ACME", 5, 10),
		trade("f1", "2024-01-04", KindFee, "", 0, 1),
	})
	if len(res.Disposals) != 0 || len(res.Pools) != 0 || len(res.Issues) != 0 {
		t.Errorf("MatchDisposals() = %+v, want empty", res)
	}
}

// randomHistory builds a reproducible history over a few assets.
func randomHistory(seed uint64, n int) []EnrichedTransaction {
	r := rand.New(rand.NewPCG(seed, 7))
	assets := []string{"AAA", "BBB", "CCC"}
	start := date.New(2020, 1, 1)
	var txs []EnrichedTransaction
	for i := range n {
		on := start.Add(r.IntN(900)).String()
		asset := assets[r.IntN(len(assets))]
		id := fmt.Sprintf("t%03d", i)
		qty := float64(1 + r.IntN(50))
		switch k := r.IntN(10); {
		case k < 5:
			txs = append(txs, trade(id, on, KindBuy, asset, qty, qty*float64(5+r.IntN(20))))
		case k < 9:
			txs = append(txs, trade(id, on, KindSell, asset, qty, qty*float64(5+r.IntN(20))))
		default:
			txs = append(txs, splitOf(id, on, asset, int64(1+r.IntN(3)), int64(1+r.IntN(2))))
		}
	}
	return txs
}

func TestMatchDisposals_Invariants(t *testing.T) {
	for seed := range uint64(5) {
		txs := randomHistory(seed, 200)
		res := MatchDisposals(txs)
		for _, d := range res.Disposals {
			if sum := d.SameDay.Add(d.ThirtyDay).Add(d.Pool); !sum.Equal(d.Quantity) {
				t.Errorf("seed %d: %s breakdown sums to %v, want %v", seed, d.TransactionID, sum, d.Quantity)
			}
			if d.Underfunded && !d.Unfunded.IsPositive() {
				t.Errorf("seed %d: %s underfunded without unfunded units", seed, d.TransactionID)
			}
		}
		for _, p := range res.Pools {
			if !p.Short && p.Quantity.IsNegative() {
				t.Errorf("seed %d: pool %s negative without short flag: %v", seed, p.Asset, p.Quantity)
			}
		}
		for i := 1; i < len(res.Disposals); i++ {
			if res.Disposals[i].Date.Before(res.Disposals[i-1].Date) {
				t.Errorf("seed %d: disposals out of order at %d", seed, i)
			}
		}
	}
}

func TestMatchDisposals_Idempotent(t *testing.T) {
	txs := randomHistory(42, 150)
	first := MatchDisposals(txs)
	second := MatchDisposals(txs)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("MatchDisposals() is not idempotent")
	}
}
