package cgt

import (
	"github.com/etnz/cgt/date"
	"github.com/shopspring/decimal"
)

// GBPm is a helper for test to create sterling money from const
func GBPm(v float64) Money { return M(v, GBP) }

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// trade builds a sterling transaction already enriched at rate 1.
func trade(id, on string, kind Kind, asset string, quantity, total float64) EnrichedTransaction {
	tx := Transaction{
		ID:       id,
		Date:     date.MustParse(on),
		Kind:     kind,
		Asset:    asset,
		Quantity: Q(quantity),
		Currency: GBP,
		Total:    GBPm(total),
	}
	return tx.Enrich(decimal.NewFromInt(1), "", "test")
}

// splitOf builds a STOCK_SPLIT of ratio n:m.
func splitOf(id, on, asset string, n, m int64) EnrichedTransaction {
	tx := Transaction{
		ID:         id,
		Date:       date.MustParse(on),
		Kind:       KindStockSplit,
		Asset:      asset,
		Currency:   GBP,
		SplitRatio: Ratio{New: decimal.NewFromInt(n), Old: decimal.NewFromInt(m)},
	}
	return tx.Enrich(decimal.NewFromInt(1), "", "test")
}

// withFee returns tx with a sterling fee.
func withFee(tx EnrichedTransaction, fee float64) EnrichedTransaction {
	tx.Fee = GBPm(fee)
	tx.FeeGBP = GBPm(fee)
	return tx
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
