package cgt

import (
	"cmp"
	"slices"

	"github.com/etnz/cgt/date"
)

// DividendSummary aggregates the dividends paid in a tax year, in GBP.
type DividendSummary struct {
	Count       int
	Gross       Money
	Withholding Money
	Net         Money // Gross - Withholding
	Allowance   Money
	Taxable     Money // Gross less the allowance, never negative
}

// SA106 holds the foreign dividend figures of a tax year, in GBP.
type SA106 struct {
	Gross       Money
	Withholding Money
	Net         Money // Gross - Withholding
}

// TaxYearSummary aggregates the tax outcome of one UK tax year. All amounts are GBP.
type TaxYearSummary struct {
	Year date.TaxYear

	Disposals   int
	Underfunded int
	Gains       Money // sum of the gains of profitable disposals
	Losses      Money // sum of the losses, as a positive amount
	NetGain     Money // Gains - Losses, negative for a net loss

	AnnualExemptAmount   Money
	LossesBroughtForward Money
	LossesUsed           Money
	LossGenerated        Money
	LossesCarriedForward Money
	ChargeableGain       Money

	Dividends DividendSummary
	Interest  Money
	Fees      Money
	OtherTax  Money
	// SA106 is set only when foreign dividends were received.
	SA106 *SA106

	foreignGross, foreignWithholding Money
}

// Label returns the "YYYY/YY" tax year label.
func (s TaxYearSummary) Label() string { return s.Year.String() }

func newSummary(y date.TaxYear) *TaxYearSummary {
	zero := M(0, GBP)
	return &TaxYearSummary{
		Year:                 y,
		Gains:                zero,
		Losses:               zero,
		NetGain:              zero,
		AnnualExemptAmount:   AnnualExemptAmount(y),
		LossesBroughtForward: zero,
		LossesUsed:           zero,
		LossGenerated:        zero,
		LossesCarriedForward: zero,
		ChargeableGain:       zero,
		Dividends: DividendSummary{
			Gross: zero, Withholding: zero, Net: zero,
			Allowance: DividendAllowance(y), Taxable: zero,
		},
		Interest:           zero,
		Fees:               zero,
		OtherTax:           zero,
		foreignGross:       zero,
		foreignWithholding: zero,
	}
}

// MergeDividendTaxes folds each TAX_ON_DIVIDEND record into the dividend of
// the same asset and date as additional withholding. Records with no such
// dividend, or carrying their own gross figure, are kept.
func MergeDividendTaxes(txs []EnrichedTransaction) []EnrichedTransaction {
	type key struct {
		asset AssetID
		on    date.Date
	}
	out := slices.Clone(txs)
	dividends := make(map[key]int)
	for i, tx := range out {
		if tx.Kind == KindDividend {
			dividends[key{tx.AssetID(), tx.Date}] = i
		}
	}

	merged := make([]EnrichedTransaction, 0, len(out))
	for _, tx := range out {
		if tx.Kind != KindTaxOnDividend || !tx.GrossDividend.IsZero() {
			continue
		}
		j, ok := dividends[key{tx.AssetID(), tx.Date}]
		if !ok {
			continue
		}
		d := &out[j]
		d.WithholdingTaxGBP = d.WithholdingTaxGBP.Add(tx.TotalGBP)
		if d.Currency == tx.Currency {
			d.WithholdingTax = d.WithholdingTax.Add(tx.Total)
		}
	}
	for _, tx := range out {
		if tx.Kind == KindTaxOnDividend && tx.GrossDividend.IsZero() {
			if _, ok := dividends[key{tx.AssetID(), tx.Date}]; ok {
				continue
			}
		}
		merged = append(merged, tx)
	}
	return merged
}

// Summarize buckets disposals and income into UK tax years and computes the
// gains after the annual exempt amount and losses carried forward. txs must
// be GBP enriched; unresolved transactions are left out by the caller.
func Summarize(txs []EnrichedTransaction, disposals []Disposal) []TaxYearSummary {
	years := make(map[date.TaxYear]*TaxYearSummary)
	year := func(on date.Date) *TaxYearSummary {
		y := date.TaxYearOf(on)
		s, ok := years[y]
		if !ok {
			s = newSummary(y)
			years[y] = s
		}
		return s
	}

	for _, d := range disposals {
		s := year(d.Date)
		s.Disposals++
		if d.Underfunded {
			s.Underfunded++
		}
		if g := d.Gain(); g.IsNegative() {
			s.Losses = s.Losses.Add(g.Neg())
		} else {
			s.Gains = s.Gains.Add(g)
		}
	}

	for _, tx := range MergeDividendTaxes(txs) {
		switch tx.Kind {
		case KindDividend:
			s := year(tx.Date)
			s.Dividends.Count++
			s.Dividends.Gross = s.Dividends.Gross.Add(tx.GrossDividendGBP)
			s.Dividends.Withholding = s.Dividends.Withholding.Add(tx.WithholdingTaxGBP)
			if tx.Currency != GBP {
				s.foreignGross = s.foreignGross.Add(tx.GrossDividendGBP)
				s.foreignWithholding = s.foreignWithholding.Add(tx.WithholdingTaxGBP)
			}
		case KindTaxOnDividend:
			s := year(tx.Date)
			withholding := tx.WithholdingTaxGBP
			if withholding.IsZero() {
				withholding = tx.TotalGBP
			}
			s.Dividends.Withholding = s.Dividends.Withholding.Add(withholding)
			if tx.Currency != GBP {
				s.foreignWithholding = s.foreignWithholding.Add(withholding)
			}
		case KindInterest:
			s := year(tx.Date)
			s.Interest = s.Interest.Add(tx.TotalGBP)
		case KindFee:
			s := year(tx.Date)
			s.Fees = s.Fees.Add(tx.TotalGBP)
		case KindTax:
			s := year(tx.Date)
			s.OtherTax = s.OtherTax.Add(tx.TotalGBP)
		}
	}

	summaries := make([]TaxYearSummary, 0, len(years))
	for _, s := range years {
		summaries = append(summaries, *s)
	}
	slices.SortFunc(summaries, func(a, b TaxYearSummary) int { return cmp.Compare(a.Year, b.Year) })

	var carried lossQueue
	for i := range summaries {
		summaries[i].settle(&carried)
	}
	return summaries
}

// settle computes the derived figures of the year and updates the losses
// carried forward.
func (s *TaxYearSummary) settle(carried *lossQueue) {
	zero := M(0, GBP)
	s.Dividends.Net = s.Dividends.Gross.Sub(s.Dividends.Withholding)
	s.Dividends.Taxable = s.Dividends.Gross.Sub(s.Dividends.Allowance).Max(zero)
	if s.foreignGross.IsPositive() {
		s.SA106 = &SA106{
			Gross:       s.foreignGross,
			Withholding: s.foreignWithholding,
			Net:         s.foreignGross.Sub(s.foreignWithholding),
		}
	}

	s.NetGain = s.Gains.Sub(s.Losses)
	s.LossesBroughtForward = carried.total()
	switch {
	case s.NetGain.IsNegative():
		s.LossGenerated = s.NetGain.Neg()
		carried.push(s.Year, s.LossGenerated)
	default:
		// Brought forward losses only bring the gain down to the exempt amount.
		usable := s.NetGain.Sub(s.AnnualExemptAmount).Max(zero)
		s.LossesUsed = carried.use(usable)
		s.ChargeableGain = usable.Sub(s.LossesUsed)
	}
	s.LossesCarriedForward = carried.total()
}

// lossQueue holds unused losses, oldest first.
type lossQueue []yearLoss

type yearLoss struct {
	year   date.TaxYear
	amount Money
}

func (q *lossQueue) push(y date.TaxYear, amount Money) {
	*q = append(*q, yearLoss{year: y, amount: amount})
}

// use consumes up to amount from the oldest losses and returns what was used.
func (q *lossQueue) use(amount Money) Money {
	used := M(0, GBP)
	for len(*q) > 0 && amount.IsPositive() {
		head := &(*q)[0]
		take := head.amount.Min(amount)
		head.amount = head.amount.Sub(take)
		amount = amount.Sub(take)
		used = used.Add(take)
		if !head.amount.IsPositive() {
			*q = (*q)[1:]
		}
	}
	return used
}

func (q lossQueue) total() Money {
	t := M(0, GBP)
	for _, l := range q {
		t = t.Add(l.amount)
	}
	return t
}
