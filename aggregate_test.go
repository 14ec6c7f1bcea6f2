package cgt

import (
	"testing"

	"github.com/etnz/cgt/date"
	"github.com/shopspring/decimal"
)

func TestAllowances(t *testing.T) {
	testCases := []struct {
		year      date.TaxYear
		exempt    float64
		dividends float64
	}{
		{2005, 10600, 0},
		{2015, 11100, 0},
		{2016, 11100, 5000},
		{2017, 11300, 5000},
		{2018, 11700, 2000},
		{2020, 12300, 2000},
		{2022, 12300, 2000},
		{2023, 6000, 1000},
		{2024, 3000, 500},
		{2025, 3000, 500},
		{2031, 3000, 500},
	}
	for _, tc := range testCases {
		if got := AnnualExemptAmount(tc.year); !got.Equal(GBPm(tc.exempt)) {
			t.Errorf("AnnualExemptAmount(%v) = %v, want %v", tc.year, got, tc.exempt)
		}
		if got := DividendAllowance(tc.year); !got.Equal(GBPm(tc.dividends)) {
			t.Errorf("DividendAllowance(%v) = %v, want %v", tc.year, got, tc.dividends)
		}
	}
}

// usd builds a dollar transaction enriched at rate dollars per pound.
func usd(tx Transaction, rate float64) EnrichedTransaction {
	tx.Currency = "USD"
	return tx.Enrich(decimal.NewFromFloat(rate), tx.Date.Format("2006-01"), "test")
}

func TestSummarize_DividendWithholding(t *testing.T) {
	txs := []EnrichedTransaction{
		usd(Transaction{ID: "1", Date: date.MustParse("2024-02-15"), Kind: KindBuy, Asset: "ACME", Quantity: Q(100), Price: USD(170), Total: USD(17000)}, 1.25),
		usd(Transaction{ID: "2", Date: date.MustParse("2024-06-17"), Kind: KindSell, Asset: "ACME", Quantity: Q(-50), Price: USD(180), Total: USD(9000)}, 1.25),
		usd(Transaction{ID: "3", Date: date.MustParse("2024-09-16"), Kind: KindDividend, Asset: "ACME", Total: USD(21.25), GrossDividend: USD(25), WithholdingTax: USD(3.75)}, 1.25),
	}
	matching := MatchDisposals(txs)
	summaries := Summarize(txs, matching.Disposals)

	if len(summaries) != 1 {
		t.Fatalf("Summarize() = %d years, want 1", len(summaries))
	}
	s := summaries[0]
	if s.Label() != "2024/25" {
		t.Errorf("Label() = %q, want 2024/25", s.Label())
	}
	if s.Disposals != 1 {
		t.Errorf("Disposals = %d, want 1", s.Disposals)
	}
	// 9000/1.25 - 50*(17000/1.25)/100
	if !s.Gains.Equal(GBPm(400)) {
		t.Errorf("Gains = %v, want 400", s.Gains)
	}
	if s.Dividends.Count != 1 {
		t.Errorf("Dividends.Count = %d, want 1", s.Dividends.Count)
	}
	if got := txs[2].Net(); !got.Equal(USD(21.25)) {
		t.Errorf("native Net() = %v, want 21.25", got)
	}
	div := s.Dividends
	if !div.Gross.Equal(GBPm(20)) || !div.Withholding.Equal(GBPm(3)) || !div.Net.Equal(GBPm(17)) {
		t.Errorf("dividends = %v/%v/%v, want 20/3/17", div.Gross, div.Withholding, div.Net)
	}
	if ratio := div.Withholding.Decimal().Div(div.Gross.Decimal()); !ratio.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("withholding ratio = %v, want 0.15", ratio)
	}
	if s.SA106 == nil {
		t.Fatalf("SA106 missing for a foreign dividend")
	}
	if !s.SA106.Net.Equal(s.SA106.Gross.Sub(s.SA106.Withholding)) {
		t.Errorf("SA106 net %v != %v - %v", s.SA106.Net, s.SA106.Gross, s.SA106.Withholding)
	}
}

func TestSummarize_SA106OnlyForForeignIncome(t *testing.T) {
	txs := []EnrichedTransaction{
		trade("d1", "2024-09-16", KindDividend, "VOD", 0, 100),
		trade("i1", "2024-10-01", KindInterest, "", 0, 12),
	}
	s := Summarize(txs, nil)[0]
	if s.SA106 != nil {
		t.Errorf("SA106 = %+v, want nil for sterling income", s.SA106)
	}
	if !s.Interest.Equal(GBPm(12)) {
		t.Errorf("Interest = %v, want 12", s.Interest)
	}
	// 100 less the 500 allowance of 2024/25.
	if !s.Dividends.Taxable.IsZero() {
		t.Errorf("Taxable = %v, want 0", s.Dividends.Taxable)
	}
}

func TestMergeDividendTaxes(t *testing.T) {
	on := date.MustParse("2024-09-16")
	dividend := usd(Transaction{ID: "d", Date: on, Kind: KindDividend, Asset: "ACME", Total: USD(25)}, 1.25)
	nra := usd(Transaction{ID: "n", Date: on, Kind: KindTaxOnDividend, Asset: "ACME", Total: USD(3.75)}, 1.25)
	orphan := usd(Transaction{ID: "o", Date: on, Kind: KindTaxOnDividend, Asset: "OTHER", Total: USD(1.25)}, 1.25)

	merged := MergeDividendTaxes([]EnrichedTransaction{dividend, nra, orphan})
	if len(merged) != 2 {
		t.Fatalf("MergeDividendTaxes() kept %d records, want 2", len(merged))
	}
	if got := merged[0]; !got.WithholdingTaxGBP.Equal(GBPm(3)) || !got.Net().Equal(USD(21.25)) {
		t.Errorf("merged dividend withholding = %v, net = %v, want 3 and 21.25", got.WithholdingTaxGBP, got.Net())
	}
	if merged[1].ID != "o" {
		t.Errorf("unmatched record = %q, want o", merged[1].ID)
	}
	if !dividend.WithholdingTaxGBP.IsZero() {
		t.Errorf("input dividend was modified")
	}

	s := Summarize([]EnrichedTransaction{dividend, nra, orphan}, nil)[0]
	if !s.Dividends.Withholding.Equal(GBPm(4)) {
		t.Errorf("Withholding = %v, want 3 + 1", s.Dividends.Withholding)
	}
	if !s.SA106.Withholding.Equal(GBPm(4)) || !s.SA106.Net.Equal(GBPm(16)) {
		t.Errorf("SA106 = %+v, want withholding 4 and net 16", *s.SA106)
	}
}

func gain(on string, amount float64) Disposal {
	return Disposal{Date: date.MustParse(on), Proceeds: GBPm(amount)}
}

func TestSummarize_LossCarryForward(t *testing.T) {
	disposals := []Disposal{
		gain("2022-05-01", -5000), // 2022/23
		gain("2023-05-01", 4000),  // 2023/24, below the 6000 exemption
		gain("2024-05-01", 12000), // 2024/25
		gain("2024-06-01", -2000),
	}
	years := Summarize(nil, disposals)
	if len(years) != 3 {
		t.Fatalf("Summarize() = %d years, want 3", len(years))
	}
	y22, y23, y24 := years[0], years[1], years[2]

	if !y22.LossGenerated.Equal(GBPm(5000)) || !y22.LossesCarriedForward.Equal(GBPm(5000)) {
		t.Errorf("2022/23 generated %v carried %v, want 5000/5000", y22.LossGenerated, y22.LossesCarriedForward)
	}
	if !y23.LossesUsed.IsZero() || !y23.ChargeableGain.IsZero() {
		t.Errorf("2023/24 used %v chargeable %v, want 0/0", y23.LossesUsed, y23.ChargeableGain)
	}
	if !y24.NetGain.Equal(GBPm(10000)) {
		t.Errorf("2024/25 NetGain = %v, want 10000", y24.NetGain)
	}
	if !y24.LossesBroughtForward.Equal(GBPm(5000)) || !y24.LossesUsed.Equal(GBPm(5000)) {
		t.Errorf("2024/25 brought %v used %v, want 5000/5000", y24.LossesBroughtForward, y24.LossesUsed)
	}
	// 10000 - 3000 exemption - 5000 losses
	if !y24.ChargeableGain.Equal(GBPm(2000)) {
		t.Errorf("2024/25 ChargeableGain = %v, want 2000", y24.ChargeableGain)
	}
	if !y24.LossesCarriedForward.IsZero() {
		t.Errorf("2024/25 LossesCarriedForward = %v, want 0", y24.LossesCarriedForward)
	}
}

func TestSummarize_LossesOldestFirst(t *testing.T) {
	years := Summarize(nil, []Disposal{
		gain("2020-05-01", -1000),
		gain("2021-05-01", -2000),
		gain("2024-05-01", 4500), // 1500 usable above the exemption
	})
	last := years[len(years)-1]
	if !last.LossesUsed.Equal(GBPm(1500)) || !last.LossesCarriedForward.Equal(GBPm(1500)) {
		t.Errorf("used %v carried %v, want 1500/1500", last.LossesUsed, last.LossesCarriedForward)
	}
}

func TestSummarize_UnderfundedDoesNotFail(t *testing.T) {
	res := MatchDisposals([]EnrichedTransaction{trade("s1", "2024-06-03", KindSell, "ACME", 10, 100)})
	years := Summarize(nil, res.Disposals)
	if len(years) != 1 || years[0].Underfunded != 1 {
		t.Errorf("Summarize() = %+v, want one year with one underfunded disposal", years)
	}
}
