package cgt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/etnz/cgt/date"
	"github.com/shopspring/decimal"
)

// Transaction is an immutable normalized brokerage event.
//
// Amounts are expressed in Currency. Total and Fee are absolute values;
// Quantity is signed as the broker reported it.
type Transaction struct {
	ID             string
	Source         string
	Asset          string // ticker or crypto code, ignored when Option is set.
	Date           date.Date
	Kind           Kind
	Quantity       Quantity
	Price          Money
	Currency       string
	Total          Money
	Fee            Money
	SplitRatio     Ratio
	GrossDividend  Money
	WithholdingTax Money
	Short          bool
	Option         *OptionContract
}

// AssetID returns the identity used to group the transaction for matching.
func (t Transaction) AssetID() AssetID {
	if t.Option != nil {
		return t.Option.ID()
	}
	return AssetID(strings.ToUpper(strings.TrimSpace(t.Asset)))
}

// Units returns the unsigned number of units moved by the transaction.
// Option contracts are scaled by their multiplier.
func (t Transaction) Units() Quantity {
	q := t.Quantity.Abs()
	if t.Option != nil {
		q = q.Mul(Q(t.Option.units()))
	}
	return q
}

// Gross returns the gross dividend, defaulting to the total.
func (t Transaction) Gross() Money {
	if !t.GrossDividend.IsZero() {
		return t.GrossDividend
	}
	return t.Total
}

// Net returns gross minus withholding.
func (t Transaction) Net() Money { return t.Gross().Sub(t.WithholdingTax) }

// Validate checks the normalizer contract for a single record.
func (t Transaction) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w %q: %s", ErrInvalidTransaction, t.ID, fmt.Sprintf(format, args...))
	}
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTransaction)
	}
	if t.Date.IsZero() {
		return invalid("missing date")
	}
	if t.Kind == "" {
		return invalid("missing kind")
	}
	if err := ValidateCurrency(t.Currency); err != nil {
		return invalid("%v", err)
	}
	if t.Kind.IsOption() {
		if t.Option == nil {
			return invalid("%s without option contract", t.Kind)
		}
		if err := t.Option.validate(); err != nil {
			return invalid("%v", err)
		}
	}
	switch t.Kind {
	case KindBuy, KindSell, KindBuyToOpen, KindSellToOpen, KindBuyToClose, KindSellToClose:
		if t.Quantity.IsZero() {
			return invalid("%s without quantity", t.Kind)
		}
	}
	if t.Kind.IsTrade() || t.Kind == KindStockSplit {
		if t.AssetID() == "" {
			return invalid("%s without asset", t.Kind)
		}
	}
	if t.Kind == KindStockSplit && t.SplitRatio.IsZero() {
		return invalid("split without ratio")
	}
	return nil
}

// record is the wire form of a Transaction.
type record struct {
	ID             string          `json:"id"`
	Source         string          `json:"source"`
	Asset          string          `json:"asset"`
	Date           date.Date       `json:"date"`
	Kind           Kind            `json:"kind"`
	Quantity       decimal.Decimal `json:"quantity"`
	PricePerUnit   decimal.Decimal `json:"pricePerUnit"`
	Currency       string          `json:"currency"`
	TotalNative    decimal.Decimal `json:"totalNative"`
	FeeNative      decimal.Decimal `json:"feeNative"`
	SplitRatio     *Ratio          `json:"splitRatio"`
	GrossDividend  decimal.Decimal `json:"grossDividend"`
	WithholdingTax decimal.Decimal `json:"withholdingTax"`
	Short          bool            `json:"short"`
	Option         *OptionContract `json:"option"`
}

func (t *Transaction) UnmarshalJSON(b []byte) error {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	cur := strings.ToUpper(strings.TrimSpace(r.Currency))
	*t = Transaction{
		ID:             r.ID,
		Source:         r.Source,
		Asset:          r.Asset,
		Date:           r.Date,
		Kind:           r.Kind,
		Quantity:       Q(r.Quantity),
		Price:          M(r.PricePerUnit, cur),
		Currency:       cur,
		Total:          M(r.TotalNative.Abs(), cur),
		Fee:            M(r.FeeNative.Abs(), cur),
		GrossDividend:  M(r.GrossDividend.Abs(), cur),
		WithholdingTax: M(r.WithholdingTax.Abs(), cur),
		Short:          r.Short,
		Option:         r.Option,
	}
	if r.SplitRatio != nil {
		t.SplitRatio = *r.SplitRatio
	}
	return nil
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", t.ID)
	w.Optional("source", t.Source)
	w.Optional("asset", t.Asset)
	w.Append("date", t.Date)
	w.Append("kind", t.Kind)
	w.Optional("quantity", t.Quantity.Decimal())
	w.Optional("pricePerUnit", t.Price.Decimal())
	w.Append("currency", t.Currency)
	w.Optional("totalNative", t.Total.Decimal())
	w.Optional("feeNative", t.Fee.Decimal())
	if !t.SplitRatio.IsZero() {
		w.Append("splitRatio", t.SplitRatio)
	}
	w.Optional("grossDividend", t.GrossDividend.Decimal())
	w.Optional("withholdingTax", t.WithholdingTax.Decimal())
	w.Optional("short", t.Short)
	if t.Option != nil {
		w.Append("option", t.Option)
	}
	return w.MarshalJSON()
}

// EnrichedTransaction is a Transaction with its amounts converted to GBP.
type EnrichedTransaction struct {
	Transaction
	TotalGBP          Money
	FeeGBP            Money
	GrossDividendGBP  Money
	WithholdingTaxGBP Money
	FXRate            decimal.Decimal // units of Currency per 1 GBP
	FXDateKey         string
	FXSource          string
}

// Enrich converts t's amounts with rate, expressed in units of t.Currency per 1 GBP.
func (t Transaction) Enrich(rate decimal.Decimal, dateKey, source string) EnrichedTransaction {
	if t.Currency == GBP {
		rate = decimal.NewFromInt(1)
	}
	return EnrichedTransaction{
		Transaction:       t,
		TotalGBP:          t.Total.ToGBP(rate),
		FeeGBP:            t.Fee.ToGBP(rate),
		GrossDividendGBP:  t.Gross().ToGBP(rate),
		WithholdingTaxGBP: t.WithholdingTax.ToGBP(rate),
		FXRate:            rate,
		FXDateKey:         dateKey,
		FXSource:          source,
	}
}

// NetDividendGBP returns gross minus withholding in GBP.
func (e EnrichedTransaction) NetDividendGBP() Money {
	return e.GrossDividendGBP.Sub(e.WithholdingTaxGBP)
}

func (e EnrichedTransaction) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.EmbedFrom(e.Transaction)
	w.Append("totalGBP", e.TotalGBP.Round().Decimal())
	w.Optional("feeGBP", e.FeeGBP.Round().Decimal())
	if e.Kind == KindDividend || e.Kind == KindTaxOnDividend {
		w.Append("grossDividendGBP", e.GrossDividendGBP.Round().Decimal())
		w.Append("withholdingTaxGBP", e.WithholdingTaxGBP.Round().Decimal())
	}
	w.Append("fxRate", e.FXRate)
	w.Optional("fxDateKey", e.FXDateKey)
	w.Optional("fxSource", e.FXSource)
	return w.MarshalJSON()
}
