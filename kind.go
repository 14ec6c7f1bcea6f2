package cgt

import (
	"encoding/json"
	"strings"
)

// Kind is a typed string identifying what a transaction does.
type Kind string

// Transaction kinds produced by normalizers.
const (
	KindBuy           Kind = "BUY"
	KindSell          Kind = "SELL"
	KindDividend      Kind = "DIVIDEND"
	KindTaxOnDividend Kind = "TAX_ON_DIVIDEND"
	KindFee           Kind = "FEE"
	KindInterest      Kind = "INTEREST"
	KindTransfer      Kind = "TRANSFER"
	KindTax           Kind = "TAX"
	KindStockSplit    Kind = "STOCK_SPLIT"

	KindBuyToOpen   Kind = "OPTIONS_BUY_TO_OPEN"
	KindSellToOpen  Kind = "OPTIONS_SELL_TO_OPEN"
	KindBuyToClose  Kind = "OPTIONS_BUY_TO_CLOSE"
	KindSellToClose Kind = "OPTIONS_SELL_TO_CLOSE"
	KindAssigned    Kind = "OPTIONS_ASSIGNED"
	KindExpired     Kind = "OPTIONS_EXPIRED"
	KindExercised   Kind = "OPTIONS_EXERCISED"

	KindUnknown Kind = "UNKNOWN"
)

var knownKinds = map[Kind]bool{
	KindBuy: true, KindSell: true, KindDividend: true, KindTaxOnDividend: true,
	KindFee: true, KindInterest: true, KindTransfer: true, KindTax: true,
	KindStockSplit: true, KindBuyToOpen: true, KindSellToOpen: true,
	KindBuyToClose: true, KindSellToClose: true, KindAssigned: true,
	KindExpired: true, KindExercised: true,
}

// Known reports whether k is one of the recognised kinds.
func (k Kind) Known() bool { return knownKinds[k] }

// IsOption reports whether k only applies to options contracts.
func (k Kind) IsOption() bool { return strings.HasPrefix(string(k), "OPTIONS_") }

// IsTrade reports whether k takes part in share matching.
func (k Kind) IsTrade() bool {
	switch k {
	case KindBuy, KindSell, KindBuyToOpen, KindSellToOpen, KindBuyToClose,
		KindSellToClose, KindAssigned, KindExpired, KindExercised:
		return true
	}
	return false
}

// closesAtZero reports whether k closes an option position without consideration.
func (k Kind) closesAtZero() bool {
	return k == KindAssigned || k == KindExpired || k == KindExercised
}

// UnmarshalJSON reads a kind; unrecognised names become KindUnknown.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*k = Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Known() {
		*k = KindUnknown
	}
	return nil
}
