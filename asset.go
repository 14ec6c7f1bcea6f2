package cgt

import (
	"fmt"
	"strings"

	"github.com/etnz/cgt/date"
	"github.com/shopspring/decimal"
)

// AssetID is the canonical identity of an asset for matching purposes:
// a ticker symbol, a crypto asset code, or an option contract identity.
type AssetID string

// Right is the type of an option contract.
type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

// OptionContract describes an options contract.
type OptionContract struct {
	Underlying string          `json:"underlying"`
	Expiry     date.Date       `json:"expiry"`
	Strike     decimal.Decimal `json:"strike"`
	Right      Right           `json:"right"`
	Multiplier decimal.Decimal `json:"multiplier,omitzero"`
}

// ID returns the contract identity "UNDERLYING EXPIRY STRIKE C|P".
func (o OptionContract) ID() AssetID {
	return AssetID(fmt.Sprintf("%s %s %s %s", strings.ToUpper(o.Underlying), o.Expiry, o.Strike, o.Right))
}

// units returns the number of underlying units per contract, 100 by default.
func (o OptionContract) units() decimal.Decimal {
	if o.Multiplier.IsZero() {
		return decimal.NewFromInt(100)
	}
	return o.Multiplier
}

func (o OptionContract) validate() error {
	if o.Underlying == "" {
		return fmt.Errorf("option without underlying")
	}
	if o.Expiry.IsZero() {
		return fmt.Errorf("option without expiry")
	}
	if o.Right != Call && o.Right != Put {
		return fmt.Errorf("invalid option right %q", o.Right)
	}
	if !o.Strike.IsPositive() {
		return fmt.Errorf("invalid option strike %s", o.Strike)
	}
	return nil
}

// Ratio is a split ratio new:old.
type Ratio struct {
	New, Old decimal.Decimal
}

// ParseRatio parses "n:m".
func ParseRatio(s string) (Ratio, error) {
	n, m, ok := strings.Cut(s, ":")
	if !ok {
		return Ratio{}, fmt.Errorf("invalid ratio %q want new:old", s)
	}
	num, err := decimal.NewFromString(strings.TrimSpace(n))
	if err != nil {
		return Ratio{}, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	den, err := decimal.NewFromString(strings.TrimSpace(m))
	if err != nil {
		return Ratio{}, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	if !num.IsPositive() || !den.IsPositive() {
		return Ratio{}, fmt.Errorf("invalid ratio %q: terms must be positive", s)
	}
	return Ratio{New: num, Old: den}, nil
}

// IsZero reports whether r is unset.
func (r Ratio) IsZero() bool { return r.New.IsZero() && r.Old.IsZero() }

// Factor returns new/old.
func (r Ratio) Factor() Quantity { return Q(r.New).Div(Q(r.Old)) }

func (r Ratio) String() string { return r.New.String() + ":" + r.Old.String() }

func (r Ratio) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Ratio) UnmarshalText(b []byte) error {
	parsed, err := ParseRatio(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
