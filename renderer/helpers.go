package renderer

import (
	"bytes"
	"io"

	"github.com/etnz/cgt"
)

// ConditionalBlock let you fully write a block and decide at the end to print it or not.
// If the block function returns true, the content is printed to w, otherwise it is discarded.
func ConditionalBlock(w io.Writer, block func(io.Writer) bool) {
	bw := &bytes.Buffer{}
	if block(bw) {
		io.Copy(w, bw)
	}
}

// gbp formats an amount rounded to the penny.
func gbp(m cgt.Money) string {
	if m.Currency() == "" {
		m = cgt.M(m.Decimal(), cgt.GBP)
	}
	return m.Round().String()
}

// part formats the share of a disposal matched by one rule.
func part(q cgt.Quantity, cost cgt.Money) string {
	if q.IsZero() {
		return "-"
	}
	return q.String() + " @ " + gbp(cost)
}
