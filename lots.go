package cgt

import "github.com/etnz/cgt/date"

// lot is an open short position: disposed units not yet covered by a later
// acquisition.
type lot struct {
	disposal int // index of the short disposal
	Date     date.Date
	Quantity Quantity
}

type lots []lot

// take consumes up to q units from the oldest lots first. It returns the
// consumed portions and the lots left open.
func (l lots) take(q Quantity) (taken, rest lots) {
	for _, current := range l {
		if !q.IsPositive() {
			rest = append(rest, current)
			continue
		}
		if current.Quantity.GreaterThan(q) {
			// Partial cover of this lot.
			taken = append(taken, lot{disposal: current.disposal, Date: current.Date, Quantity: q})
			current.Quantity = current.Quantity.Sub(q)
			rest = append(rest, current)
			q = Q(0)
		} else {
			taken = append(taken, current)
			q = q.Sub(current.Quantity)
		}
	}
	return taken, rest
}

// split scales every open lot by the split ratio.
func (l lots) split(r Ratio) lots {
	for i := range l {
		l[i].Quantity = l[i].Quantity.Mul(Q(r.New)).Div(Q(r.Old))
	}
	return l
}
