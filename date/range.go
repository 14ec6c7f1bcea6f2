package date

import "fmt"

// Range represents a range of dates, boundaries included.
type Range struct{ From, To Date }

// NewRange return the period range containing d.
func NewRange(d Date, period Period) Range {
	return Range{From: d.StartOf(period), To: d.EndOf(period)}
}

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }

// Days returns the number of days in the range.
func (r Range) Days() int { return r.To.DaysSince(r.From) + 1 }

// Extend returns the smallest range containing both r and d.
// The zero Range extends to the single day d.
func (r Range) Extend(d Date) Range {
	if r.From.IsZero() || d.Before(r.From) {
		r.From = d
	}
	if r.To.IsZero() || d.After(r.To) {
		r.To = d
	}
	return r
}

// Split cuts the range into consecutive chunks of at most n days.
func (r Range) Split(n int) []Range {
	if n <= 0 || r.To.Before(r.From) {
		return nil
	}
	var chunks []Range
	for from := r.From; !from.After(r.To); from = from.Add(n) {
		to := from.Add(n - 1)
		if to.After(r.To) {
			to = r.To
		}
		chunks = append(chunks, Range{From: from, To: to})
	}
	return chunks
}

// return the period of this range if it's a standard one.
func (r Range) Period() (p Period, ok bool) {
	switch {
	case r.From == r.To:
		return Daily, true
	case r.From.Day() == 1 && r.From.EndOf(Monthly) == r.To:
		return Monthly, true
	case r.From.StartOf(Yearly) == r.From && r.From.EndOf(Yearly) == r.To:
		return Yearly, true
	default:
		return Daily, false
	}
}

// Identifier compute a unique identifier for the Range.
// Standard periods get a short name: 2024-06-17, 2024-06 or 2024.
func (r Range) Identifier() string {
	p, ok := r.Period()
	if !ok {
		return fmt.Sprintf("%s_%s", r.From, r.To)
	}

	switch p {
	case Daily:
		return r.From.String()
	case Monthly:
		return r.From.Format("2006-01")
	case Yearly:
		return r.From.Format("2006")
	default:
		panic("unknown period")
	}
}

// Key returns the identifier of the period containing d.
func Key(d Date, p Period) string { return NewRange(d, p).Identifier() }
