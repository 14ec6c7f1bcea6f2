package cgt

import "fmt"

// Rule identifies the HMRC share matching rule that matched part of a disposal.
type Rule int

const (
	// SameDay matches acquisitions made on the day of the disposal.
	SameDay Rule = iota
	// ThirtyDay matches acquisitions made in the 30 days following the disposal.
	ThirtyDay
	// Section104 matches the remainder against the pooled holding at average cost.
	Section104
)

func (r Rule) String() string {
	switch r {
	case SameDay:
		return "same-day"
	case ThirtyDay:
		return "30-day"
	case Section104:
		return "pool"
	default:
		return "unknown"
	}
}

// ParseRule parses a string into a Rule.
func ParseRule(s string) (Rule, error) {
	switch s {
	case "same-day":
		return SameDay, nil
	case "30-day":
		return ThirtyDay, nil
	case "pool":
		return Section104, nil
	default:
		return 0, fmt.Errorf("unknown matching rule: %q", s)
	}
}

func (r Rule) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
