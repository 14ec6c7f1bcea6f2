package fx

import (
	"errors"
	"fmt"
)

var (
	// ErrRateUnavailable reports a rate that is not published, yet or at all.
	// It is not retried automatically.
	ErrRateUnavailable = errors.New("rate unavailable")
	// ErrRateFetchFailed reports a transport failure. Failures are never
	// cached so the next access retries.
	ErrRateFetchFailed = errors.New("rate fetch failed")
	// ErrStrategySwitchFailed reports a switch that was rolled back.
	ErrStrategySwitchFailed = errors.New("rate strategy switch failed")
	// ErrSwitchInProgress reports a concurrent switch attempt.
	ErrSwitchInProgress = errors.New("rate strategy switch already in progress")
)

// RateError is the failure to resolve one rate.
type RateError struct {
	Strategy Strategy
	DateKey  string
	Currency string
	Err      error
}

func (e *RateError) Error() string {
	return fmt.Sprintf("%s %s rate for %s: %v", e.Strategy, e.Currency, e.DateKey, e.Err)
}

func (e *RateError) Unwrap() error { return e.Err }

// SwitchError reports a failed strategy switch; the previous strategy stays active.
type SwitchError struct {
	From, To Strategy
	Err      error
}

func (e *SwitchError) Error() string {
	return fmt.Sprintf("cannot switch rate strategy from %s to %s: %v", e.From, e.To, e.Err)
}

func (e *SwitchError) Unwrap() []error { return []error{ErrStrategySwitchFailed, e.Err} }
