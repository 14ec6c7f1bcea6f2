package cgt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransaction reports a record breaking the normalizer contract.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrUnderfundedPool reports a disposal larger than the holding available to match it.
	ErrUnderfundedPool = errors.New("disposal exceeds available holding")
)

// Issue is a non-fatal data quality signal attached to a transaction.
type Issue struct {
	TransactionID string
	Asset         AssetID
	Err           error
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s (%s): %v", i.TransactionID, i.Asset, i.Err)
}

func (i Issue) Unwrap() error { return i.Err }
