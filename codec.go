package cgt

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// DecodeTransactions reads a JSONL stream of normalized transactions, one per
// line, validates each record, and returns them in input order.
//
// All invalid lines are reported together.
func DecodeTransactions(r io.Reader) ([]Transaction, error) {
	var (
		txs  []Transaction
		errs []error
		seen = make(map[string]int)
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		lineBytes := scanner.Bytes()
		if len(lineBytes) == 0 {
			continue
		}
		var tx Transaction
		if err := json.Unmarshal(lineBytes, &tx); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w: %w", line, ErrInvalidTransaction, err))
			continue
		}
		if err := tx.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if prev, ok := seen[tx.ID]; ok {
			errs = append(errs, fmt.Errorf("line %d: %w: duplicate id %q first seen line %d", line, ErrInvalidTransaction, tx.ID, prev))
			continue
		}
		seen[tx.ID] = line
		txs = append(txs, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading from input: %w", err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return txs, nil
}

// EncodeTransactions writes transactions as JSONL.
func EncodeTransactions(w io.Writer, txs []Transaction) error {
	enc := json.NewEncoder(w)
	for _, tx := range txs {
		if err := enc.Encode(tx); err != nil {
			return fmt.Errorf("could not encode transaction %q: %w", tx.ID, err)
		}
	}
	return nil
}

// EncodeEnriched writes enriched transactions as JSONL with a stable field order.
func EncodeEnriched(w io.Writer, txs []EnrichedTransaction) error {
	enc := json.NewEncoder(w)
	for _, tx := range txs {
		if err := enc.Encode(tx); err != nil {
			return fmt.Errorf("could not encode transaction %q: %w", tx.ID, err)
		}
	}
	return nil
}
