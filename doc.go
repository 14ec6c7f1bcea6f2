// Package cgt computes UK Capital Gains Tax outcomes from a stream of
// normalized brokerage transactions.
//
// The core functionalities include:
//   - Transaction Model: an immutable record per brokerage event, read from
//     JSONL, and its GBP enriched counterpart.
//   - Matching Engine: HMRC share identification per asset, same-day first,
//     then the 30-day rule, then the Section 104 pool at average cost, with
//     stock splits, option contracts and short positions.
//   - Tax Year Aggregator: per UK tax year gains and losses, annual exempt
//     amount, losses carried forward, dividend allowance and SA106 figures.
//
// Matching and aggregation are pure functions. Currency conversion lives in
// package fx, and package session ties everything together for the `ukcgt`
// command-line tool.
package cgt
