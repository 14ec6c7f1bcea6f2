// Package ratedb persists resolved exchange rates in a sqlite database.
package ratedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/cgt/fx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_cache (
	strategy   TEXT NOT NULL,
	date_key   TEXT NOT NULL,
	currency   TEXT NOT NULL,
	rate       TEXT NOT NULL,
	source     TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY (strategy, date_key, currency)
)`

const upsert = `INSERT OR REPLACE INTO rate_cache (strategy, date_key, currency, rate, source, fetched_at) VALUES (?, ?, ?, ?, ?, ?)`

// Store is an fx.Store backed by sqlite.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

var _ fx.Store = (*Store)(nil)

// Open opens, creating it if needed, the rate database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open rate database: %w", err)
	}
	// sqlite has a single writer, writes queue on the pool instead of failing busy.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping rate database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rate_cache: %w", err)
	}
	s := &Store{db: db, path: path, log: log.With().Str("component", "ratedb").Logger()}
	s.log.Debug().Str("path", path).Msg("rate database opened")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, strategy fx.Strategy, dateKey, currency string) (fx.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT rate, source, fetched_at FROM rate_cache WHERE strategy = ? AND date_key = ? AND currency = ?`,
		strategy.String(), dateKey, currency)
	var rate, source, fetched string
	switch err := row.Scan(&rate, &source, &fetched); {
	case errors.Is(err, sql.ErrNoRows):
		return fx.Entry{}, false, nil
	case err != nil:
		return fx.Entry{}, false, fmt.Errorf("reading %s: %w", fx.CacheKey(strategy, dateKey, currency), err)
	}
	e := fx.Entry{Strategy: strategy, DateKey: dateKey, Currency: currency, Source: source}
	var err error
	if e.Rate, err = decimal.NewFromString(rate); err != nil {
		return fx.Entry{}, false, fmt.Errorf("corrupted rate %q for %s: %w", rate, e.Key(), err)
	}
	e.FetchedAt, _ = time.Parse(time.RFC3339, fetched)
	return e, true, nil
}

func (s *Store) Put(ctx context.Context, e fx.Entry) error {
	_, err := s.db.ExecContext(ctx, upsert, args(e)...)
	if err != nil {
		return fmt.Errorf("writing %s: %w", e.Key(), err)
	}
	return nil
}

// BulkPut writes entries in a single transaction.
func (s *Store) BulkPut(ctx context.Context, entries []fx.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, args(e)...); err != nil {
			return fmt.Errorf("writing %s: %w", e.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug().Int("entries", len(entries)).Msg("rates stored")
	return nil
}

func args(e fx.Entry) []any {
	fetched := e.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}
	return []any{e.Strategy.String(), e.DateKey, e.Currency, e.Rate.String(), e.Source, fetched.UTC().Format(time.RFC3339)}
}

// Entries lists the stored entries of a strategy ordered by date key and currency.
func (s *Store) Entries(ctx context.Context, strategy fx.Strategy) ([]fx.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date_key, currency, rate, source, fetched_at FROM rate_cache WHERE strategy = ? ORDER BY date_key, currency`,
		strategy.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fx.Entry
	for rows.Next() {
		var rate, fetched string
		e := fx.Entry{Strategy: strategy}
		if err := rows.Scan(&e.DateKey, &e.Currency, &rate, &e.Source, &fetched); err != nil {
			return nil, err
		}
		if e.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("corrupted rate %q for %s: %w", rate, e.Key(), err)
		}
		e.FetchedAt, _ = time.Parse(time.RFC3339, fetched)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
