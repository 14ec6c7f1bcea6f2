package ratedb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/etnz/cgt/date"
	"github.com/etnz/cgt/fx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "rates", "cgt.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(s fx.Strategy, key, cur, rate string) fx.Entry {
	return fx.Entry{
		Strategy:  s,
		DateKey:   key,
		Currency:  cur,
		Rate:      decimal.RequireFromString(rate),
		Source:    "test",
		FetchedAt: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	_, ok, err := s.Get(ctx, fx.Monthly, "2024-06", "USD")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, entry(fx.Monthly, "2024-06", "USD", "1.2727")))
	got, ok, err := s.Get(ctx, fx.Monthly, "2024-06", "USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("1.2727")))
	assert.Equal(t, "test", got.Source)
	assert.Equal(t, time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC), got.FetchedAt)

	_, ok, err = s.Get(ctx, fx.YearlyAverage, "2024-06", "USD")
	require.NoError(t, err)
	assert.False(t, ok, "strategies do not share entries")
}

func TestStore_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	require.NoError(t, s.Put(ctx, entry(fx.DailySpot, "2024-06-14", "EUR", "1.18")))
	require.NoError(t, s.Put(ctx, entry(fx.DailySpot, "2024-06-14", "EUR", "1.19")))

	got, _, err := s.Get(ctx, fx.DailySpot, "2024-06-14", "EUR")
	require.NoError(t, err)
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("1.19")))
}

func TestStore_BulkPutAndEntries(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	require.NoError(t, s.BulkPut(ctx, []fx.Entry{
		entry(fx.Monthly, "2024-07", "USD", "1.28"),
		entry(fx.Monthly, "2024-06", "USD", "1.27"),
		entry(fx.Monthly, "2024-06", "EUR", "1.18"),
		entry(fx.YearlyAverage, "2023", "USD", "1.24"),
	}))

	entries, err := s.Entries(ctx, fx.Monthly)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "monthly-2024-06-EUR", entries[0].Key())
	assert.Equal(t, "monthly-2024-06-USD", entries[1].Key())
	assert.Equal(t, "monthly-2024-07-USD", entries[2].Key())
}

func TestStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.BulkPut(ctx, []fx.Entry{entry(fx.Monthly, "2024-06", "USD", "1.27"), entry(fx.Monthly, "2024-06", "EUR", decimal.NewFromInt(int64(i+1)).String())}))
		}()
	}
	wg.Wait()
	entries, err := s.Entries(ctx, fx.Monthly)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_BacksEngine(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	require.NoError(t, s.Put(ctx, entry(fx.Monthly, "2024-06", "USD", "1.25")))

	// Every rate comes from the store, no source is needed.
	p := fx.NewProvider(fx.Monthly, s, fx.Sources{}, zerolog.Nop())
	r, err := p.Rate(ctx, date.New(2024, 6, 17), "USD")
	require.NoError(t, err)
	assert.True(t, r.Value.Equal(decimal.RequireFromString("1.25")))
}
