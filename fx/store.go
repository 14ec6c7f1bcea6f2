package fx

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// Entry is a cached rate.
type Entry struct {
	Strategy  Strategy
	DateKey   string
	Currency  string
	Rate      decimal.Decimal // units of Currency per 1 GBP
	Source    string
	FetchedAt time.Time
}

// Key returns the composite cache key of the entry.
func (e Entry) Key() string { return CacheKey(e.Strategy, e.DateKey, e.Currency) }

// Store is a persistent rate cache. Writes are idempotent puts by key,
// concurrent writers on a key are safe and the last write wins.
type Store interface {
	Get(ctx context.Context, s Strategy, dateKey, currency string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	BulkPut(ctx context.Context, entries []Entry) error
}

// MemoryStore is an in-process Store. Its zero value is not usable, use NewMemoryStore.
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore returns an empty MemoryStore whose entries never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryStore) Get(_ context.Context, s Strategy, dateKey, currency string) (Entry, bool, error) {
	v, ok := m.c.Get(CacheKey(s, dateKey, currency))
	if !ok {
		return Entry{}, false, nil
	}
	return v.(Entry), true, nil
}

func (m *MemoryStore) Put(_ context.Context, e Entry) error {
	m.c.Set(e.Key(), e, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) BulkPut(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := m.Put(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of cached entries.
func (m *MemoryStore) Len() int { return m.c.ItemCount() }
