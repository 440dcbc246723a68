// Package cache implements the shared token/price/decimals cache (spec §5:
// "Token/price/decimals caches may be shared across pipelines; they must be
// safe under concurrent read and monotonic write"), built on
// dgraph-io/ristretto for bounded, concurrent-safe storage.
package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/shopspring/decimal"
)

// Cache wraps a ristretto store with typed accessors for the three pieces
// of market data the evaluator and executor read repeatedly.
type Cache struct {
	store *ristretto.Cache
	ttl   time.Duration
}

// New builds a Cache sized for roughly maxEntries distinct keys, matching
// ristretto's NumCounters-to-MaxCost sizing guidance (10x counters headroom).
func New(maxEntries int64, ttl time.Duration) (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, ttl: ttl}, nil
}

func (c *Cache) setTTL(key string, value any) {
	c.store.SetWithTTL(key, value, 1, c.ttl)
	c.store.Wait()
}

// PutDecimals records a token's on-chain decimals count. Decimals never
// change for a given (chain, token) once observed, so this is safe to cache
// without a TTL-driven eviction concern beyond ristretto's own LRU policy.
func (c *Cache) PutDecimals(chainID uint64, token string, decimals uint8) {
	c.store.Set(decimalsKey(chainID, token), decimals, 1)
	c.store.Wait()
}

func (c *Cache) GetDecimals(chainID uint64, token string) (uint8, bool) {
	v, ok := c.store.Get(decimalsKey(chainID, token))
	if !ok {
		return 0, false
	}
	return v.(uint8), true
}

// PutPrice records a token's last observed USD price.
func (c *Cache) PutPrice(chainID uint64, token string, usd decimal.Decimal) {
	c.setTTL(priceKey(chainID, token), usd)
}

func (c *Cache) GetPrice(chainID uint64, token string) (decimal.Decimal, bool) {
	v, ok := c.store.Get(priceKey(chainID, token))
	if !ok {
		return decimal.Decimal{}, false
	}
	return v.(decimal.Decimal), true
}

func decimalsKey(chainID uint64, token string) string { return fmt.Sprintf("dec:%d:%s", chainID, token) }
func priceKey(chainID uint64, token string) string    { return fmt.Sprintf("usd:%d:%s", chainID, token) }
