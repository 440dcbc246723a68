package cache

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/Magma-Layer/dln-taker/internal/quote"
	"github.com/Magma-Layer/dln-taker/internal/tokens"
)

// gasCostCacheToken is the synthetic token key GasCostUsd results are cached
// under: the amortized unlock gas cost is a function of chainID alone, not
// of any particular token.
const gasCostCacheToken = "__gas_cost__"

// DecimalsSource is optionally implemented by an underlying PriceService
// that can also resolve a token's raw decimals count (an ERC-20 decimals()
// call, an SPL mint lookup, ...). CachedPrices caches the result without a
// TTL once observed, since decimals never change for a given
// (chain, token) (spec §5 "decimals caches... monotonic write").
type DecimalsSource interface {
	Decimals(ctx context.Context, ref tokens.Ref) (uint8, error)
}

// CachedPrices wraps a quote.PriceService with this Cache, sharing
// price/gas-cost/decimals lookups across every per-take-chain pipeline
// (spec §5: "Token/price/decimals caches may be shared across pipelines;
// they must be safe under concurrent read and monotonic write"). Repeated
// lookups for the same (chain, token, amount) are common: a mempooled order
// re-enters the pipeline with the same give/take legs on every retry, and
// the confirmation policy, budget controllers, and profitability evaluator
// each independently price the same legs within one processOrder call.
type CachedPrices struct {
	underlying quote.PriceService
	cache      *Cache
}

// NewCachedPrices builds a CachedPrices decorator over underlying, backed
// by c.
func NewCachedPrices(underlying quote.PriceService, c *Cache) *CachedPrices {
	return &CachedPrices{underlying: underlying, cache: c}
}

// UsdValue implements quote.PriceService, caching by the exact
// (chain, token, amount) triple.
func (p *CachedPrices) UsdValue(ctx context.Context, ref tokens.Ref, amount *big.Int) (decimal.Decimal, error) {
	key := usdValueKey(ref, amount)
	if v, ok := p.cache.GetPrice(ref.ChainID, key); ok {
		return v, nil
	}
	v, err := p.underlying.UsdValue(ctx, ref, amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	p.cache.PutPrice(ref.ChainID, key, v)
	return v, nil
}

// GasCostUsd implements quote.PriceService, caching by chainID alone.
func (p *CachedPrices) GasCostUsd(ctx context.Context, chainID uint64) (decimal.Decimal, error) {
	if v, ok := p.cache.GetPrice(chainID, gasCostCacheToken); ok {
		return v, nil
	}
	v, err := p.underlying.GasCostUsd(ctx, chainID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	p.cache.PutPrice(chainID, gasCostCacheToken, v)
	return v, nil
}

// Decimals resolves ref's on-chain decimals count, caching the result
// permanently once observed. Returns an error if the wrapped PriceService
// does not implement DecimalsSource.
func (p *CachedPrices) Decimals(ctx context.Context, ref tokens.Ref) (uint8, error) {
	if d, ok := p.cache.GetDecimals(ref.ChainID, ref.Addr); ok {
		return d, nil
	}
	source, ok := p.underlying.(DecimalsSource)
	if !ok {
		return 0, fmt.Errorf("price service for chain %d does not expose token decimals", ref.ChainID)
	}
	d, err := source.Decimals(ctx, ref)
	if err != nil {
		return 0, err
	}
	p.cache.PutDecimals(ref.ChainID, ref.Addr, d)
	return d, nil
}

func usdValueKey(ref tokens.Ref, amount *big.Int) string {
	return fmt.Sprintf("%s:%s", ref.Addr, amount.String())
}
