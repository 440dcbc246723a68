// Package profitability implements the Profitability Evaluator (spec §4.5):
// given an order and a live market quote, computes the required reserve
// amount, slippage budget, and a profitability decision at the operator's
// configured minimum margin.
package profitability

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/Magma-Layer/dln-taker/internal/chain"
	"github.com/Magma-Layer/dln-taker/internal/order"
	"github.com/Magma-Layer/dln-taker/internal/quote"
	"github.com/Magma-Layer/dln-taker/internal/tokens"
)

// Result is the evaluator's output (spec §4.5): reserve token, required
// reserve amount, slippage budget, and the profitability decision.
type Result struct {
	ReserveToken             tokens.Ref
	RequiredReserveDstAmount *big.Int
	ReserveToTakeSlippageBps int64
	IsProfitable             bool
	Route                    quote.SwapRoute
}

// Params bundles the evaluator's inputs (spec §4.5, §6 "batch_unlock_size",
// "min_profitability_bps").
type Params struct {
	Order     order.Order
	TakeChain *chain.Entry
	Buckets   *tokens.Registry
	Connector quote.SwapConnector
	Prices    quote.PriceService

	// BatchUnlockSize amortizes unlock cost across this many orders;
	// ignored (treated as un-batched) when TakeChain.Engine is Solana
	// (spec §4.5 step 2).
	BatchUnlockSize    int
	MinProfitabilityBp int64

	// PreferEstimation, if set, is reused instead of fetching a fresh quote
	// so the live fulfillment stays consistent with the quote used during
	// profitability estimation (spec §4.5).
	PreferEstimation *quote.SwapRoute
}

// Evaluate runs the four steps of spec §4.5.
func Evaluate(ctx context.Context, p Params) (Result, error) {
	giveRef := tokens.Ref{ChainID: p.Order.Give.ChainID, Addr: p.Order.Give.Token.Hex()}
	takeRef := tokens.Ref{ChainID: p.Order.Take.ChainID, Addr: p.Order.Take.Token.Hex()}

	// Step 1: pick a bucket containing both order.give and a reserve token
	// on order.take.chain.
	_, reserve, ok := p.Buckets.BucketSpanning(giveRef, p.Order.Take.ChainID)
	if !ok {
		return Result{}, fmt.Errorf("profitability: no bucket spans give token onto take chain %d", p.Order.Take.ChainID)
	}

	// Step 2: amortized unlock cost is un-batched on Solana take-chains.
	divisor := decimal.NewFromInt(int64(p.BatchUnlockSize))
	if p.TakeChain.Engine == chain.EngineSolana || p.BatchUnlockSize <= 0 {
		divisor = decimal.NewFromInt(1)
	}

	route := p.PreferEstimation
	if route == nil {
		fetched, err := p.Connector.Quote(ctx, quote.Request{From: reserve, To: takeRef, Amount: p.Order.Take.Amount})
		if err != nil {
			return Result{}, err
		}
		route = &fetched
	}

	unlockGasUsd, err := p.Prices.GasCostUsd(ctx, p.Order.Give.ChainID)
	if err != nil {
		return Result{}, err
	}
	amortizedUnlockUsd := unlockGasUsd.Div(divisor)

	// Step 3: slippage budget so amount_out >= order.take.amount at the
	// lower bound, adjusted by min_profitability_bps.
	marginFactor := decimal.NewFromInt(10000 - p.MinProfitabilityBp).Div(decimal.NewFromInt(10000))
	requiredReserveAmount := route.RequiredInputFor(p.Order.Take.Amount, marginFactor)
	slippageBps := route.SlippageBpsFor(requiredReserveAmount)

	// Step 4: required_reserve_dst_amount + gas_cost + margin <= market_equivalent.
	reserveUsd, err := p.Prices.UsdValue(ctx, reserve, requiredReserveAmount)
	if err != nil {
		return Result{}, err
	}
	marketEquivalentUsd, err := p.Prices.UsdValue(ctx, takeRef, p.Order.Take.Amount)
	if err != nil {
		return Result{}, err
	}
	isProfitable := reserveUsd.Add(amortizedUnlockUsd).LessThanOrEqual(marketEquivalentUsd)

	return Result{
		ReserveToken:             reserve,
		RequiredReserveDstAmount: requiredReserveAmount,
		ReserveToTakeSlippageBps: slippageBps,
		IsProfitable:             isProfitable,
		Route:                    *route,
	}, nil
}
