// Package quote defines the collaborator interfaces the taker depends on
// but does not implement: the swap connector and token price service (spec
// §6 "swap_connector", "token_price_service"). Concrete adapters (1inch,
// Jupiter, Coingecko, …) live outside this module's scope.
package quote

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/Magma-Layer/dln-taker/internal/tokens"
)

// Request describes a desired swap: sell From, target To, wanting at least
// Amount of To out.
type Request struct {
	From   tokens.Ref
	To     tokens.Ref
	Amount *big.Int
}

// SwapRoute is a quoted route, reusable as preferEstimation (spec §4.5) so a
// later real broadcast stays consistent with the quote used to decide
// profitability.
type SwapRoute struct {
	// Rate is quoted output units of To per one input unit of From, in
	// human (decimal) terms, already decimals-adjusted by the quoting
	// connector.
	Rate decimal.Decimal
}

// RequiredInputFor returns the From-side amount needed to produce at least
// wantOut units of To at this route's rate, divided by marginFactor (e.g.
// 1 - min_profitability_bps/10000), which raises the required input to
// leave profitability headroom.
func (r SwapRoute) RequiredInputFor(wantOut *big.Int, marginFactor decimal.Decimal) *big.Int {
	if r.Rate.IsZero() {
		return new(big.Int).Set(wantOut)
	}
	want := decimal.NewFromBigInt(wantOut, 0)
	required := want.Div(r.Rate).Div(marginFactor)
	return required.BigInt()
}

// SlippageBpsFor reports the slippage budget, in basis points, implied by
// requiring reserveAmount of input for this route.
func (r SwapRoute) SlippageBpsFor(reserveAmount *big.Int) int64 {
	_ = reserveAmount
	return int64(decimal.NewFromInt(10000).Sub(r.Rate.Mul(decimal.NewFromInt(10000))).IntPart())
}

// SwapConnector fetches a swap quote/route. Implementations must reject any
// custom connector configuration that isn't the operator's configured
// default (spec §6: "swap_connector (default: 1inch + Jupiter; custom is
// rejected)") — enforcement lives in internal/config, not here.
type SwapConnector interface {
	Quote(ctx context.Context, req Request) (SwapRoute, error)
}

// PriceService resolves USD prices and gas costs (spec §6 "token_price_service",
// default Coingecko).
type PriceService interface {
	// UsdValue returns the USD worth of amount units of ref.
	UsdValue(ctx context.Context, ref tokens.Ref, amount *big.Int) (decimal.Decimal, error)
	// GasCostUsd returns the current USD cost of one unlock transaction on
	// chainID, for amortized batch-unlock cost accounting (spec §4.5 step 2).
	GasCostUsd(ctx context.Context, chainID uint64) (decimal.Decimal, error)
}
