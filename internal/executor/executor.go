// Package executor implements the Fulfillment Executor (spec §4.6):
// destination-chain-type-dispatched transaction assembly, gas safety
// multipliers, broadcast, and on-chain confirmation polling. Per Design
// Note #9, the EVM/Solana split is a tagged variant dispatched on
// chain.Engine rather than a shared base type.
package executor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/Magma-Layer/dln-taker/internal/chain"
	"github.com/Magma-Layer/dln-taker/internal/errs"
	"github.com/Magma-Layer/dln-taker/internal/order"
	"github.com/Magma-Layer/dln-taker/internal/profitability"
	"github.com/Magma-Layer/dln-taker/internal/signer"
)

// PreEstimate is the preliminary fulfill-tx construction of spec §4.8 step
// 6: a dummy-slippage transaction built solely to learn the gas caps before
// profitability is known. Solana has no gas caps; GasLimitCap/GasPriceCap
// are zero for it.
type PreEstimate struct {
	Tx           signer.Tx
	GasLimitCap  uint64
	GasPriceCap  uint64 // wei, truncated; EVM only
}

// Outcome is what process_order (internal/pipeline) does next with an
// order after a broadcast attempt (spec §4.6, §7).
type Outcome int

const (
	// OutcomeFulfilled: broadcast succeeded and was observed on-chain.
	OutcomeFulfilled Outcome = iota
	// OutcomeMempool: a transient failure; retry through the standard
	// mempool scheduler if allowed.
	OutcomeMempool
	// OutcomeFastTrackMempool: a gas blowout below the retry cap (spec
	// §4.6, §7 GasBlowout); retry with the mempool's 5s fast-track delay.
	OutcomeFastTrackMempool
	// OutcomeDrop: a FatalInternal condition; log and drop without
	// broadcasting or mempooling.
	OutcomeDrop
)

// Result is returned by Execute.
type Result struct {
	Outcome Outcome
	Receipt signer.Receipt
	Err     error
}

// PreEstimateParams bundles the inputs to the dummy-slippage pre-estimation
// (spec §4.8 step 6).
type PreEstimateParams struct {
	Order     order.Order
	TakeChain *chain.Entry
	Reserve   profitability.Result // only ReserveToken is read before profitability runs
	Logger    log.Logger
}

// Estimate runs spec §4.8 step 6 / §4.6: build a dummy 5%-slippage
// fulfill-tx, estimate gas, and compute the safety-multiplied caps.
func Estimate(ctx context.Context, p PreEstimateParams) (PreEstimate, error) {
	switch p.TakeChain.Engine {
	case chain.EngineSolana:
		tx, err := buildSolanaFulfillTx(p.Order, p.Reserve.ReserveToken, 500)
		if err != nil {
			return PreEstimate{}, &errs.ClientError{Err: err}
		}
		return PreEstimate{Tx: tx}, nil
	default:
		return estimateEVM(ctx, p)
	}
}

// FinalParams bundles the final-broadcast inputs of spec §4.8 steps 8-11.
type FinalParams struct {
	Order       order.Order
	TakeChain   *chain.Entry
	Reserve     profitability.Result
	PreEstimate PreEstimate
	Attempts    int
	Logger      log.Logger

	// ConfirmTimeout bounds the post-broadcast observation wait (spec §4.6,
	// §5 "bounded polling horizon").
	ConfirmTimeout time.Duration
}

// Execute builds the final fulfill transaction with the evaluator's
// computed slippage, broadcasts it, and waits for on-chain observation
// (spec §4.6, §4.8 steps 8-11).
func Execute(ctx context.Context, p FinalParams) Result {
	switch p.TakeChain.Engine {
	case chain.EngineSolana:
		return executeSolana(ctx, p)
	default:
		return executeEVM(ctx, p)
	}
}
