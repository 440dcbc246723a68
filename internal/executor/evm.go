package executor

import (
	"context"
	"errors"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Magma-Layer/dln-taker/internal/chain"
	"github.com/Magma-Layer/dln-taker/internal/errs"
	"github.com/Magma-Layer/dln-taker/internal/order"
	"github.com/Magma-Layer/dln-taker/internal/signer"
)

// fulfillSelector is the 4-byte selector for the generic preswap-and-fulfill
// entry point this taker calls on the destination chain's taker contract.
var fulfillSelector = []byte{0xa1, 0xb2, 0xc3, 0xd4}

// buildEVMFulfillTx packs a preswap-and-fulfill call: selector, order id,
// reserve token address, and a slippage-bps word. The real taker contract's
// full ABI is outside this module's scope; the calldata shape here is a
// stable stand-in exercised uniformly by pre-estimation and final broadcast.
func buildEVMFulfillTx(to common.Address, o order.Order, reserve common.Address, slippageBps int, gasLimit uint64, gasPrice *big.Int) signer.EVMTx {
	data := make([]byte, 0, 4+32+32+32)
	data = append(data, fulfillSelector...)
	data = append(data, common.LeftPadBytes(o.OrderID.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(reserve.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(slippageBps)).Bytes(), 32)...)
	return signer.EVMTx{
		To:       to,
		Data:     data,
		Value:    big.NewInt(0),
		GasLimit: gasLimit,
		GasPrice: gasPrice,
	}
}

// evmAddr parses a canonical hex address string, as carried at the
// engine-agnostic signer/tokens boundaries, into a common.Address.
func evmAddr(hex string) common.Address {
	return common.HexToAddress(hex)
}

// decideGasBlowout implements spec §4.8 step 9 / §7 GasBlowout routing as a
// pure function of the re-estimate, the pre-estimation cap, and the order's
// prior mempool re-entry count (IncomingOrderContext.Attempts, which counts
// every re-entry, not only fast-track ones).
func decideGasBlowout(gasEstimate, gasLimitCap uint64, attempts int) (Outcome, bool) {
	if gasEstimate <= gasLimitCap {
		return OutcomeFulfilled, false
	}
	if attempts < 2 {
		return OutcomeFastTrackMempool, true
	}
	return OutcomeMempool, true
}

func estimateEVM(ctx context.Context, p PreEstimateParams) (PreEstimate, error) {
	client := p.TakeChain.EVMClient
	to := evmAddr(p.TakeChain.FulfillSigner.Address().Repr)
	reserve := evmAddr(p.Reserve.ReserveToken.Addr)
	dummy := buildEVMFulfillTx(to, p.Order, reserve, 500, 0, nil)

	gasEstimate, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: to,
		To:   &dummy.To,
		Data: dummy.Data,
	})
	if err != nil {
		return PreEstimate{}, &errs.ClientError{Err: err}
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return PreEstimate{}, &errs.ClientError{Err: err}
	}

	// Safety multipliers (spec §4.6): gas estimate x1.25, gas price x1.3.
	gasLimitCap := gasEstimate * 5 / 4
	gasPriceCap := new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(13)), big.NewInt(10))

	dummy.GasLimit = gasLimitCap
	dummy.GasPrice = gasPriceCap
	return PreEstimate{Tx: dummy, GasLimitCap: gasLimitCap, GasPriceCap: gasPriceCap.Uint64()}, nil
}

func executeEVM(ctx context.Context, p FinalParams) Result {
	client := p.TakeChain.EVMClient
	to := evmAddr(p.TakeChain.FulfillSigner.Address().Repr)
	reserve := evmAddr(p.Reserve.ReserveToken.Addr)

	finalTx := buildEVMFulfillTx(to, p.Order, reserve, int(p.Reserve.ReserveToTakeSlippageBps), p.PreEstimate.GasLimitCap, new(big.Int).SetUint64(p.PreEstimate.GasPriceCap))

	gasEstimate, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: to,
		To:   &finalTx.To,
		Data: finalTx.Data,
	})
	if err != nil {
		return Result{Outcome: OutcomeMempool, Err: &errs.TransientRpcError{Op: "estimate_gas_final", Err: err}}
	}

	// Step 9 (spec §4.8): re-estimate gas; if it exceeds the pre-estimation
	// cap, fast-track mempool (5s) up to 2 attempts then standard mempool.
	if outcome, blown := decideGasBlowout(gasEstimate, p.PreEstimate.GasLimitCap, p.Attempts); blown {
		return Result{Outcome: outcome, Err: &errs.GasBlowout{CapGas: p.PreEstimate.GasLimitCap, ActualGas: gasEstimate}}
	}
	// finalTx already carries GasLimitCap/GasPriceCap from buildEVMFulfillTx
	// above (spec §4.8 step 9: "attach gas_limit_cap and gas_price_cap to
	// the transaction") — the bare re-estimate is only used to decide
	// whether a blowout occurred, not as the broadcast gas limit.

	receipt, err := p.TakeChain.FulfillSigner.SendTransaction(ctx, finalTx, signer.SendOpts{Logger: p.Logger})
	if err != nil {
		return Result{Outcome: OutcomeMempool, Err: &errs.TransientRpcError{Op: "broadcast", Err: err}}
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.ConfirmTimeout)
	defer cancel()
	if err := waitObservedEVM(waitCtx, client, receipt.Hash); err != nil {
		return Result{Outcome: OutcomeMempool, Err: &errs.TransientRpcError{Op: "wait_for_fulfill", Err: err}}
	}

	return Result{Outcome: OutcomeFulfilled, Receipt: receipt}
}

// waitObservedEVM polls for the transaction receipt until ctx is done,
// bounding the "wait for on-chain observation" step of spec §4.6/§4.8.
func waitObservedEVM(ctx context.Context, client chain.EVMReader, hash string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	h := common.HexToHash(hash)
	for {
		receipt, err := client.TransactionReceipt(ctx, h)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return errors.New("fulfill transaction reverted")
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
