package profitability

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Magma-Layer/dln-taker/internal/chain"
	"github.com/Magma-Layer/dln-taker/internal/order"
	"github.com/Magma-Layer/dln-taker/internal/quote"
	"github.com/Magma-Layer/dln-taker/internal/tokens"
)

type fakeConnector struct{ route quote.SwapRoute }

func (f fakeConnector) Quote(ctx context.Context, req quote.Request) (quote.SwapRoute, error) {
	return f.route, nil
}

type fakePrices struct {
	usdPerUnit decimal.Decimal
	gasUsd     decimal.Decimal
}

func (f fakePrices) UsdValue(ctx context.Context, ref tokens.Ref, amount *big.Int) (decimal.Decimal, error) {
	return decimal.NewFromBigInt(amount, 0).Mul(f.usdPerUnit), nil
}

func (f fakePrices) GasCostUsd(ctx context.Context, chainID uint64) (decimal.Decimal, error) {
	return f.gasUsd, nil
}

func TestEvaluate_ProfitableWhenMarginHolds(t *testing.T) {
	giveTok := common.HexToAddress("0x1")
	buckets := tokens.NewRegistry([][]tokens.Ref{
		{{ChainID: 1, Addr: giveTok.Hex()}, {ChainID: 2, Addr: "0xreserve"}},
	})
	o := order.Order{
		Give: order.Leg{ChainID: 1, Token: giveTok, Amount: big.NewInt(1000)},
		Take: order.Leg{ChainID: 2, Token: common.HexToAddress("0x2"), Amount: big.NewInt(1000)},
	}
	entry := &chain.Entry{ChainID: 2, Engine: chain.EngineEVM}

	res, err := Evaluate(context.Background(), Params{
		Order:              o,
		TakeChain:          entry,
		Buckets:            buckets,
		// Rate 1.01 needs 991 reserve units (9.91 USD) for 1000 take units
		// (10 USD) at a 10 bps margin, so the margin holds.
		Connector:          fakeConnector{route: quote.SwapRoute{Rate: decimal.NewFromFloat(1.01)}},
		Prices:             fakePrices{usdPerUnit: decimal.NewFromFloat(0.01), gasUsd: decimal.Zero},
		BatchUnlockSize:    5,
		MinProfitabilityBp: 10,
	})
	require.NoError(t, err)
	require.True(t, res.IsProfitable)
	require.Equal(t, "0xreserve", res.ReserveToken.Addr)
}

func TestEvaluate_NoBucketSpanningFails(t *testing.T) {
	buckets := tokens.NewRegistry(nil)
	o := order.Order{
		Give: order.Leg{ChainID: 1, Token: common.HexToAddress("0x1"), Amount: big.NewInt(1000)},
		Take: order.Leg{ChainID: 2, Token: common.HexToAddress("0x2"), Amount: big.NewInt(1000)},
	}
	_, err := Evaluate(context.Background(), Params{
		Order:     o,
		TakeChain: &chain.Entry{ChainID: 2},
		Buckets:   buckets,
	})
	require.Error(t, err)
}

func TestEvaluate_SolanaTakeChainIgnoresBatchDivisor(t *testing.T) {
	giveTok := common.HexToAddress("0x1")
	buckets := tokens.NewRegistry([][]tokens.Ref{
		{{ChainID: 1, Addr: giveTok.Hex()}, {ChainID: 501, Addr: "mintaddr"}},
	})
	o := order.Order{
		Give: order.Leg{ChainID: 1, Token: giveTok, Amount: big.NewInt(1000)},
		Take: order.Leg{ChainID: 501, Token: common.HexToAddress("0x2"), Amount: big.NewInt(1000)},
	}
	entry := &chain.Entry{ChainID: 501, Engine: chain.EngineSolana}
	res, err := Evaluate(context.Background(), Params{
		Order:              o,
		TakeChain:          entry,
		Buckets:            buckets,
		Connector:          fakeConnector{route: quote.SwapRoute{Rate: decimal.NewFromFloat(2.0)}},
		Prices:             fakePrices{usdPerUnit: decimal.NewFromFloat(0.01), gasUsd: decimal.NewFromInt(10)},
		BatchUnlockSize:    4,
		MinProfitabilityBp: 0,
	})
	require.NoError(t, err)
	require.NotNil(t, res.RequiredReserveDstAmount)
	// 500 reserve units cost 5 USD against a 10 USD take. The full 10 USD
	// unlock cost makes it unprofitable; a divisor of 4 (2.5 USD) would not.
	require.False(t, res.IsProfitable)
}
