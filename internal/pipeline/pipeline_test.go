package pipeline

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Magma-Layer/dln-taker/internal/budget"
	"github.com/Magma-Layer/dln-taker/internal/chain"
	"github.com/Magma-Layer/dln-taker/internal/filter"
	"github.com/Magma-Layer/dln-taker/internal/mempool"
	"github.com/Magma-Layer/dln-taker/internal/order"
	"github.com/Magma-Layer/dln-taker/internal/quote"
	"github.com/Magma-Layer/dln-taker/internal/signer"
	"github.com/Magma-Layer/dln-taker/internal/tokens"
	"github.com/Magma-Layer/dln-taker/internal/unlocker"
)

const reserveMint = "11111111111111111111111111111111"

type fakeState struct{}

func (fakeState) IsFulfilledOnTake(ctx context.Context, orderID common.Hash) (bool, error) {
	return false, nil
}
func (fakeState) GiveStateCreated(ctx context.Context, orderID common.Hash) (bool, error) {
	return true, nil
}

type fakeConnector struct{ rate decimal.Decimal }

func (f fakeConnector) Quote(ctx context.Context, req quote.Request) (quote.SwapRoute, error) {
	return quote.SwapRoute{Rate: f.rate}, nil
}

type fakePrices struct{ usdPerUnit decimal.Decimal }

func (f fakePrices) UsdValue(ctx context.Context, ref tokens.Ref, amount *big.Int) (decimal.Decimal, error) {
	return decimal.NewFromBigInt(amount, 0).Mul(f.usdPerUnit), nil
}
func (f fakePrices) GasCostUsd(ctx context.Context, chainID uint64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type fakeSigner struct {
	identity signer.Identity
	balance  *big.Int
	sendHash string

	mu   sync.Mutex
	sent []signer.Tx
}

func (f *fakeSigner) Address() signer.Identity { return f.identity }
func (f *fakeSigner) GetBalance(ctx context.Context, token string) (*big.Int, error) {
	return f.balance, nil
}
func (f *fakeSigner) SendTransaction(ctx context.Context, tx signer.Tx, opts signer.SendOpts) (signer.Receipt, error) {
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	f.mu.Unlock()
	return signer.Receipt{Hash: f.sendHash, Successful: true}, nil
}

type fakeSolanaReader struct{}

func (fakeSolanaReader) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	status := rpc.ConfirmationStatusFinalized
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{{ConfirmationStatus: status}},
	}, nil
}

type recordingSender struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingSender) SendUnlock(ctx context.Context, key unlocker.Key, entries []unlocker.Entry) (signer.Receipt, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return signer.Receipt{Successful: true}, nil
}

func buildTestPipeline(t *testing.T) (*Pipeline, *recordingSender) {
	t.Helper()
	buckets := tokens.NewRegistry([][]tokens.Ref{
		{{ChainID: 1, Addr: common.HexToAddress("0xaaaa").Hex()}, {ChainID: 501, Addr: reserveMint}},
	})

	entry := &chain.Entry{
		ChainID: 501,
		Engine:  chain.EngineSolana,
		FulfillSigner: &fakeSigner{
			identity: signer.Identity{ChainID: 501, Repr: reserveMint},
			balance:  big.NewInt(1_000_000_000),
			sendHash: strings.Repeat("1", 64),
		},
		SolanaClient: fakeSolanaReader{},
	}

	sender := &recordingSender{}
	logger := log.New()
	cfg := Config{
		TakeChain:   entry,
		GiveChainOf: func(chainID uint64) (*chain.Entry, error) { return &chain.Entry{ChainID: chainID}, nil },
		Filters:     filter.Pipeline{},
		Buckets:     buckets,
		State:       fakeState{},
		Connector:   fakeConnector{rate: decimal.NewFromFloat(1.0)},
		Prices:      fakePrices{usdPerUnit: decimal.NewFromFloat(0.01)},
		Mempool:     mempool.New(5*time.Millisecond, 5*time.Millisecond, 5*time.Millisecond, logger),
		Unlocker:    unlocker.New(1, sender, logger),
		TVLBudget:          budget.NewTVLController(decimal.NewFromInt(1_000_000)),
		NonFinalized:       budget.NewNonFinalizedController(decimal.NewFromInt(1_000_000)),
		MinProfitabilityBps: 0,
		BatchUnlockSize:     1,
		ConfirmTimeout:      time.Second,
		Logger:              logger,
	}
	return New(cfg), sender
}

func TestPipeline_HappyPathFulfillsAndUnlocks(t *testing.T) {
	p, sender := buildTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	go p.cfg.Mempool.Run(ctx)

	o := order.Order{
		OrderID:      common.HexToHash("0x1"),
		Give:         order.Leg{ChainID: 1, Token: common.HexToAddress("0xaaaa"), Amount: big.NewInt(1000)},
		Take:         order.Leg{ChainID: 501, Token: common.HexToAddress("0xbbbb"), Amount: big.NewInt(1000)},
		Status:       order.StatusCreated,
		Finalization: order.Finalized(),
	}
	p.Submit(o)

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return sender.calls == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeline_RevokedFinalizationDrops(t *testing.T) {
	p, sender := buildTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	go p.cfg.Mempool.Run(ctx)

	o := order.Order{
		OrderID:      common.HexToHash("0x2"),
		Give:         order.Leg{ChainID: 1, Token: common.HexToAddress("0xaaaa"), Amount: big.NewInt(1000)},
		Take:         order.Leg{ChainID: 501, Token: common.HexToAddress("0xbbbb"), Amount: big.NewInt(1000)},
		Status:       order.StatusCreated,
		Finalization: order.Revoked(),
	}
	p.Submit(o)

	time.Sleep(100 * time.Millisecond)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Equal(t, 0, sender.calls)

	p.mu.Lock()
	_, stillIncoming := p.incoming[o.OrderID]
	p.mu.Unlock()
	require.False(t, stillIncoming)
}

func TestPipeline_CancelledClearsQueuedOrder(t *testing.T) {
	p, _ := buildTestPipeline(t)

	id := common.HexToHash("0x3")
	p.mu.Lock()
	p.incoming[id] = order.IncomingOrderContext{Order: order.Order{OrderID: id, Status: order.StatusCreated}}
	p.inFlight = true
	p.inFlightID = common.HexToHash("0x999")
	p.enqueueLocked(id, order.StatusCreated)
	p.mu.Unlock()

	require.True(t, p.isQueued(id))
	p.clearQueues(id)
	require.False(t, p.isQueued(id))
}
