// Command taker runs the cross-chain order-fulfillment taker bot: it wires
// the chain registry, filters, budgets, and per-take-chain pipelines from a
// YAML configuration file, then runs until SIGINT/SIGTERM (spec §6 "Process
// lifecycle").
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/Magma-Layer/dln-taker/internal/budget"
	"github.com/Magma-Layer/dln-taker/internal/cache"
	"github.com/Magma-Layer/dln-taker/internal/chain"
	"github.com/Magma-Layer/dln-taker/internal/config"
	"github.com/Magma-Layer/dln-taker/internal/feed"
	"github.com/Magma-Layer/dln-taker/internal/filter"
	"github.com/Magma-Layer/dln-taker/internal/mempool"
	"github.com/Magma-Layer/dln-taker/internal/order"
	"github.com/Magma-Layer/dln-taker/internal/pipeline"
	"github.com/Magma-Layer/dln-taker/internal/quote"
	"github.com/Magma-Layer/dln-taker/internal/signer"
	"github.com/Magma-Layer/dln-taker/internal/tokens"
	"github.com/Magma-Layer/dln-taker/internal/unlocker"
)

var (
	configFlag = &cli.StringFlag{Name: "config", Aliases: []string{"c"}, Required: true, Usage: "path to the taker YAML configuration"}
	chainsFlag = &cli.Uint64SliceFlag{Name: "chains", Usage: "restrict to a subset of configured chain ids"}
	dryRunFlag = &cli.BoolFlag{Name: "dry-run", Usage: "report dry-run mode in the startup log; transactions are still broadcast"}
)

func main() {
	app := &cli.App{
		Name:  "taker",
		Usage: "cross-chain order-fulfillment taker",
		Flags: []cli.Flag{configFlag, chainsFlag, dryRunFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	logger := log.New()
	logger.SetHandler(log.LvlFilterHandler(log.LvlInfo, log.StreamHandler(os.Stderr, log.TerminalFormat(true))))

	cfg, err := config.Load(cliCtx.String(configFlag.Name))
	if err != nil {
		return err
	}
	cfg.DryRun = cliCtx.Bool(dryRunFlag.Name)

	registry, unlockers, mempools, pipelines, err := build(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, sched := range mempools {
		go sched.Run(ctx)
	}
	for _, p := range pipelines {
		go p.Run(ctx)
	}

	orderFeed := stubFeed{}
	orderFeed.SetLogger(logger)
	enabledChains := registry.All()
	if ids := cliCtx.Uint64Slice(chainsFlag.Name); len(ids) > 0 {
		enabledChains = nil
		for _, id := range ids {
			if _, err := registry.Get(id); err == nil {
				enabledChains = append(enabledChains, id)
			}
		}
	}
	orderFeed.SetEnabledChains(enabledChains)
	if err := initFeed(orderFeed, registry, pipelines); err != nil {
		return err
	}

	logger.Info("taker running", "chains", len(registry.All()), "dry_run", cfg.DryRun)
	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight work")

	// Give in-flight process_order calls a bounded window to finish rather
	// than terminating mid-broadcast (spec §5 "in-flight orders complete or
	// time out").
	time.Sleep(2 * time.Second)
	_ = unlockers
	return nil
}

// build wires the chain registry, budgets, and one pipeline per take-chain
// from configuration (spec §4.1, §4.8). RPC clients and signers are
// constructed here, matching the teacher's node.New()-style single wiring
// pass in cmd/geth.
func build(cfg *config.Config, logger log.Logger) (*chain.Registry, map[uint64]*unlocker.Unlocker, []*mempool.Scheduler, map[uint64]*pipeline.Pipeline, error) {
	entries := make([]*chain.Entry, 0, len(cfg.Chains))
	unlockers := make(map[uint64]*unlocker.Unlocker)
	var mempools []*mempool.Scheduler
	pipelines := make(map[uint64]*pipeline.Pipeline)

	for _, cc := range cfg.Chains {
		entry, err := buildChainEntry(cc, logger)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if cc.Disabled {
			entry.Disable()
		}
		entries = append(entries, entry)
	}

	buckets := buildBuckets(cfg.Buckets)

	var servedPairs [][2]uint64
	for _, give := range entries {
		for _, take := range entries {
			servedPairs = append(servedPairs, [2]uint64{give.ChainID, take.ChainID})
		}
	}

	registry, err := chain.New(entries, buckets, servedPairs)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	// sharedCache backs every pipeline's price/decimals lookups (spec §5:
	// "Token/price/decimals caches may be shared across pipelines"), so a
	// mempool re-entry pricing the same give/take legs on chain A and a
	// concurrent evaluation on chain B both hit the same ristretto store.
	sharedCache, err := cache.New(100_000, 30*time.Second)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	for _, entry := range entries {
		sched := mempool.New(5*time.Second, 3*time.Second, time.Second, logger)
		mempools = append(mempools, sched)

		sender := &unlockSender{chainOf: registry.Get}
		u := unlocker.New(cfg.BatchUnlockSize, sender, logger)
		unlockers[entry.ChainID] = u

		p := pipeline.New(pipeline.Config{
			TakeChain:           entry,
			GiveChainOf:         registry.Get,
			Filters:             filter.Pipeline{Global: nil, Dst: entry.DstFilters, Src: entry.SrcFilters},
			Buckets:             buckets,
			State:               stubStateChecker{},
			Connector:           stubConnector{},
			Prices:              cache.NewCachedPrices(stubPrices{}, sharedCache),
			Mempool:             sched,
			Unlocker:            u,
			TVLBudget:           entry.TVLBudget,
			NonFinalized:        entry.NonFinalizedBudget,
			MinProfitabilityBps: cfg.MinProfitabilityBps,
			BatchUnlockSize:     cfg.BatchUnlockSize,
			ConfirmTimeout:      2 * time.Minute,
			Logger:              logger,
		})
		pipelines[entry.ChainID] = p
	}

	return registry, unlockers, mempools, pipelines, nil
}

func buildChainEntry(cc config.ChainConfig, logger log.Logger) (*chain.Entry, error) {
	engine := chain.EngineEVM
	if cc.Chain == 501 {
		engine = chain.EngineSolana
	}

	entry := &chain.Entry{
		ChainID:            cc.Chain,
		Engine:             engine,
		RPC:                cc.ChainRPC,
		Beneficiary:        cc.Beneficiary,
		TVLBudget:          budget.NewTVLController(decimal.NewFromInt(1_000_000)),
		NonFinalizedBudget: budget.NewNonFinalizedController(decimal.NewFromInt(250_000)),
	}
	entry.SrcConstraints = buildConstraints(cc.Constraints)
	entry.DstConstraints = buildConstraints(cc.DstConstraints)

	fulfillSigner, unlockSigner, evmClient, solClient, err := buildSigners(cc, engine)
	if err != nil {
		return nil, err
	}
	entry.FulfillSigner = fulfillSigner
	entry.UnlockSigner = unlockSigner
	entry.EVMClient = evmClient
	entry.SolanaClient = solClient
	return entry, nil
}

func buildConstraints(ranges []config.ConstraintRangeConfig) chain.ConstraintRanges {
	out := make(chain.ConstraintRanges, 0, len(ranges))
	for _, r := range ranges {
		usd, _ := decimal.NewFromString(r.ThresholdAmountUsd)
		out = append(out, chain.ConstraintRange{
			UsdTo:                 usd,
			MinBlockConfirmations: r.MinBlockConfirmations,
			FulfillmentDelaySec:   r.FulfillmentDelay,
		})
	}
	return out
}

func buildSigners(cc config.ChainConfig, engine chain.Engine) (fulfill, unlock signer.Signer, evmClient chain.EVMReader, solClient chain.SolanaReader, err error) {
	if engine == chain.EngineSolana {
		client := rpc.New(cc.ChainRPC)
		_, solKey, derr := config.DecodePrivateKey(cc.TakerPrivateKey)
		if derr != nil {
			return nil, nil, nil, nil, derr
		}
		_, unlockKey, derr := config.DecodePrivateKey(cc.UnlockAuthorityPrivateKey)
		if derr != nil {
			return nil, nil, nil, nil, derr
		}
		return signer.NewSolanaSigner(cc.Chain, client, solKey),
			signer.NewSolanaSigner(cc.Chain, client, unlockKey),
			nil, client, nil
	}

	client, derr := ethclient.Dial(cc.ChainRPC)
	if derr != nil {
		return nil, nil, nil, nil, derr
	}
	takerKey, _, derr := config.DecodePrivateKey(cc.TakerPrivateKey)
	if derr != nil {
		return nil, nil, nil, nil, derr
	}
	unlockKey, _, derr := config.DecodePrivateKey(cc.UnlockAuthorityPrivateKey)
	if derr != nil {
		return nil, nil, nil, nil, derr
	}
	takerOpts, derr := newTransactOpts(takerKey, cc.Chain)
	if derr != nil {
		return nil, nil, nil, nil, derr
	}
	unlockOpts, derr := newTransactOpts(unlockKey, cc.Chain)
	if derr != nil {
		return nil, nil, nil, nil, derr
	}
	return signer.NewEVMSigner(cc.Chain, client, takerOpts),
		signer.NewEVMSigner(cc.Chain, client, unlockOpts),
		client, nil, nil
}

func buildBuckets(raw []config.BucketConfig) *tokens.Registry {
	var groups [][]tokens.Ref
	for _, bucket := range raw {
		var refs []tokens.Ref
		for chainKey, v := range bucket {
			var chainID uint64
			fmt.Sscanf(chainKey, "%d", &chainID)
			switch val := v.(type) {
			case string:
				refs = append(refs, tokens.Ref{ChainID: chainID, Addr: val})
			case []any:
				for _, item := range val {
					if s, ok := item.(string); ok {
						refs = append(refs, tokens.Ref{ChainID: chainID, Addr: s})
					}
				}
			}
		}
		groups = append(groups, refs)
	}
	return tokens.NewRegistry(groups)
}

// unlockSender adapts the give chain's unlock signer into
// unlocker.UnlockSender, resolving the give chain from each batch key.
type unlockSender struct {
	chainOf func(chainID uint64) (*chain.Entry, error)
}

func (u *unlockSender) SendUnlock(ctx context.Context, key unlocker.Key, entries []unlocker.Entry) (signer.Receipt, error) {
	giveEntry, err := u.chainOf(key.GiveChain)
	if err != nil {
		return signer.Receipt{}, err
	}
	ids := make([]common.Hash, len(entries))
	for i, e := range entries {
		ids[i] = e.OrderID
	}
	tx, err := buildUnlockTx(giveEntry, key, ids)
	if err != nil {
		return signer.Receipt{}, err
	}
	return giveEntry.UnlockSigner.SendTransaction(ctx, tx, signer.SendOpts{})
}

// unlockSelector is the 4-byte selector for the batch-unlock entry point on
// the give chain's unlock contract, mirroring the fulfill-side stand-in
// calldata in internal/executor (the real taker contract's ABI is outside
// this module's scope).
var unlockSelector = []byte{0xe5, 0xf6, 0x07, 0x18}

// buildUnlockTx packs the batch of order ids into a single give-chain
// transaction (spec §4.9 "a single unlock command"), dispatched on the
// give chain's engine the same way internal/executor dispatches fulfill
// transactions (Design Note #9).
func buildUnlockTx(entry *chain.Entry, key unlocker.Key, ids []common.Hash) (signer.Tx, error) {
	if entry.Engine == chain.EngineSolana {
		ix := solana.NewInstruction(
			solana.MustPublicKeyFromBase58("11111111111111111111111111111111"),
			solana.AccountMetaSlice{},
			encodeOrderIDs(ids),
		)
		return signer.SolanaTx{Instructions: []solana.Instruction{ix}}, nil
	}
	to := common.HexToAddress(entry.Beneficiary)
	data := make([]byte, 0, 4+32*len(ids))
	data = append(data, unlockSelector...)
	for _, id := range ids {
		data = append(data, common.LeftPadBytes(id.Bytes(), 32)...)
	}
	return signer.EVMTx{To: to, Data: data, Value: big.NewInt(0)}, nil
}

func encodeOrderIDs(ids []common.Hash) []byte {
	out := make([]byte, 0, 32*len(ids))
	for _, id := range ids {
		out = append(out, id.Bytes()...)
	}
	return out
}

// newTransactOpts builds a keyed transactor for chainID, matching
// other_examples/79231c03's bind.NewKeyedTransactorWithChainID(pk, chainID)
// construction.
func newTransactOpts(key *ecdsa.PrivateKey, chainID uint64) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(chainID))
}

// stubStateChecker, stubConnector, and stubPrices stand in for the order
// feed's live-state RPC view, the swap-quote connector, and the price
// service — all explicitly out-of-scope external collaborators the core
// only consumes through an interface (spec §1 "OUT OF SCOPE", §6). A real
// deployment injects concrete adapters (e.g. hitting 1inch/Jupiter and
// Coingecko) in their place here; these report an unconfigured error so a
// misconfigured wiring fails loudly instead of silently fulfilling orders
// against fabricated state.
type stubStateChecker struct{}

func (stubStateChecker) IsFulfilledOnTake(ctx context.Context, orderID common.Hash) (bool, error) {
	return false, errors.New("no take-chain state collaborator configured")
}

func (stubStateChecker) GiveStateCreated(ctx context.Context, orderID common.Hash) (bool, error) {
	return false, errors.New("no give-chain state collaborator configured")
}

type stubConnector struct{}

func (stubConnector) Quote(ctx context.Context, req quote.Request) (quote.SwapRoute, error) {
	return quote.SwapRoute{}, errors.New("no swap connector configured")
}

type stubPrices struct{}

func (stubPrices) UsdValue(ctx context.Context, ref tokens.Ref, amount *big.Int) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("no price service configured")
}

func (stubPrices) GasCostUsd(ctx context.Context, chainID uint64) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("no price service configured")
}

// stubFeed stands in for the order feed (spec §6): the external component
// that discovers orders and pushes IncomingOrder events into Init's execute
// callback. Like stubStateChecker/stubConnector/stubPrices, it fails loudly
// on Init instead of silently leaving every pipeline idle — a real
// deployment injects a concrete feed.Feed (e.g. a DLN WebSocket/indexer
// connector) in its place here.
type stubFeed struct{}

func (stubFeed) Init(execute feed.ExecuteFunc, unlockAuthorities []string, minConfirmationThresholds []uint64, hooks feed.Hooks) error {
	return errors.New("no order feed configured")
}

func (stubFeed) SetEnabledChains(chainIDs []uint64) {}

func (stubFeed) SetLogger(logger log.Logger) {}

// initFeed wires f into the running pipelines: dispatch routes each incoming
// order to the pipeline for its take-chain (spec §6 "init(execute_cb, ...)"),
// and unlockAuthorities/minConfirmationThresholds are collected from the
// registry the same way the feed itself needs them to filter/validate
// events before they ever reach execute. Errors from Init propagate up and
// abort the process (spec §7 "Errors in init propagate up and abort").
func initFeed(f feed.Feed, registry *chain.Registry, pipelines map[uint64]*pipeline.Pipeline) error {
	var unlockAuthorities []string
	var minConfirmationThresholds []uint64
	for _, chainID := range registry.All() {
		entry, err := registry.Get(chainID)
		if err != nil {
			return err
		}
		if entry.UnlockSigner != nil {
			unlockAuthorities = append(unlockAuthorities, entry.UnlockSigner.Address().Repr)
		}
		for _, rng := range entry.SrcConstraints {
			minConfirmationThresholds = append(minConfirmationThresholds, rng.MinBlockConfirmations)
		}
	}

	dispatch := func(o order.Order) {
		p, ok := pipelines[o.Take.ChainID]
		if !ok {
			return
		}
		p.Submit(o)
	}

	return f.Init(dispatch, unlockAuthorities, minConfirmationThresholds, feed.Hooks{})
}
