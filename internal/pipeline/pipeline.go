// Package pipeline implements the Order Pipeline (spec §4.8), the heart of
// the taker: one instance per take-chain, ingesting feed events, enforcing
// single-slot in-flight processing, and routing to filters, the
// confirmation policy, budget controllers, the profitability evaluator, the
// fulfillment executor, the mempool scheduler, and the batch unlocker.
//
// Design Note #1 ("single-slot pipeline via recursion" -> worker loop): the
// source re-enters tail-recursively after releasing the lock; here the
// drain-and-continue step is an explicit for loop (drainLoop) instead, so
// stack depth never grows with the number of queued orders.
package pipeline

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/Magma-Layer/dln-taker/internal/budget"
	"github.com/Magma-Layer/dln-taker/internal/chain"
	"github.com/Magma-Layer/dln-taker/internal/confirmation"
	"github.com/Magma-Layer/dln-taker/internal/errs"
	"github.com/Magma-Layer/dln-taker/internal/executor"
	"github.com/Magma-Layer/dln-taker/internal/filter"
	"github.com/Magma-Layer/dln-taker/internal/mempool"
	"github.com/Magma-Layer/dln-taker/internal/order"
	"github.com/Magma-Layer/dln-taker/internal/profitability"
	"github.com/Magma-Layer/dln-taker/internal/quote"
	"github.com/Magma-Layer/dln-taker/internal/tokens"
	"github.com/Magma-Layer/dln-taker/internal/unlocker"
)

// OrderStateChecker resolves live on-chain order state not carried by the
// feed event itself (spec §4.8 step 2): whether the order is already
// fulfilled on the take chain, and whether the give-side record is still in
// state Created.
type OrderStateChecker interface {
	IsFulfilledOnTake(ctx context.Context, orderID common.Hash) (bool, error)
	GiveStateCreated(ctx context.Context, orderID common.Hash) (bool, error)
}

// HookEvent is published on Hooks for every terminal decision, matching the
// optional hook_handlers collaborator of spec §6.
type HookEvent struct {
	OrderID common.Hash
	Kind    string // "fulfilled", "dropped", "mempooled"
	Reason  string
}

// Config bundles a Pipeline's fixed dependencies, assembled once at startup
// by cmd/taker from the chain registry and configuration.
type Config struct {
	TakeChain    *chain.Entry
	GiveChainOf  func(chainID uint64) (*chain.Entry, error) // resolves an order's give-chain entry
	Filters      filter.Pipeline
	Buckets      *tokens.Registry
	State        OrderStateChecker
	Connector    quote.SwapConnector
	Prices       quote.PriceService
	Mempool      *mempool.Scheduler
	Unlocker     *unlocker.Unlocker
	TVLBudget    *budget.Controller
	NonFinalized *budget.Controller

	MinProfitabilityBps int64
	BatchUnlockSize     int
	ConfirmTimeout      time.Duration

	Logger log.Logger
}

// Pipeline is the per-take-chain state machine of spec §4.8.
type Pipeline struct {
	cfg Config

	Hooks event.Feed

	events  chan order.Order
	reentry <-chan mempool.Params

	mu           sync.Mutex
	incoming     map[common.Hash]order.IncomingOrderContext
	priorityQ    *list.List
	secondaryQ   *list.List
	priorityElem map[common.Hash]*list.Element
	secondaryElem map[common.Hash]*list.Element
	inFlight     bool
	inFlightID   common.Hash

	priorityGauge metrics.Gauge
	secondaryGauge metrics.Gauge
}

// New constructs a Pipeline for one take-chain.
func New(cfg Config) *Pipeline {
	name := "pipeline/" + chainName(cfg.TakeChain.ChainID)
	return &Pipeline{
		cfg:            cfg,
		events:         make(chan order.Order, 1024),
		reentry:        cfg.Mempool.ReEntry,
		incoming:       make(map[common.Hash]order.IncomingOrderContext),
		priorityQ:      list.New(),
		secondaryQ:     list.New(),
		priorityElem:   make(map[common.Hash]*list.Element),
		secondaryElem:  make(map[common.Hash]*list.Element),
		priorityGauge:  metrics.NewRegisteredGauge(name+"/priorityQueueLen", nil),
		secondaryGauge: metrics.NewRegisteredGauge(name+"/secondaryQueueLen", nil),
	}
}

func chainName(id uint64) string {
	switch id {
	case 1:
		return "ethereum"
	case 137:
		return "polygon"
	case 501:
		return "solana"
	default:
		return "chain"
	}
}

// Submit delivers a feed event into the pipeline (spec §6 order-feed
// protocol: the feed "pushes IncomingOrder events").
func (p *Pipeline) Submit(o order.Order) {
	p.events <- o
}

// Run is the single-consumer event loop. It never blocks on RPC itself —
// process_order runs in a dedicated goroutine spawned by tryProcess, so the
// loop keeps draining feed and mempool events (enqueueing them) while one
// order is in flight, matching spec §5's "different take-chains run
// independently" and the single in-flight slot per take-chain.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-p.events:
			p.process(ctx, o, 0)
		case re := <-p.reentry:
			p.processReEntry(ctx, re)
		}
	}
}

// process implements spec §4.8's process(event) entry point.
func (p *Pipeline) process(ctx context.Context, o order.Order, attempts int) {
	logger := order.WithOrderLogger(p.cfg.Logger, o)
	switch o.Status {
	case order.StatusFulfilled, order.StatusArchivalFulfilled:
		p.clearQueues(o.OrderID)
		p.cfg.Mempool.Delete(o.OrderID)
		p.handOffToUnlocker(ctx, o)
	case order.StatusCancelled:
		p.clearQueues(o.OrderID)
		p.cfg.Mempool.Delete(o.OrderID)
	case order.StatusCreated, order.StatusArchivalCreated:
		p.mu.Lock()
		ictx, exists := p.incoming[o.OrderID]
		if exists && (p.inFlight && p.inFlightID == o.OrderID || p.isQueued(o.OrderID)) {
			// Invariant: re-delivering an identical Created event while the
			// order is in-flight or already queued is a no-op (spec §8).
			p.mu.Unlock()
			return
		}
		ictx = order.IncomingOrderContext{Order: o, Logger: logger, Attempts: attempts}
		p.incoming[o.OrderID] = ictx
		p.mu.Unlock()
		p.tryProcess(ctx, o.OrderID, o.Status)
	default:
		logger.Debug("dropping order with unhandled status", "status", o.Status.String())
	}
}

// processReEntry delivers a mempool re-entry through the same process()
// entry point as a fresh event, with the bumped attempt count (spec §4.7).
func (p *Pipeline) processReEntry(ctx context.Context, re mempool.Params) {
	p.mu.Lock()
	ictx, ok := p.incoming[re.OrderID]
	p.mu.Unlock()
	if !ok {
		return
	}
	p.process(ctx, ictx.Order, re.Attempts)
}

func (p *Pipeline) isQueued(id common.Hash) bool {
	_, inPriority := p.priorityElem[id]
	_, inSecondary := p.secondaryElem[id]
	return inPriority || inSecondary
}

// tryProcess implements spec §4.8's try_process: enqueue-if-busy, otherwise
// claim the slot and drain in a loop.
func (p *Pipeline) tryProcess(ctx context.Context, orderID common.Hash, status order.Status) {
	p.mu.Lock()
	if p.inFlight {
		p.enqueueLocked(orderID, status)
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.inFlightID = orderID
	p.mu.Unlock()

	go p.drainLoop(ctx, orderID)
}

func (p *Pipeline) enqueueLocked(orderID common.Hash, status order.Status) {
	if status == order.StatusCreated {
		if _, ok := p.priorityElem[orderID]; ok {
			return
		}
		p.priorityElem[orderID] = p.priorityQ.PushBack(orderID)
		p.priorityGauge.Update(int64(p.priorityQ.Len()))
		return
	}
	if _, ok := p.secondaryElem[orderID]; ok {
		return
	}
	p.secondaryElem[orderID] = p.secondaryQ.PushBack(orderID)
	p.secondaryGauge.Update(int64(p.secondaryQ.Len()))
}

// drainLoop processes orderID, then repeatedly picks the next queued order
// (priority before secondary, spec §5) until both queues are empty, then
// releases the slot. A loop, not recursion, per Design Note #1.
func (p *Pipeline) drainLoop(ctx context.Context, orderID common.Hash) {
	current := orderID
	for {
		p.processOrder(ctx, current)

		p.mu.Lock()
		next, ok := p.popNextLocked()
		if !ok {
			p.inFlight = false
			p.inFlightID = common.Hash{}
			p.mu.Unlock()
			return
		}
		p.inFlightID = next
		p.mu.Unlock()
		current = next
	}
}

func (p *Pipeline) popNextLocked() (common.Hash, bool) {
	if e := p.priorityQ.Front(); e != nil {
		id := e.Value.(common.Hash)
		p.priorityQ.Remove(e)
		delete(p.priorityElem, id)
		p.priorityGauge.Update(int64(p.priorityQ.Len()))
		return id, true
	}
	if e := p.secondaryQ.Front(); e != nil {
		id := e.Value.(common.Hash)
		p.secondaryQ.Remove(e)
		delete(p.secondaryElem, id)
		p.secondaryGauge.Update(int64(p.secondaryQ.Len()))
		return id, true
	}
	return common.Hash{}, false
}

func (p *Pipeline) clearQueues(orderID common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.incoming, orderID)
	if e, ok := p.priorityElem[orderID]; ok {
		p.priorityQ.Remove(e)
		delete(p.priorityElem, orderID)
	}
	if e, ok := p.secondaryElem[orderID]; ok {
		p.secondaryQ.Remove(e)
		delete(p.secondaryElem, orderID)
	}
}

func (p *Pipeline) handOffToUnlocker(ctx context.Context, o order.Order) {
	p.cfg.Unlocker.Add(ctx, unlocker.Key{GiveChain: o.Give.ChainID, GiveToken: o.Give.Token}, unlocker.Entry{OrderID: o.OrderID, Receiver: o.Receiver})
}

func (p *Pipeline) drop(orderID common.Hash, logger log.Logger, reason string) {
	p.clearQueues(orderID)
	logger.Info("order dropped", "reason", reason)
	p.Hooks.Send(HookEvent{OrderID: orderID, Kind: "dropped", Reason: reason})
}

func (p *Pipeline) toMempool(ictx order.IncomingOrderContext, allowed bool, delay time.Duration, logger log.Logger, reason string) {
	if !allowed {
		p.drop(ictx.Order.OrderID, logger, reason+" (mempool not allowed for non-finalized order)")
		return
	}
	p.cfg.Mempool.AddOrder(mempool.Params{OrderID: ictx.Order.OrderID, Attempts: ictx.Attempts + 1}, delay)
	logger.Debug("order sent to mempool", "reason", reason, "attempts", ictx.Attempts+1)
	p.Hooks.Send(HookEvent{OrderID: ictx.Order.OrderID, Kind: "mempooled", Reason: reason})
}

// processOrder implements spec §4.8 steps 1-11.
func (p *Pipeline) processOrder(ctx context.Context, orderID common.Hash) {
	p.mu.Lock()
	ictx, ok := p.incoming[orderID]
	p.mu.Unlock()
	if !ok {
		return // cleared (Cancelled/Fulfilled) before reaching the front of the queue
	}
	o := ictx.Order
	logger := ictx.Logger

	// Data flow (spec §2): Filters run before the confirmation/budget and
	// profitability stages, only for Created/ArchivalCreated (spec §4.2) —
	// which is every order reaching processOrder.
	admitted, err := p.cfg.Filters.Admit(ctx, o)
	if err != nil {
		p.toMempool(ictx, true, 0, logger, "filter evaluation error")
		return
	}
	if !admitted {
		p.drop(orderID, logger, "rejected by filter pipeline")
		return
	}

	giveRef := tokens.Ref{ChainID: o.Give.ChainID, Addr: o.Give.Token.Hex()}
	_, reserve, ok := p.cfg.Buckets.BucketSpanning(giveRef, p.cfg.TakeChain.ChainID)
	if !ok {
		p.drop(orderID, logger, "no bucket spans give token onto take chain")
		return
	}

	fulfilled, err := p.cfg.State.IsFulfilledOnTake(ctx, orderID)
	if err != nil {
		p.toMempool(ictx, true, 0, logger, "transient error checking take-chain fulfillment state")
		return
	}
	if fulfilled {
		p.drop(orderID, logger, "already fulfilled on take chain")
		return
	}
	giveCreated, err := p.cfg.State.GiveStateCreated(ctx, orderID)
	if err != nil {
		p.toMempool(ictx, true, 0, logger, "transient error checking give-chain state")
		return
	}
	if !giveCreated {
		p.drop(orderID, logger, "give-side order state is not Created")
		return
	}

	allowMempool := true
	if o.Status == order.StatusCreated {
		switch o.Finalization.Kind {
		case order.FinalizationRevoked:
			p.drop(orderID, logger, "finalization revoked")
			return
		case order.FinalizationConfirmed:
			giveEntry, err := p.cfg.GiveChainOf(o.Give.ChainID)
			if err != nil {
				p.drop(orderID, logger, err.Error())
				return
			}
			usdWorth, err := p.cfg.Prices.UsdValue(ctx, giveRef, o.Give.Amount)
			if err != nil {
				p.toMempool(ictx, true, 0, logger, "transient error pricing give amount")
				return
			}
			decision := confirmation.Evaluate(giveEntry, usdWorth, o.Finalization.ConfirmationBlocksCnt)
			if !decision.Accepted {
				// Rejected announcements wait for finalization: drop WITHOUT
				// mempooling (spec §4.8 step 4).
				p.drop(orderID, logger, "confirmation policy rejected announced confirmations")
				return
			}
			allowMempool = false
			if !p.cfg.NonFinalized.TryReserve(orderID, usdWorth) {
				p.drop(orderID, logger, "non-finalized budget exhausted")
				return
			}
		}
	}

	balance, err := p.cfg.TakeChain.FulfillSigner.GetBalance(ctx, reserve.Addr)
	if err != nil {
		p.releaseNonFinalized(o, orderID)
		p.toMempool(ictx, allowMempool, 0, logger, "transient error fetching reserve balance")
		return
	}
	if balance.Cmp(o.Take.Amount) < 0 {
		p.releaseNonFinalized(o, orderID)
		p.toMempool(ictx, allowMempool, 0, logger, "insufficient reserve balance")
		return
	}

	var preEst executor.PreEstimate
	if p.cfg.TakeChain.Engine == chain.EngineEVM {
		est, err := executor.Estimate(ctx, executor.PreEstimateParams{
			Order: o, TakeChain: p.cfg.TakeChain,
			Reserve: profitability.Result{ReserveToken: reserve}, Logger: logger,
		})
		if err != nil {
			p.releaseNonFinalized(o, orderID)
			if _, isClient := err.(*errs.ClientError); isClient {
				p.toMempool(ictx, allowMempool, 0, logger, "client error during preliminary estimation")
				return
			}
			p.toMempool(ictx, allowMempool, 0, logger, "error during preliminary estimation")
			return
		}
		preEst = est
	}

	usdCost, err := p.cfg.Prices.UsdValue(ctx, tokens.Ref{ChainID: o.Take.ChainID, Addr: o.Take.Token.Hex()}, o.Take.Amount)
	if err != nil {
		p.releaseNonFinalized(o, orderID)
		p.toMempool(ictx, allowMempool, 0, logger, "transient error pricing take amount")
		return
	}
	if !p.cfg.TVLBudget.TryReserve(orderID, usdCost) {
		p.releaseNonFinalized(o, orderID)
		p.toMempool(ictx, allowMempool, 0, logger, "tvl budget exhausted")
		return
	}

	profResult, err := profitability.Evaluate(ctx, profitability.Params{
		Order: o, TakeChain: p.cfg.TakeChain, Buckets: p.cfg.Buckets,
		Connector: p.cfg.Connector, Prices: p.cfg.Prices,
		BatchUnlockSize: p.cfg.BatchUnlockSize, MinProfitabilityBp: p.cfg.MinProfitabilityBps,
	})
	if err != nil {
		p.cfg.TVLBudget.Release(orderID)
		p.releaseNonFinalized(o, orderID)
		p.toMempool(ictx, allowMempool, 0, logger, "error during profitability evaluation")
		return
	}
	if !profResult.IsProfitable {
		p.cfg.TVLBudget.Release(orderID)
		p.releaseNonFinalized(o, orderID)
		p.toMempool(ictx, allowMempool, 0, logger, "unprofitable")
		return
	}

	result := executor.Execute(ctx, executor.FinalParams{
		Order: o, TakeChain: p.cfg.TakeChain, Reserve: profResult,
		PreEstimate: preEst, Attempts: ictx.Attempts, Logger: logger,
		ConfirmTimeout: p.cfg.ConfirmTimeout,
	})

	p.cfg.TVLBudget.Release(orderID)
	switch result.Outcome {
	case executor.OutcomeFulfilled:
		p.releaseNonFinalized(o, orderID)
		p.clearQueues(orderID)
		p.handOffToUnlocker(ctx, o)
		logger.Info("order fulfilled", "tx", result.Receipt.Hash)
		p.Hooks.Send(HookEvent{OrderID: orderID, Kind: "fulfilled"})
	case executor.OutcomeFastTrackMempool:
		p.releaseNonFinalized(o, orderID)
		p.toMempool(ictx, allowMempool, 5*time.Second, logger, "gas blowout, fast-track retry")
	case executor.OutcomeMempool:
		p.releaseNonFinalized(o, orderID)
		p.toMempool(ictx, allowMempool, 0, logger, "transient execution failure")
	case executor.OutcomeDrop:
		p.releaseNonFinalized(o, orderID)
		p.drop(orderID, logger, "fatal internal condition")
	}
}

func (p *Pipeline) releaseNonFinalized(o order.Order, orderID common.Hash) {
	if o.NonFinalized() {
		p.cfg.NonFinalized.Release(orderID)
	}
}
