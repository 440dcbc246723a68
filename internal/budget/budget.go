// Package budget implements the two per-chain budget controllers (spec
// §4.3): a TVL-in-flight cap and a non-finalized-orders USD cap. Both are
// advisory admission gates, not balance checks — modeled on the Gate
// interface shape in other_examples/bf9bc73c (quantumlife-canon-core's caps
// package): Check-then-commit, with a matching release on completion/abort.
package budget

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/shopspring/decimal"
)

// Controller is a thread-safe running-sum ledger keyed by order id, gated at
// a configured USD cap.
type Controller struct {
	name string
	cap  decimal.Decimal

	mu           sync.RWMutex
	contribution map[common.Hash]decimal.Decimal
	sum          decimal.Decimal

	reserved metrics.Gauge
	rejected metrics.Counter
}

// New creates a Controller with the given cap. name is used to namespace
// its metrics, mirroring the teacher's per-subsystem metrics naming
// ("miner/transactionConditional/...") in miner/worker.go.
func New(name string, cap decimal.Decimal) *Controller {
	return &Controller{
		name:         name,
		cap:          cap,
		contribution: make(map[common.Hash]decimal.Decimal),
		reserved:     metrics.NewRegisteredGauge("budget/"+name+"/reservedUsd", nil),
		rejected:     metrics.NewRegisteredCounter("budget/"+name+"/rejected", nil),
	}
}

// TryReserve admits orderID's usd contribution iff the running sum would
// stay within cap. It is idempotent: re-reserving the same order id first
// releases its prior contribution.
func (c *Controller) TryReserve(orderID common.Hash, usd decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.sum
	if prior, ok := c.contribution[orderID]; ok {
		base = base.Sub(prior)
	}
	if base.Add(usd).GreaterThan(c.cap) {
		c.rejected.Inc(1)
		return false
	}
	c.contribution[orderID] = usd
	c.sum = base.Add(usd)
	c.reserved.Update(c.sum.IntPart())
	return true
}

// Release removes orderID's contribution, if any.
func (c *Controller) Release(orderID common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prior, ok := c.contribution[orderID]
	if !ok {
		return
	}
	delete(c.contribution, orderID)
	c.sum = c.sum.Sub(prior)
	c.reserved.Update(c.sum.IntPart())
}

// Headroom reports the remaining capacity under the cap.
func (c *Controller) Headroom() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cap.Sub(c.sum)
}

// NewTVLController builds the TVLBudgetController of spec §4.3: caps the
// total USD value of outstanding (in-flight) fulfillments per chain.
func NewTVLController(capUSD decimal.Decimal) *Controller {
	return New("tvl", capUSD)
}

// NewNonFinalizedController builds the NonFinalizedOrdersBudgetController of
// spec §4.3: scoped to orders whose finalization is Confirmed{_}. An order
// graduating to Finalized must be Release()d from this controller by the
// caller.
func NewNonFinalizedController(capUSD decimal.Decimal) *Controller {
	return New("non_finalized", capUSD)
}
