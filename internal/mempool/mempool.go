// Package mempool implements the Mempool Scheduler (spec §4.7): a per-chain
// retry queue keyed by order id with monotonically growing delays and
// cancellation, built on container/list to preserve same-tick insertion
// order — the corpus's general-purpose scheduling idiom (also seen in the
// teacher's core/txpool/tx_vectorfee_pool.go re-broadcast loop). The delay
// itself is the linear formula spec §4.7 specifies
// ("initial_interval + attempts * max_delay_step"), not a jittered backoff
// library's schedule, since testable property 7 requires the k-th re-entry
// to land at an exact, reproducible offset.
package mempool

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Params is the re-entry payload handed back to the Order Pipeline: the
// order id and the bumped attempt count (spec §4.7: "delivered to the same
// process entry point as a fresh order with a bumped attempts").
type Params struct {
	OrderID  common.Hash
	Attempts int
}

type record struct {
	params        Params
	firstSeen     time.Time
	nextEligible  time.Time
	elem          *list.Element
}

// Scheduler re-enqueues orders into ReEntry after a computed delay.
type Scheduler struct {
	initialInterval time.Duration
	maxDelayStep    time.Duration
	tick            time.Duration

	ReEntry chan Params

	mu      sync.Mutex
	order   *list.List // FIFO of order ids due, preserving same-tick insertion order
	records map[common.Hash]*record

	logger log.Logger

	cancel context.CancelFunc
}

// New creates a Scheduler. initialInterval and maxDelayStep are the base and
// per-attempt step of the backoff formula in spec §4.7
// ("initial_interval + attempts * max_delay_step"); tick is the scheduler's
// polling resolution. Production configuration should keep tick >= 1s per
// spec §4.7; tests may use a finer resolution.
func New(initialInterval, maxDelayStep, tick time.Duration, logger log.Logger) *Scheduler {
	return &Scheduler{
		initialInterval: initialInterval,
		maxDelayStep:    maxDelayStep,
		tick:            tick,
		ReEntry:         make(chan Params, 256),
		order:           list.New(),
		records:         make(map[common.Hash]*record),
		logger:          logger,
	}
}

// AddOrder schedules a re-entry at now + delay, or now + initial_interval +
// attempts*max_delay_step if delay is zero (spec §4.7). Re-adding an order
// already scheduled replaces its prior entry.
func (s *Scheduler) AddOrder(p Params, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if delay <= 0 {
		delay = s.initialInterval + time.Duration(p.Attempts)*s.maxDelayStep
	}

	if existing, ok := s.records[p.OrderID]; ok {
		s.order.Remove(existing.elem)
		delete(s.records, p.OrderID)
	}

	now := time.Now()
	rec := &record{params: p, firstSeen: now, nextEligible: now.Add(delay)}
	rec.elem = s.order.PushBack(rec)
	s.records[p.OrderID] = rec
}

// Delete cancels a scheduled re-entry, if any (spec §4.7 "delete(order_id)").
// Used when a Cancelled event arrives for a mempooled order (spec §5:
// "removes it synchronously").
func (s *Scheduler) Delete(orderID common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[orderID]; ok {
		s.order.Remove(rec.elem)
		delete(s.records, orderID)
	}
}

// Run ticks at the configured resolution, firing every order whose
// nextEligible has passed, in insertion order (spec §4.7 "multiple orders
// fired in the same tick preserve insertion order"). Run blocks until ctx is
// done; on shutdown, pending timers are drained without firing (spec §5).
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue()
		}
	}
}

func (s *Scheduler) fireDue() {
	s.mu.Lock()
	now := time.Now()
	var due []Params
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		rec := e.Value.(*record)
		if !rec.nextEligible.After(now) {
			due = append(due, rec.params)
			s.order.Remove(e)
			delete(s.records, rec.params.OrderID)
		}
		e = next
	}
	s.mu.Unlock()

	for _, p := range due {
		select {
		case s.ReEntry <- p:
		default:
			s.logger.Warn("mempool re-entry channel full, dropping tick", "order_id", p.OrderID.Hex())
		}
	}
}
