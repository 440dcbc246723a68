// Package feed defines the order-feed collaborator interface (spec §6): the
// external component that discovers orders and pushes IncomingOrder events.
// No concrete feed implementation ships in this module; cmd/taker wires in
// whatever connector the operator configures.
package feed

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/Magma-Layer/dln-taker/internal/order"
)

// ExecuteFunc is the callback the feed invokes once per observed order
// event (spec §6 "init(execute_cb, ...)").
type ExecuteFunc func(order.Order)

// Feed is the order-feed protocol consumed by this taker (spec §6).
type Feed interface {
	// Init is idempotent: a second call returns immediately (spec §6
	// "Process lifecycle: init idempotent; re-entry returns immediately").
	Init(execute ExecuteFunc, unlockAuthorities []string, minConfirmationThresholds []uint64, hooks Hooks) error

	SetEnabledChains(chainIDs []uint64)

	SetLogger(logger log.Logger)
}

// Hooks are optional operator-supplied event callbacks (spec §6
// "hook_handlers (optional event callbacks)").
type Hooks struct {
	OnFulfilled func(order.Order)
	OnDropped   func(order.Order, string)
	OnMempooled func(order.Order, string)
}
