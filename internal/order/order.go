// Package order defines the data model for cross-chain swap orders observed
// from the order feed: the immutable order itself, its feed-supplied status
// and finalization attestation, and the per-order runtime context threaded
// through the pipeline.
package order

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Status is the feed-supplied lifecycle state of an order.
type Status int

const (
	StatusCreated Status = iota
	StatusArchivalCreated
	StatusFulfilled
	StatusArchivalFulfilled
	StatusCancelled
	StatusOther
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusArchivalCreated:
		return "archival_created"
	case StatusFulfilled:
		return "fulfilled"
	case StatusArchivalFulfilled:
		return "archival_fulfilled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// FinalizationKind distinguishes the three attestation levels the feed can
// report for a Created order.
type FinalizationKind int

const (
	FinalizationRevoked FinalizationKind = iota
	FinalizationConfirmed
	FinalizationFinalized
)

// Finalization is the feed-supplied attestation for a Created order. Only
// FinalizationConfirmed carries a confirmation count.
type Finalization struct {
	Kind                  FinalizationKind
	ConfirmationBlocksCnt uint64
}

func Revoked() Finalization   { return Finalization{Kind: FinalizationRevoked} }
func Finalized() Finalization { return Finalization{Kind: FinalizationFinalized} }
func Confirmed(n uint64) Finalization {
	return Finalization{Kind: FinalizationConfirmed, ConfirmationBlocksCnt: n}
}

// Leg is one side of a swap order: a chain-token-amount triple.
type Leg struct {
	ChainID uint64
	Token   common.Address
	Amount  *big.Int
}

// Order is the immutable order as announced by the feed.
type Order struct {
	OrderID common.Hash
	Give    Leg
	Take    Leg
	Receiver common.Address
	Maker    common.Address

	Status       Status
	Finalization Finalization // only meaningful for StatusCreated/StatusArchivalCreated
}

// NonFinalized reports whether this order is only speculatively confirmed
// and therefore subject to the non-finalized exposure budget and barred from
// mempool retry (spec §4.4).
func (o Order) NonFinalized() bool {
	return o.Finalization.Kind == FinalizationConfirmed
}

// IncomingOrderContext bundles an order with its runtime context: a
// per-order logger and the mempool attempt count. It carries no chain
// registry entries; the pipeline package resolves the take-chain and
// give-chain entries from its own configuration.
type IncomingOrderContext struct {
	Order Order

	Logger log.Logger

	// Attempts counts re-entries through the mempool scheduler; zero for an
	// order delivered straight from the feed.
	Attempts int
}

// WithOrderLogger derives a per-order logger carrying the order id and take
// chain, matching the teacher's log.Logger.With(...) idiom.
func WithOrderLogger(base log.Logger, o Order) log.Logger {
	return base.New("order_id", o.OrderID.Hex(), "give_chain", o.Give.ChainID, "take_chain", o.Take.ChainID)
}
