// Package confirmation implements the Confirmation Policy (spec §4.4): maps
// an order's USD worth to a required minimum block-confirmation count and
// rejects under-confirmed announcements.
package confirmation

import (
	"github.com/shopspring/decimal"

	"github.com/Magma-Layer/dln-taker/internal/chain"
)

// Decision is the outcome of evaluating a Created order's announced
// confirmation count against the give-chain's constraint ranges.
type Decision struct {
	Accepted bool
	// NonFinalized is true when the order is accepted on an announced
	// confirmation count below finalization: it is subject to the
	// non-finalized budget and barred from the mempool retry (spec §4.4).
	NonFinalized bool
	Range        chain.ConstraintRange
}

// Evaluate runs spec §4.4 against usdWorth and the announced confirmation
// count, using the give-chain entry's ordered src_constraints.
func Evaluate(entry *chain.Entry, usdWorth decimal.Decimal, announced uint64) Decision {
	rng, ok := entry.SrcConstraints.Lookup(usdWorth)
	if !ok {
		return Decision{Accepted: false}
	}
	if announced < rng.MinBlockConfirmations {
		return Decision{Accepted: false, Range: rng}
	}
	return Decision{Accepted: true, NonFinalized: true, Range: rng}
}
