// Package filter implements the admission pipeline (spec §4.2): a pure
// predicate test composed from global filters, the take-chain's destination
// filters, and the give-chain's source filters. An order is admitted iff
// every filter returns true.
package filter

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Magma-Layer/dln-taker/internal/order"
)

// Filter is a single admission predicate. Filters must not short-circuit
// observable side effects (spec §4.2): a filter with a side effect (e.g.
// updating a rate-limit counter) must perform it regardless of evaluation
// order, since filters run concurrently.
type Filter func(ctx context.Context, o order.Order) (bool, error)

// Pipeline composes the three filter lists in the fixed order spec §4.2
// requires for reporting, though evaluation itself is unordered.
type Pipeline struct {
	Global []Filter
	Dst    []Filter // take-chain destination filters
	Src    []Filter // give-chain source filters
}

// Admit runs every filter concurrently and returns true iff all pass.
// Admission is only meaningful for Created/ArchivalCreated orders; callers
// (internal/pipeline) skip this call for all other statuses per spec §4.2.
func (p Pipeline) Admit(ctx context.Context, o order.Order) (bool, error) {
	all := make([]Filter, 0, len(p.Global)+len(p.Dst)+len(p.Src))
	all = append(all, p.Global...)
	all = append(all, p.Dst...)
	all = append(all, p.Src...)

	g, gctx := errgroup.WithContext(ctx)
	results := make([]bool, len(all))
	for i, f := range all {
		i, f := i, f
		g.Go(func() error {
			ok, err := f(gctx, o)
			results[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, ok := range results {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// DenyAll is a filter that always rejects, used by chain.Entry.Disable to
// install a blanket deny-destination filter for a disabled chain (spec §9's
// fix for the "setSupportedChains" no-op bug: disabling must be explicit).
func DenyAll(ctx context.Context, o order.Order) (bool, error) {
	return false, nil
}
