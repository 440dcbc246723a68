// Package chain implements the Chain Registry (spec §4.1): per-chain
// configured state constructed once at startup, read-only thereafter.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/Magma-Layer/dln-taker/internal/budget"
	"github.com/Magma-Layer/dln-taker/internal/errs"
	"github.com/Magma-Layer/dln-taker/internal/filter"
	"github.com/Magma-Layer/dln-taker/internal/signer"
	"github.com/Magma-Layer/dln-taker/internal/tokens"
)

// EVMReader is the read-path RPC surface internal/executor needs for gas
// estimation and confirmation polling. *ethclient.Client satisfies this
// structurally; tests substitute a fake.
type EVMReader interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SolanaReader is the read-path RPC surface internal/executor needs to poll
// for signature confirmation. *rpc.Client satisfies this structurally.
type SolanaReader interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// ConstraintRange is one entry of a chain's src_constraints/dst_constraints
// list (spec §3, §6). Ranges are matched by "from < usd_worth <= to".
type ConstraintRange struct {
	UsdFrom               decimal.Decimal
	UsdTo                 decimal.Decimal // ignored when NoUpperBound is set
	NoUpperBound          bool
	MinBlockConfirmations uint64 // meaningful for src_constraints only
	FulfillmentDelaySec   uint64

	// PreFulfillSwapChangeRecipient is "taker" (default) or "maker" (spec §6).
	PreFulfillSwapChangeRecipient string
}

// Matches reports whether usd falls in (UsdFrom, UsdTo].
func (r ConstraintRange) Matches(usd decimal.Decimal) bool {
	if !usd.GreaterThan(r.UsdFrom) {
		return false
	}
	return r.NoUpperBound || !usd.GreaterThan(r.UsdTo)
}

// ConstraintRanges is a total-ordered-by-UsdFrom list with first-match
// lookup (spec §3 invariant, §4.4).
type ConstraintRanges []ConstraintRange

// Lookup returns the first range whose (from, to] bracket contains usd.
func (rs ConstraintRanges) Lookup(usd decimal.Decimal) (ConstraintRange, bool) {
	for _, r := range rs {
		if r.Matches(usd) {
			return r, true
		}
	}
	return ConstraintRange{}, false
}

func (rs ConstraintRanges) sorted() ConstraintRanges {
	out := append(ConstraintRanges(nil), rs...)
	sort.Slice(out, func(i, j int) bool { return out[i].UsdFrom.LessThan(out[j].UsdFrom) })
	return out
}

// Entry is the per-chain configured state (spec §3 "ChainEntry").
type Entry struct {
	ChainID      uint64
	Engine       Engine
	RPC          string
	UnlockSigner signer.Signer
	FulfillSigner signer.Signer
	Beneficiary  string

	// EVMClient/SolanaClient are the read-path RPC handles used directly by
	// internal/executor for gas estimation and on-chain observation
	// (spec §4.6); exactly one is set, matching Engine.
	EVMClient    EVMReader
	SolanaClient SolanaReader

	SrcConstraints ConstraintRanges // indexed by USD threshold, give-side
	DstConstraints ConstraintRanges // take-side

	GlobalFilters []filter.Filter
	DstFilters    []filter.Filter // this chain acting as take-chain
	SrcFilters    []filter.Filter // this chain acting as give-chain

	TVLBudget          *budget.Controller
	NonFinalizedBudget *budget.Controller

	HardCap uint64

	mu       sync.RWMutex
	disabled bool
}

// Disable installs a blanket deny-destination filter for this chain. This
// is the explicit fix for the source's "setSupportedChains" no-op bug (spec
// §9, DESIGN.md decision #2): disabling a chain must visibly reject every
// order that would take on it, not silently no-op.
func (e *Entry) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disabled {
		return
	}
	e.disabled = true
	e.DstFilters = append(e.DstFilters, filter.DenyAll)
}

func (e *Entry) Disabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disabled
}

// Registry is the read-only (post-construction) set of configured chains.
type Registry struct {
	entries map[uint64]*Entry
	buckets *tokens.Registry
}

// New validates and constructs the registry (spec §4.1). servedPairs lists
// every (give-chain, take-chain) pair the operator intends to serve; New
// fails with ConfigError if no bucket covers one of them.
func New(entries []*Entry, buckets *tokens.Registry, servedPairs [][2]uint64) (*Registry, error) {
	r := &Registry{entries: make(map[uint64]*Entry, len(entries)), buckets: buckets}
	for _, e := range entries {
		if e.HardCap == 0 {
			e.HardCap = DefaultHardCap(e.ChainID)
		}
		for _, rng := range e.SrcConstraints {
			if rng.MinBlockConfirmations >= e.HardCap {
				return nil, &errs.ConfigError{Reason: fmt.Sprintf(
					"chain %d: min_block_confirmations %d >= hard cap %d",
					e.ChainID, rng.MinBlockConfirmations, e.HardCap)}
			}
		}
		e.SrcConstraints = e.SrcConstraints.sorted()
		e.DstConstraints = e.DstConstraints.sorted()
		r.entries[e.ChainID] = e
	}
	for _, pair := range servedPairs {
		give, take := pair[0], pair[1]
		if !buckets.SpansChains(give, take) {
			return nil, &errs.ConfigError{Reason: fmt.Sprintf(
				"no bucket covers give-chain %d -> take-chain %d", give, take)}
		}
	}
	return r, nil
}

// Get returns the entry for chainID, failing with UnsupportedChain if absent
// (spec §4.1).
func (r *Registry) Get(chainID uint64) (*Entry, error) {
	e, ok := r.entries[chainID]
	if !ok {
		return nil, &errs.UnsupportedChain{ChainID: chainID}
	}
	return e, nil
}

// All returns every configured chain id, for iterating at startup (e.g. to
// start one pipeline per take-chain).
func (r *Registry) All() []uint64 {
	ids := make([]uint64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
