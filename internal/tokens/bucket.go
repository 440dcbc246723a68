// Package tokens implements the reserve-token equivalence buckets: sets of
// (chain, token) pairs the operator has declared interchangeable for
// reserve-currency purposes (spec §3 "TokensBucket", §6 "buckets").
package tokens

import (
	"fmt"
	"strings"
)

// Ref identifies a token on a specific chain. Addr is kept as given; lookups
// key on the chain id plus the lowercased address, so EVM hex addresses and
// Solana base58 public keys share the same map key space without a
// chain-engine dependency in this package.
type Ref struct {
	ChainID uint64
	Addr    string
}

func (r Ref) key() string {
	return fmt.Sprintf("%d:%s", r.ChainID, strings.ToLower(r.Addr))
}

// Bucket is one equivalence class of tokens across chains.
type Bucket struct {
	members map[string]Ref
}

func newBucket(refs []Ref) *Bucket {
	b := &Bucket{members: make(map[string]Ref, len(refs))}
	for _, r := range refs {
		b.members[r.key()] = r
	}
	return b
}

// Contains reports whether ref belongs to this bucket.
func (b *Bucket) Contains(ref Ref) bool {
	_, ok := b.members[ref.key()]
	return ok
}

// On returns the bucket's member on the given chain, if any.
func (b *Bucket) On(chainID uint64) (Ref, bool) {
	for _, r := range b.members {
		if r.ChainID == chainID {
			return r, true
		}
	}
	return Ref{}, false
}

// Registry answers bucket-membership and equivalence queries across all
// configured buckets.
type Registry struct {
	buckets []*Bucket
	byRef   map[string][]*Bucket
}

// NewRegistry builds a Registry from the operator's configured bucket list
// (spec §6 "buckets": a list of token-equivalence maps).
func NewRegistry(bucketRefs [][]Ref) *Registry {
	reg := &Registry{byRef: make(map[string][]*Bucket)}
	for _, refs := range bucketRefs {
		b := newBucket(refs)
		reg.buckets = append(reg.buckets, b)
		for _, r := range refs {
			reg.byRef[r.key()] = append(reg.byRef[r.key()], b)
		}
	}
	return reg
}

// IsValidReserve reports whether ref is a valid reserve token on its chain,
// i.e. it belongs to at least one bucket.
func (r *Registry) IsValidReserve(ref Ref) bool {
	return len(r.byRef[ref.key()]) > 0
}

// EquivalentOn returns the token equivalent to ref on targetChain, if any
// bucket spans both chains ("which token on chain X is equivalent?").
func (r *Registry) EquivalentOn(ref Ref, targetChain uint64) (Ref, bool) {
	for _, b := range r.byRef[ref.key()] {
		if eq, ok := b.On(targetChain); ok {
			return eq, true
		}
	}
	return Ref{}, false
}

// BucketsContaining returns every bucket containing ref, in configuration order.
func (r *Registry) BucketsContaining(ref Ref) []*Bucket {
	return r.byRef[ref.key()]
}

// BucketSpanning finds a bucket containing both give and a reserve token on
// takeChain, used by the profitability evaluator (spec §4.5 step 1).
func (r *Registry) BucketSpanning(give Ref, takeChain uint64) (*Bucket, Ref, bool) {
	for _, b := range r.byRef[give.key()] {
		if eq, ok := b.On(takeChain); ok {
			return b, eq, true
		}
	}
	return nil, Ref{}, false
}

// SpansChains reports whether any configured bucket has at least one member
// on each of the two given chains, regardless of token identity. Used at
// startup to validate that every served (give-chain, take-chain) pair has
// reserve-token coverage (spec §4.1).
func (r *Registry) SpansChains(chainA, chainB uint64) bool {
	for _, b := range r.buckets {
		_, okA := b.On(chainA)
		_, okB := b.On(chainB)
		if okA && okB {
			return true
		}
	}
	return false
}
