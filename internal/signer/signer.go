// Package signer defines the minimal capability surface the core needs from
// a chain's signing identity, per Design Note #9: "define the minimal common
// capability set the core needs — address(), get_balance(token),
// send_transaction(tx, {logger}) — and keep engine-specific operations
// behind the variant." Modeled on the ChainAdapter interface pattern in
// other_examples/002fa784 (arcsign/chainadapter).
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
)

// Identity is an opaque chain-address identity: an EVM common.Address or a
// Solana public key, rendered to its canonical string form.
type Identity struct {
	ChainID uint64
	Repr    string // hex (EVM) or base58 (Solana)
}

func (id Identity) String() string { return id.Repr }

// Tx is an opaque, engine-specific unsigned-transaction payload. EVM and
// Solana adapters type-assert to their own concrete request types; the core
// never inspects the payload itself.
type Tx interface {
	isSignerTx()
}

// Receipt is the engine-agnostic result of SendTransaction.
type Receipt struct {
	Hash       string
	BlockNum   uint64
	Successful bool
}

// SendOpts carries cross-cutting options for a broadcast, e.g. the per-order
// logger (Design Note #9's "{logger}" option bag).
type SendOpts struct {
	Logger log.Logger
}

// Signer is the minimal common capability set. EVM and Solana adapters below
// both implement it; chain-engine-specific operations (gas estimation, ABI
// encoding, Solana instruction building) live in internal/executor instead
// of here, matching "do not share a loose base class" (Design Note #9).
type Signer interface {
	Address() Identity
	// GetBalance takes the token's canonical string address (hex for EVM,
	// base58 mint for Solana), keeping the interface engine-agnostic.
	GetBalance(ctx context.Context, token string) (*big.Int, error)
	SendTransaction(ctx context.Context, tx Tx, opts SendOpts) (Receipt, error)
}
