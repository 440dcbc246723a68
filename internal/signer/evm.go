package signer

import (
	"context"
	"errors"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EVMTx wraps an unsigned EVM transaction request. internal/executor builds
// these; this package only signs and submits them.
type EVMTx struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

func (EVMTx) isSignerTx() {}

// EVMSigner is a single-writer signer for one EVM chain: every transaction
// from the chain goes through this adapter, which serializes nonce
// allocation internally (spec §5 "Shared resources"). SendTransaction only
// signs and broadcasts; it does not wait for the transaction to be mined —
// that bounded wait is internal/executor's job (waitObservedEVM), matching
// the Solana signer's shape (spec §5 "bounded polling horizon").
type EVMSigner struct {
	chainID uint64
	client  *ethclient.Client
	opts    *bind.TransactOpts

	mu sync.Mutex // held from nonce fetch through broadcast
}

// NewEVMSigner builds a signer bound to a keyed transactor, matching
// other_examples/79231c03's bind.NewKeyedTransactor(pk) construction.
func NewEVMSigner(chainID uint64, client *ethclient.Client, opts *bind.TransactOpts) *EVMSigner {
	return &EVMSigner{chainID: chainID, client: client, opts: opts}
}

func (s *EVMSigner) Address() Identity {
	return Identity{ChainID: s.chainID, Repr: s.opts.From.Hex()}
}

func (s *EVMSigner) GetBalance(ctx context.Context, token string) (*big.Int, error) {
	addr := common.HexToAddress(token)
	if addr == (common.Address{}) {
		return s.client.BalanceAt(ctx, s.opts.From, nil)
	}
	return erc20BalanceOf(ctx, s.client, addr, s.opts.From)
}

func (s *EVMSigner) SendTransaction(ctx context.Context, tx Tx, opts SendOpts) (Receipt, error) {
	etx, ok := tx.(EVMTx)
	if !ok {
		return Receipt{}, errors.New("evm signer given non-EVM transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	nonce, err := s.client.PendingNonceAt(ctx, s.opts.From)
	if err != nil {
		return Receipt{}, err
	}
	signed, err := s.opts.Signer(s.opts.From, types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &etx.To,
		Value:    etx.Value,
		Gas:      etx.GasLimit,
		GasPrice: etx.GasPrice,
		Data:     etx.Data,
	}))
	if err != nil {
		return Receipt{}, err
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return Receipt{}, err
	}
	if opts.Logger != nil {
		opts.Logger.Info("broadcast evm transaction", "hash", signed.Hash().Hex())
	}
	return Receipt{Hash: signed.Hash().Hex()}, nil
}

// erc20BalanceOf calls the ERC-20 balanceOf(address) selector directly,
// avoiding a generated binding for a single read, matching the manual ABI
// packing shown in other_examples/79231c03.
func erc20BalanceOf(ctx context.Context, client *ethclient.Client, token, owner common.Address) (*big.Int, error) {
	const balanceOfSelector = "70a08231"
	data := append(common.FromHex(balanceOfSelector), common.LeftPadBytes(owner.Bytes(), 32)...)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}
