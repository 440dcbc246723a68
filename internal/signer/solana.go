package signer

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SolanaTx wraps a built Solana instruction bundle. No gas bumping happens
// for Solana (spec §4.6): the instructions already carry their compute
// budget.
type SolanaTx struct {
	Instructions []solana.Instruction
	Signers      []solana.PrivateKey
}

func (SolanaTx) isSignerTx() {}

// SolanaSigner is the single-writer signer for one Solana cluster: all
// transactions sign-and-submit sequentially through this adapter (spec §5).
type SolanaSigner struct {
	chainID uint64
	client  *rpc.Client
	key     solana.PrivateKey

	mu sync.Mutex // serializes SendTransaction
}

func NewSolanaSigner(chainID uint64, client *rpc.Client, key solana.PrivateKey) *SolanaSigner {
	return &SolanaSigner{chainID: chainID, client: client, key: key}
}

func (s *SolanaSigner) Address() Identity {
	return Identity{ChainID: s.chainID, Repr: s.key.PublicKey().String()}
}

func (s *SolanaSigner) GetBalance(ctx context.Context, token string) (*big.Int, error) {
	if token == "" {
		out, err := s.client.GetBalance(ctx, s.key.PublicKey(), rpc.CommitmentConfirmed)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetUint64(out.Value), nil
	}
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return nil, err
	}
	return splTokenBalance(ctx, s.client, mint, s.key.PublicKey())
}

func (s *SolanaSigner) SendTransaction(ctx context.Context, tx Tx, opts SendOpts) (Receipt, error) {
	stx, ok := tx.(SolanaTx)
	if !ok {
		return Receipt{}, errors.New("solana signer given non-Solana transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recent, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return Receipt{}, err
	}
	built, err := solana.NewTransaction(stx.Instructions, recent.Value.Blockhash, solana.TransactionPayer(s.key.PublicKey()))
	if err != nil {
		return Receipt{}, err
	}
	signers := append([]solana.PrivateKey{s.key}, stx.Signers...)
	if _, err := built.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for _, sk := range signers {
			if sk.PublicKey().Equals(key) {
				return &sk
			}
		}
		return nil
	}); err != nil {
		return Receipt{}, err
	}
	sig, err := s.client.SendTransactionWithOpts(ctx, built, rpc.TransactionOpts{SkipPreflight: false})
	if err != nil {
		return Receipt{}, err
	}
	if opts.Logger != nil {
		opts.Logger.Info("broadcast solana transaction", "sig", sig.String())
	}
	return Receipt{Hash: sig.String(), Successful: true}, nil
}

// splTokenBalance resolves the owner's associated token account for mint and
// reads its balance with getTokenAccountBalance. Kept here rather than in
// executor since balance reads are a signer capability (Design Note #9), not
// a fulfillment concern.
func splTokenBalance(ctx context.Context, client *rpc.Client, mint, owner solana.PublicKey) (*big.Int, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	out, err := client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}
	bal, ok := new(big.Int).SetString(out.Value.Amount, 10)
	if !ok {
		return nil, errors.New("malformed token account balance")
	}
	return bal, nil
}
