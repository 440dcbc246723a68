// Package unlocker implements the Batch Unlocker (spec §4.9): accumulates
// fulfilled-order entries per (give_chain, give_token) until reaching the
// configured batch size, then issues a single unlock command.
package unlocker

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Magma-Layer/dln-taker/internal/signer"
)

// Key identifies a batch slot.
type Key struct {
	GiveChain uint64
	GiveToken common.Address
}

func (k Key) String() string { return fmt.Sprintf("%d:%s", k.GiveChain, k.GiveToken.Hex()) }

// Entry is one fulfilled order queued for unlock.
type Entry struct {
	OrderID  common.Hash
	Receiver common.Address
}

// UnlockSender builds and sends the give-chain unlock transaction for a
// batch. Kept as an interface so internal/chain.Entry's unlock signer can be
// adapted without this package depending on chain.
type UnlockSender interface {
	SendUnlock(ctx context.Context, key Key, entries []Entry) (signer.Receipt, error)
}

type slot struct {
	key     Key
	entries *list.List // of Entry, insertion order preserved (spec §5, §4.9)
}

// Unlocker holds one slot per (give_chain, give_token) key. Partial batches
// are not flushed by timer in the core spec; flushing below batchSize is a
// tunable operator extension exposed via Flush (see DESIGN.md open
// question #1).
type Unlocker struct {
	batchSize int
	sender    UnlockSender
	logger    log.Logger

	mu    sync.Mutex
	slots map[Key]*slot
}

// New creates an Unlocker. batchSize must be in [1, 10] per spec §3; callers
// validate this at configuration time (internal/config), not here.
func New(batchSize int, sender UnlockSender, logger log.Logger) *Unlocker {
	return &Unlocker{batchSize: batchSize, sender: sender, logger: logger, slots: make(map[Key]*slot)}
}

// Add enqueues a fulfilled order into its (give_chain, give_token) slot. If
// the slot reaches batchSize, it is flushed immediately, in insertion order.
func (u *Unlocker) Add(ctx context.Context, key Key, e Entry) {
	u.mu.Lock()
	s, ok := u.slots[key]
	if !ok {
		s = &slot{key: key, entries: list.New()}
		u.slots[key] = s
	}
	s.entries.PushBack(e)
	full := s.entries.Len() >= u.batchSize
	u.mu.Unlock()

	if full {
		u.flushSlot(ctx, key)
	}
}

// Len reports the current pending count for key, for an operator-driven
// idle-flush timer (DESIGN.md open question #1 — no timer is built in).
func (u *Unlocker) Len(key Key) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if s, ok := u.slots[key]; ok {
		return s.entries.Len()
	}
	return 0
}

// Flush forces an unlock of whatever is pending for key, even below
// batchSize. Exposed for an operator-driven idle timer; never called
// internally (spec §4.9: "Partial batches are not flushed by timer in the
// core spec").
func (u *Unlocker) Flush(ctx context.Context, key Key) error {
	return u.flushSlot(ctx, key)
}

func (u *Unlocker) flushSlot(ctx context.Context, key Key) error {
	u.mu.Lock()
	s, ok := u.slots[key]
	if !ok || s.entries.Len() == 0 {
		u.mu.Unlock()
		return nil
	}
	entries := make([]Entry, 0, s.entries.Len())
	for e := s.entries.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(Entry))
	}
	delete(u.slots, key)
	u.mu.Unlock()

	if _, err := u.sender.SendUnlock(ctx, key, entries); err != nil {
		// Spec §4.9: failures are logged and the entries remain pending for
		// operator intervention; no automatic unlock retry. Re-insert ahead
		// of anything added to this slot while the send was in flight, so
		// Len()/a later Flush still sees them.
		u.restore(key, entries)
		u.logger.Error("batch unlock failed, entries require operator intervention", "key", key.String(), "count", len(entries), "err", err)
		return err
	}
	u.logger.Info("batch unlock sent", "key", key.String(), "count", len(entries))
	return nil
}

// restore re-inserts entries at the front of key's slot, ahead of anything
// enqueued since the failed send, preserving their original order.
func (u *Unlocker) restore(key Key, entries []Entry) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.slots[key]
	if !ok {
		s = &slot{key: key, entries: list.New()}
		u.slots[key] = s
	}
	for i := len(entries) - 1; i >= 0; i-- {
		s.entries.PushFront(entries[i])
	}
}
