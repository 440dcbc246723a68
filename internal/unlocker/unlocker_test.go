package unlocker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/Magma-Layer/dln-taker/internal/signer"
)

type recordingSender struct {
	mu    sync.Mutex
	calls [][]Entry
}

func (r *recordingSender) SendUnlock(ctx context.Context, key Key, entries []Entry) (signer.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, entries)
	return signer.Receipt{Successful: true}, nil
}

type failingSender struct {
	mu    sync.Mutex
	calls int
}

func (f *failingSender) SendUnlock(ctx context.Context, key Key, entries []Entry) (signer.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return signer.Receipt{}, errors.New("rpc unavailable")
}

func TestUnlocker_FlushesExactlyAtBatchSize(t *testing.T) {
	sender := &recordingSender{}
	u := New(3, sender, log.New())
	key := Key{GiveChain: 1, GiveToken: common.HexToAddress("0xaa")}

	ids := []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2"), common.HexToHash("0x3")}
	for _, id := range ids {
		u.Add(context.Background(), key, Entry{OrderID: id})
	}

	require.Len(t, sender.calls, 1)
	require.Len(t, sender.calls[0], 3)
	for i, e := range sender.calls[0] {
		require.Equal(t, ids[i], e.OrderID)
	}
	require.Equal(t, 0, u.Len(key))
}

func TestUnlocker_NoFlushBelowBatchSize(t *testing.T) {
	sender := &recordingSender{}
	u := New(3, sender, log.New())
	key := Key{GiveChain: 1, GiveToken: common.HexToAddress("0xaa")}

	u.Add(context.Background(), key, Entry{OrderID: common.HexToHash("0x1")})
	u.Add(context.Background(), key, Entry{OrderID: common.HexToHash("0x2")})

	require.Empty(t, sender.calls)
	require.Equal(t, 2, u.Len(key))
}

func TestUnlocker_ManualFlushSendsPartialBatch(t *testing.T) {
	sender := &recordingSender{}
	u := New(3, sender, log.New())
	key := Key{GiveChain: 1, GiveToken: common.HexToAddress("0xaa")}

	u.Add(context.Background(), key, Entry{OrderID: common.HexToHash("0x1")})
	require.NoError(t, u.Flush(context.Background(), key))

	require.Len(t, sender.calls, 1)
	require.Len(t, sender.calls[0], 1)
}

func TestUnlocker_FailedFlushKeepsEntriesPending(t *testing.T) {
	sender := &failingSender{}
	u := New(3, sender, log.New())
	key := Key{GiveChain: 1, GiveToken: common.HexToAddress("0xaa")}

	ids := []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2"), common.HexToHash("0x3")}
	for _, id := range ids {
		u.Add(context.Background(), key, Entry{OrderID: id})
	}

	require.Equal(t, 1, sender.calls)
	require.Equal(t, 3, u.Len(key), "failed send must leave entries pending, not drop them")

	// A later flush attempt retries the same, still-pending entries.
	require.Error(t, u.Flush(context.Background(), key))
	require.Equal(t, 2, sender.calls)
	require.Equal(t, 3, u.Len(key))
}

func TestUnlocker_FailedFlushPreservesOrderAheadOfNewEntries(t *testing.T) {
	sender := &failingSender{}
	u := New(3, sender, log.New())
	key := Key{GiveChain: 1, GiveToken: common.HexToAddress("0xaa")}

	ids := []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2"), common.HexToHash("0x3")}
	for _, id := range ids {
		u.Add(context.Background(), key, Entry{OrderID: id})
	}
	require.Equal(t, 3, u.Len(key))

	u.Add(context.Background(), key, Entry{OrderID: common.HexToHash("0x4")})
	require.Equal(t, 4, u.Len(key))

	var pending []common.Hash
	for e := u.slots[key].entries.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(Entry).OrderID)
	}
	require.Equal(t, []common.Hash{ids[0], ids[1], ids[2], common.HexToHash("0x4")}, pending)
}
