package mempool

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FiresAfterDelayPreservingInsertionOrder(t *testing.T) {
	s := New(10*time.Millisecond, 10*time.Millisecond, 5*time.Millisecond, log.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	idA := common.HexToHash("0xa")
	idB := common.HexToHash("0xb")
	s.AddOrder(Params{OrderID: idA}, 5*time.Millisecond)
	s.AddOrder(Params{OrderID: idB}, 5*time.Millisecond)

	var got []common.Hash
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case p := <-s.ReEntry:
			got = append(got, p.OrderID)
		case <-timeout:
			t.Fatal("timed out waiting for re-entries")
		}
	}
	require.Equal(t, []common.Hash{idA, idB}, got)
}

func TestScheduler_DeleteCancelsReEntry(t *testing.T) {
	s := New(5*time.Millisecond, 5*time.Millisecond, 5*time.Millisecond, log.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	id := common.HexToHash("0xc")
	s.AddOrder(Params{OrderID: id}, 20*time.Millisecond)
	s.Delete(id)

	select {
	case p := <-s.ReEntry:
		t.Fatalf("expected no re-entry after delete, got %v", p)
	case <-time.After(80 * time.Millisecond):
	}
}
