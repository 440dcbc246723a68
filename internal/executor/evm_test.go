package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Magma-Layer/dln-taker/internal/order"
)

func TestDecideGasBlowout_WithinCapFulfills(t *testing.T) {
	outcome, blown := decideGasBlowout(100_000, 125_000, 0)
	require.False(t, blown)
	require.Equal(t, OutcomeFulfilled, outcome)
}

func TestDecideGasBlowout_FirstTwoAttemptsFastTrack(t *testing.T) {
	for attempts := 0; attempts < 2; attempts++ {
		outcome, blown := decideGasBlowout(140_000, 125_000, attempts)
		require.True(t, blown)
		require.Equal(t, OutcomeFastTrackMempool, outcome)
	}
}

func TestDecideGasBlowout_ThirdAttemptStandardMempool(t *testing.T) {
	outcome, blown := decideGasBlowout(140_000, 125_000, 2)
	require.True(t, blown)
	require.Equal(t, OutcomeMempool, outcome)
}

func TestBuildEVMFulfillTx_IncludesOrderIDAndReserve(t *testing.T) {
	to := evmAddr("0x000000000000000000000000000000000000aa")
	reserve := evmAddr("0x000000000000000000000000000000000000bb")
	tx := buildEVMFulfillTx(to, order.Order{}, reserve, 500, 21000, nil)
	require.Equal(t, to, tx.To)
	require.Len(t, tx.Data, 4+32+32+32)
}
