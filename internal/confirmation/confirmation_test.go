package confirmation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Magma-Layer/dln-taker/internal/chain"
)

func entryWithRanges() *chain.Entry {
	return &chain.Entry{
		ChainID: 1,
		SrcConstraints: chain.ConstraintRanges{
			{UsdFrom: decimal.Zero, UsdTo: decimal.NewFromInt(1000), MinBlockConfirmations: 12},
			{UsdFrom: decimal.NewFromInt(1000), NoUpperBound: true, MinBlockConfirmations: 32},
		},
	}
}

func TestEvaluate_ExactlyAtThreshold(t *testing.T) {
	e := entryWithRanges()
	d := Evaluate(e, decimal.NewFromInt(1000), 12)
	require.True(t, d.Accepted)
	require.True(t, d.NonFinalized)
	require.Equal(t, uint64(12), d.Range.MinBlockConfirmations)
}

func TestEvaluate_JustAboveThresholdNeedsHigherConfirmations(t *testing.T) {
	e := entryWithRanges()
	d := Evaluate(e, decimal.NewFromInt(1001), 12)
	require.False(t, d.Accepted)
}

func TestEvaluate_NoMatchingRangeRejects(t *testing.T) {
	e := &chain.Entry{SrcConstraints: chain.ConstraintRanges{}}
	d := Evaluate(e, decimal.NewFromInt(5), 100)
	require.False(t, d.Accepted)
}

func TestEvaluate_UnderConfirmedRejects(t *testing.T) {
	e := entryWithRanges()
	d := Evaluate(e, decimal.NewFromInt(500), 5)
	require.False(t, d.Accepted)
}
