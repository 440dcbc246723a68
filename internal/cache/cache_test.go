package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCache_PriceAndDecimalsRoundTrip(t *testing.T) {
	c, err := New(1000, time.Minute)
	require.NoError(t, err)

	c.PutDecimals(1, "0xabc", 18)
	dec, ok := c.GetDecimals(1, "0xabc")
	require.True(t, ok)
	require.Equal(t, uint8(18), dec)

	c.PutPrice(1, "0xabc", decimal.NewFromFloat(1.5))
	price, ok := c.GetPrice(1, "0xabc")
	require.True(t, ok)
	require.True(t, decimal.NewFromFloat(1.5).Equal(price))
}

func TestCache_MissingKeyReportsNotFound(t *testing.T) {
	c, err := New(1000, time.Minute)
	require.NoError(t, err)

	_, ok := c.GetPrice(1, "0xdoesnotexist")
	require.False(t, ok)
}
