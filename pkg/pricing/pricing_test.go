package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCalculateMintPrice_FiveMBIsTiny(t *testing.T) {
	q, err := CalculateMintPrice(5 * mb)

	require.NoError(t, err)
	require.Equal(t, "Tiny", q.Tier)
	require.EqualValues(t, 399, q.PriceCents)
	require.True(t, decimal.RequireFromString("3.99").Equal(q.Price))
	require.Equal(t, "5.0 MiB", q.Size)
}

func TestCalculateMintPrice_TierBoundaries(t *testing.T) {
	cases := []struct {
		size int64
		tier string
		cost int64
	}{
		{1, "Tiny", 399},
		{10 * mb, "Tiny", 399},
		{10*mb + 1, "Small", 599},
		{50 * mb, "Small", 599},
		{100 * mb, "Medium", 999},
		{250 * mb, "Large", 1999},
		{500 * mb, "XLarge", 3499},
		{1024 * mb, "Huge", 5999},
	}
	for _, tc := range cases {
		q, err := CalculateMintPrice(tc.size)
		require.NoError(t, err)
		require.Equal(t, tc.tier, q.Tier, "size %d", tc.size)
		require.Equal(t, tc.cost, q.PriceCents, "size %d", tc.size)
	}
}

func TestCalculateMintPrice_Errors(t *testing.T) {
	_, err := CalculateMintPrice(0)
	require.ErrorIs(t, err, ErrInvalidSize)

	_, err = CalculateMintPrice(-5)
	require.ErrorIs(t, err, ErrInvalidSize)

	_, err = CalculateMintPrice(MaxMintBytes() + 1)
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestCalculateSubscriberPrice(t *testing.T) {
	require.EqualValues(t, 509, CalculateSubscriberPrice(599))
	require.EqualValues(t, 339, CalculateSubscriberPrice(399))
	require.EqualValues(t, 849, CalculateSubscriberPrice(999))
	require.EqualValues(t, 0, CalculateSubscriberPrice(0))
}

func TestQuoteForUser(t *testing.T) {
	q, err := QuoteForUser(20*mb, true)
	require.NoError(t, err)
	require.Equal(t, "Small", q.Tier)
	require.True(t, q.Subscriber)
	require.Equal(t, SubscriberDiscountPercent, q.DiscountPercent)
	require.EqualValues(t, 599, q.BasePriceCents)
	require.EqualValues(t, 509, q.PriceCents)
	require.True(t, decimal.RequireFromString("5.09").Equal(q.Price))

	q, err = QuoteForUser(20*mb, false)
	require.NoError(t, err)
	require.False(t, q.Subscriber)
	require.EqualValues(t, 599, q.PriceCents)
}

func TestFeeCents(t *testing.T) {
	require.EqualValues(t, 100, FeeCents(1000, 1000))
	require.EqualValues(t, 60, FeeCents(599, 1000))
	require.EqualValues(t, 0, FeeCents(599, 0))
}
