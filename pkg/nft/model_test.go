package nft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOwnershipMessageRoundTrip(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 30, 15, 999, time.FixedZone("X", 3600))
	msg := NewOwnershipMessage(42, "0xAbC0000000000000000000000000000000000001", issued)

	require.Equal(t, "Neural Salvage ownership claim\nAsset: 42\nWallet: 0xAbC0000000000000000000000000000000000001\nIssued At: 2026-03-01T11:30:15Z", msg.Message)

	parsed, err := ParseOwnershipMessage(msg.Message)
	require.NoError(t, err)
	require.Equal(t, int64(42), parsed.AssetID)
	require.Equal(t, msg.Wallet, parsed.Wallet)
	require.True(t, parsed.IssuedAt.Equal(msg.IssuedAt))

	parsed, err = ParseOwnershipMessage("Neural Salvage ownership claim\r\nAsset: 42\r\nWallet: 0xabc\r\nIssued At: 2026-03-01T11:30:15Z")
	require.NoError(t, err)
	require.Equal(t, "0xabc", parsed.Wallet)
}

func TestParseOwnershipMessage_Malformed(t *testing.T) {
	cases := []string{
		"",
		"hello",
		"Other header\nAsset: 1\nWallet: 0x1\nIssued At: 2026-03-01T11:30:15Z",
		"Neural Salvage ownership claim\nAsset: x\nWallet: 0x1\nIssued At: 2026-03-01T11:30:15Z",
		"Neural Salvage ownership claim\nAsset: 1\nWallet: 0x1\nIssued At: yesterday",
		"Neural Salvage ownership claim\nAsset: 1\nWallet:\nIssued At: 2026-03-01T11:30:15Z",
		"Neural Salvage ownership claim\nAsset 1\nWallet: 0x1\nIssued At: 2026-03-01T11:30:15Z",
	}
	for _, msg := range cases {
		_, err := ParseOwnershipMessage(msg)
		require.ErrorIs(t, err, ErrMalformedMessage, msg)
	}
}

func TestRetryable(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, NFT{Status: StatusFailed}.Retryable(now))
	require.True(t, NFT{Status: StatusBridgeFailed}.Retryable(now))
	require.False(t, NFT{Status: StatusMinted}.Retryable(now))
	require.False(t, NFT{Status: StatusBridged}.Retryable(now))
	require.False(t, NFT{Status: StatusAssetUploaded, UpdatedAt: now.Add(-stalledAfter)}.Retryable(now))
	require.True(t, NFT{Status: StatusAssetUploaded, UpdatedAt: now.Add(-time.Hour)}.Retryable(now))
	require.False(t, NFT{Status: StatusPending, UpdatedAt: now.Add(-time.Minute)}.Retryable(now))
}
