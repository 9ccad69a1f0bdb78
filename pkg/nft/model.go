package nft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"neuralsalvage/pkg/arweave"
	"neuralsalvage/pkg/pricing"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusAssetUploaded    Status = "asset_uploaded"
	StatusMetadataUploaded Status = "metadata_uploaded"
	StatusMinted           Status = "minted"
	StatusBridged          Status = "bridged"
	StatusFailed           Status = "failed"
	StatusBridgeFailed     Status = "bridge_failed"
)

type NFT struct {
	ID                int64     `json:"id"`
	AssetID           int64     `json:"asset_id"`
	OwnerUUID         string    `json:"owner_uuid"`
	OwnerWallet       string    `json:"owner_wallet"`
	OwnershipMessage  string    `json:"ownership_message"`
	OwnershipSig      string    `json:"ownership_signature"`
	RoyaltyBps        int       `json:"royalty_bps"`
	Status            Status    `json:"status"`
	ArweaveAssetTx    string    `json:"arweave_asset_tx,omitempty"`
	ArweaveMetaTx     string    `json:"arweave_metadata_tx,omitempty"`
	ArweaveManifestTx string    `json:"arweave_manifest_tx,omitempty"`
	MetadataURI       string    `json:"metadata_uri,omitempty"`
	BridgeRequested   bool      `json:"bridge_requested"`
	PolygonTxHash     string    `json:"polygon_tx_hash,omitempty"`
	PolygonTokenID    string    `json:"polygon_token_id,omitempty"`
	OpenSeaURL        string    `json:"opensea_url,omitempty"`
	Confirmations     int       `json:"confirmations"`
	LastError         string    `json:"last_error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Retryable reports whether Retry has anything left to do at now.
func (n NFT) Retryable(now time.Time) bool {
	switch n.Status {
	case StatusFailed, StatusBridgeFailed:
		return true
	case StatusPending, StatusAssetUploaded, StatusMetadataUploaded:
		// Interrupted before reaching a terminal state.
		return now.Sub(n.UpdatedAt) > stalledAfter
	}
	return false
}

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderConsumed OrderStatus = "consumed"
)

// MintOrder is a paid (or awaiting payment) right to mint one asset.
type MintOrder struct {
	ID              int64       `json:"id"`
	AssetID         int64       `json:"asset_id"`
	UserUUID        string      `json:"user_uuid"`
	PriceCents      int64       `json:"price_cents"`
	StripeSessionID string      `json:"-"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}

type Quote struct {
	AssetID int64             `json:"asset_id"`
	Price   pricing.Quote     `json:"price"`
	Storage *arweave.Estimate `json:"storage,omitempty"`
}

type Checkout struct {
	OrderID   int64         `json:"order_id"`
	SessionID string        `json:"session_id"`
	URL       string        `json:"url"`
	Price     pricing.Quote `json:"price"`
}

type MintRequest struct {
	AssetID    int64  `json:"asset_id" binding:"required"`
	Wallet     string `json:"wallet" binding:"required"`
	Message    string `json:"message" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
	RoyaltyBps int    `json:"royalty_bps"`
	Bridge     bool   `json:"bridge"`
}

// OwnershipMessage is the text a wallet signs to claim an asset.
type OwnershipMessage struct {
	Message  string    `json:"message"`
	AssetID  int64     `json:"asset_id"`
	Wallet   string    `json:"wallet"`
	IssuedAt time.Time `json:"issued_at"`
}

const messageHeader = "Neural Salvage ownership claim"

var ErrMalformedMessage = errors.New("malformed ownership message")

func NewOwnershipMessage(assetID int64, wallet string, issuedAt time.Time) OwnershipMessage {
	issuedAt = issuedAt.UTC().Truncate(time.Second)
	return OwnershipMessage{
		Message: fmt.Sprintf("%s\nAsset: %d\nWallet: %s\nIssued At: %s",
			messageHeader, assetID, wallet, issuedAt.Format(time.RFC3339)),
		AssetID:  assetID,
		Wallet:   wallet,
		IssuedAt: issuedAt,
	}
}

// ParseOwnershipMessage reverses NewOwnershipMessage.
func ParseOwnershipMessage(msg string) (OwnershipMessage, error) {
	lines := strings.Split(strings.ReplaceAll(strings.TrimSpace(msg), "\r\n", "\n"), "\n")
	if len(lines) != 4 || lines[0] != messageHeader {
		return OwnershipMessage{}, ErrMalformedMessage
	}

	fields := make(map[string]string, 3)
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			return OwnershipMessage{}, ErrMalformedMessage
		}
		fields[k] = strings.TrimSpace(v)
	}

	assetID, err := strconv.ParseInt(fields["Asset"], 10, 64)
	if err != nil {
		return OwnershipMessage{}, fmt.Errorf("%w: asset id", ErrMalformedMessage)
	}
	issuedAt, err := time.Parse(time.RFC3339, fields["Issued At"])
	if err != nil {
		return OwnershipMessage{}, fmt.Errorf("%w: issued at", ErrMalformedMessage)
	}
	if fields["Wallet"] == "" {
		return OwnershipMessage{}, fmt.Errorf("%w: wallet", ErrMalformedMessage)
	}
	return OwnershipMessage{Message: msg, AssetID: assetID, Wallet: fields["Wallet"], IssuedAt: issuedAt}, nil
}
