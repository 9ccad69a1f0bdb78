// Package arweave stores NFT payloads permanently on Arweave using the
// platform wallet.
package arweave

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/everFinance/goar"
	"github.com/everFinance/goar/types"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("arweave wallet is not configured")

// uploadConcurrency is the number of chunk uploads in flight per transaction.
const uploadConcurrency = 3

// Uploader signs and submits data transactions. The returned id is the
// transaction id, usable as a gateway path right away.
type Uploader interface {
	Upload(ctx context.Context, data []byte, tags []types.Tag) (string, error)
	Address() string
}

type walletUploader struct {
	wallet *goar.Wallet
	log    *zap.Logger
}

// NewUploader loads the platform wallet from a JWK document or, when jwk is
// empty, from a keyfile path. With neither set every upload fails with
// ErrNotConfigured.
func NewUploader(jwk, path, gatewayURL string, log *zap.Logger) (Uploader, error) {
	var (
		wallet *goar.Wallet
		err    error
	)
	switch {
	case strings.TrimSpace(jwk) != "":
		wallet, err = goar.NewWallet([]byte(jwk), gatewayURL)
	case strings.TrimSpace(path) != "":
		wallet, err = goar.NewWalletFromPath(path, gatewayURL)
	default:
		return disabledUploader{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load arweave wallet: %w", err)
	}
	log.Info("arweave wallet loaded", zap.String("address", wallet.Signer.Address))
	return &walletUploader{wallet: wallet, log: log}, nil
}

func (u *walletUploader) Upload(ctx context.Context, data []byte, tags []types.Tag) (string, error) {
	if len(data) == 0 {
		return "", errors.New("arweave upload: empty payload")
	}
	tx, err := u.wallet.SendDataConcurrentSpeedUp(ctx, uploadConcurrency, data, tags, 0)
	if err != nil {
		return "", fmt.Errorf("arweave upload: %w", err)
	}
	u.log.Info("arweave transaction submitted",
		zap.String("tx_id", tx.ID),
		zap.Int("bytes", len(data)),
		zap.String("reward", tx.Reward))
	return tx.ID, nil
}

func (u *walletUploader) Address() string {
	return u.wallet.Signer.Address
}

type disabledUploader struct{}

func (disabledUploader) Upload(context.Context, []byte, []types.Tag) (string, error) {
	return "", ErrNotConfigured
}

func (disabledUploader) Address() string { return "" }
