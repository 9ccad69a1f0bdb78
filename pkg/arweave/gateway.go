package arweave

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"neuralsalvage/pkg/cache"
	"neuralsalvage/pkg/restclient"
)

const (
	// Arweave prices storage per 256 KiB chunk.
	chunkSize     = 256 * 1024
	priceCacheTTL = 10 * time.Minute
)

var (
	ErrTxNotFound = errors.New("arweave transaction not found")

	winstonPerAR = decimal.New(1, 12)
)

// Estimate is the storage cost of a payload.
type Estimate struct {
	Bytes   int64           `json:"bytes"`
	Winston string          `json:"winston"`
	AR      decimal.Decimal `json:"ar"`
}

// TxStatus mirrors the gateway's /tx/{id}/status document.
type TxStatus struct {
	Pending       bool   `json:"pending"`
	BlockHeight   int64  `json:"block_height"`
	BlockHash     string `json:"block_indep_hash"`
	Confirmations int    `json:"number_of_confirmations"`
}

// Gateway reads prices and transaction state from an Arweave gateway.
type Gateway struct {
	api   *restclient.Client
	base  string
	cache cache.Cache
	log   *zap.Logger
}

// NewGateway builds a gateway client. prices may be nil to disable caching.
func NewGateway(baseURL string, prices cache.Cache, log *zap.Logger) *Gateway {
	api := restclient.New(baseURL, restclient.WithTimeout(15*time.Second))
	return &Gateway{api: api, base: api.BaseURL(), cache: prices, log: log}
}

// URL is the public gateway link for a transaction or manifest path.
func (g *Gateway) URL(txID string, subpath ...string) string {
	u := g.base + "/" + txID
	for _, p := range subpath {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// Price estimates the upload cost of size bytes, rounded up to whole chunks.
func (g *Gateway) Price(ctx context.Context, size int64) (Estimate, error) {
	if size <= 0 {
		return Estimate{}, errors.New("arweave price: size must be positive")
	}
	chunks := (size + chunkSize - 1) / chunkSize
	key := "arweave:price:" + strconv.FormatInt(chunks, 10)

	if g.cache != nil {
		if cached, ok, err := g.cache.Get(ctx, key); err == nil && ok {
			return estimate(size, cached)
		} else if err != nil {
			g.log.Warn("arweave price cache read", zap.Error(err))
		}
	}

	raw, err := g.api.Do(ctx, http.MethodGet, "/price/"+strconv.FormatInt(chunks*chunkSize, 10), nil)
	if err != nil {
		return Estimate{}, fmt.Errorf("arweave price: %w", err)
	}
	winston := strings.TrimSpace(string(raw))
	est, err := estimate(size, winston)
	if err != nil {
		return Estimate{}, err
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, winston, priceCacheTTL); err != nil {
			g.log.Warn("arweave price cache write", zap.Error(err))
		}
	}
	return est, nil
}

func estimate(size int64, winston string) (Estimate, error) {
	w, err := decimal.NewFromString(winston)
	if err != nil || !w.IsPositive() {
		return Estimate{}, fmt.Errorf("arweave price: unexpected reply %q", winston)
	}
	return Estimate{Bytes: size, Winston: w.String(), AR: w.Div(winstonPerAR)}, nil
}

// Status reports confirmation progress. Pending transactions return a
// TxStatus with Pending set and no error.
func (g *Gateway) Status(ctx context.Context, txID string) (TxStatus, error) {
	raw, err := g.api.Do(ctx, http.MethodGet, "/tx/"+url.PathEscape(txID)+"/status", nil)
	if err != nil {
		if restclient.IsStatus(err, http.StatusNotFound) {
			return TxStatus{}, ErrTxNotFound
		}
		return TxStatus{}, fmt.Errorf("arweave status: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return TxStatus{Pending: true}, nil
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return TxStatus{Pending: true}, nil
	}
	return TxStatus{
		BlockHeight:   doc.Get("block_height").Int(),
		BlockHash:     doc.Get("block_indep_hash").String(),
		Confirmations: int(doc.Get("number_of_confirmations").Int()),
	}, nil
}
