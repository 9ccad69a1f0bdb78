// Package pricing maps file sizes to mint price tiers.
package pricing

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	mb = 1024 * 1024

	// SubscriberDiscountPercent is taken off every tier for paying subscribers.
	SubscriberDiscountPercent = 15
)

var (
	ErrInvalidSize  = errors.New("file size must be positive")
	ErrFileTooLarge = errors.New("file exceeds the largest mint tier")
)

// Tier is a size bracket with a fixed price.
type Tier struct {
	Name       string `json:"name"`
	MaxBytes   int64  `json:"max_bytes"`
	PriceCents int64  `json:"price_cents"`
}

// Tiers are ordered by MaxBytes; a file falls in the first tier that fits it.
var Tiers = []Tier{
	{Name: "Tiny", MaxBytes: 10 * mb, PriceCents: 399},
	{Name: "Small", MaxBytes: 50 * mb, PriceCents: 599},
	{Name: "Medium", MaxBytes: 100 * mb, PriceCents: 999},
	{Name: "Large", MaxBytes: 250 * mb, PriceCents: 1999},
	{Name: "XLarge", MaxBytes: 500 * mb, PriceCents: 3499},
	{Name: "Huge", MaxBytes: 1024 * mb, PriceCents: 5999},
}

// MaxMintBytes is the largest file any tier accepts.
func MaxMintBytes() int64 {
	return Tiers[len(Tiers)-1].MaxBytes
}

// Quote is a priced mint for a given file size.
type Quote struct {
	Tier            string          `json:"tier"`
	SizeBytes       int64           `json:"size_bytes"`
	Size            string          `json:"size"`
	BasePriceCents  int64           `json:"base_price_cents"`
	PriceCents      int64           `json:"price_cents"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent int             `json:"discount_percent"`
	Subscriber      bool            `json:"subscriber"`
}

// CalculateMintPrice resolves the tier for sizeBytes at list price.
func CalculateMintPrice(sizeBytes int64) (Quote, error) {
	if sizeBytes <= 0 {
		return Quote{}, ErrInvalidSize
	}
	for _, t := range Tiers {
		if sizeBytes <= t.MaxBytes {
			return Quote{
				Tier:           t.Name,
				SizeBytes:      sizeBytes,
				Size:           humanize.IBytes(uint64(sizeBytes)),
				BasePriceCents: t.PriceCents,
				PriceCents:     t.PriceCents,
				Price:          Dollars(t.PriceCents),
			}, nil
		}
	}
	return Quote{}, fmt.Errorf("%w: %s > %s", ErrFileTooLarge,
		humanize.IBytes(uint64(sizeBytes)), humanize.IBytes(uint64(MaxMintBytes())))
}

// CalculateSubscriberPrice applies the subscriber discount, rounding half up to the cent.
func CalculateSubscriberPrice(priceCents int64) int64 {
	if priceCents <= 0 {
		return 0
	}
	discounted := decimal.NewFromInt(priceCents).
		Mul(decimal.NewFromInt(100 - SubscriberDiscountPercent)).
		Div(decimal.NewFromInt(100))
	return discounted.Round(0).IntPart()
}

// QuoteForUser prices a mint, discounting it when subscriber is true.
func QuoteForUser(sizeBytes int64, subscriber bool) (Quote, error) {
	q, err := CalculateMintPrice(sizeBytes)
	if err != nil {
		return Quote{}, err
	}
	if subscriber {
		q.Subscriber = true
		q.DiscountPercent = SubscriberDiscountPercent
		q.PriceCents = CalculateSubscriberPrice(q.BasePriceCents)
		q.Price = Dollars(q.PriceCents)
	}
	return q, nil
}

// Dollars renders cents as a two-place decimal amount.
func Dollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FeeCents returns bps basis points of amountCents, rounded half up.
func FeeCents(amountCents, bps int64) int64 {
	if amountCents <= 0 || bps <= 0 {
		return 0
	}
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).IntPart()
}
