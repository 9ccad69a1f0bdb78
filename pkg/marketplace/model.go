package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID               int64           `json:"id"`
	AssetID          int64           `json:"asset_id"`
	SellerUUID       string          `json:"seller_uuid"`
	BuyerUUID        string          `json:"buyer_uuid"`
	AmountCents      int64           `json:"amount_cents"`
	Amount           decimal.Decimal `json:"amount"`
	PlatformFeeCents int64           `json:"platform_fee_cents"`
	StripeSessionID  string          `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Checkout is a started purchase the buyer completes on Stripe.
type Checkout struct {
	SessionID   string          `json:"session_id"`
	URL         string          `json:"url"`
	AssetID     int64           `json:"asset_id"`
	AmountCents int64           `json:"amount_cents"`
	Amount      decimal.Decimal `json:"amount"`
	FeeCents    int64           `json:"platform_fee_cents"`
}

type Onboarding struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}
