package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured    = errors.New("payments are not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Checkout metadata keys and kinds shared with the webhook router.
const (
	MetaKind      = "kind"
	MetaAssetID   = "asset_id"
	MetaBuyerUUID = "buyer_uuid"
	MetaOrderID   = "order_id"
	MetaUserUUID  = "user_uuid"

	KindPurchase     = "purchase"
	KindMint         = "mint"
	KindSubscription = "subscription"
)

type PaymentRequest struct {
	Name          string
	Description   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	Reference     string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
	// Destination, when set, routes the charge to a Connect account minus FeeCents.
	Destination string
	FeeCents    int64
}

type SubscriptionRequest struct {
	PriceID       string
	CustomerID    string
	CustomerEmail string
	Reference     string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
}

type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Gateway is the subset of Stripe the service talks to.
type Gateway interface {
	CheckoutPayment(ctx context.Context, req PaymentRequest) (Session, error)
	CheckoutSubscription(ctx context.Context, req SubscriptionRequest) (Session, error)
	CreateConnectAccount(ctx context.Context, email string) (string, error)
	AccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	ParseEvent(payload []byte, signature string) (stripe.Event, error)
}

type stripeGateway struct {
	api           *client.API
	webhookSecret string
}

type GatewayOption func(*stripe.BackendConfig)

// WithBackendURL points the API backend somewhere other than api.stripe.com.
func WithBackendURL(url string) GatewayOption {
	return func(c *stripe.BackendConfig) { c.URL = stripe.String(url) }
}

// NewStripeGateway returns a Gateway backed by stripe-go. An empty secret key
// yields a gateway that fails every call with ErrNotConfigured.
func NewStripeGateway(secretKey, webhookSecret string, log *zap.Logger, opts ...GatewayOption) Gateway {
	if secretKey == "" {
		return disabledGateway{}
	}
	cfg := &stripe.BackendConfig{
		LeveledLogger:     log.Sugar(),
		MaxNetworkRetries: stripe.Int64(2),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	})
	return &stripeGateway{api: api, webhookSecret: webhookSecret}
}

func (g *stripeGateway) CheckoutPayment(ctx context.Context, req PaymentRequest) (Session, error) {
	currency := req.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.Name),
					Description: optional(req.Description),
				},
				UnitAmount: stripe.Int64(req.AmountCents),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		CustomerEmail:     optional(req.CustomerEmail),
		ClientReferenceID: optional(req.Reference),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Destination != "" {
		params.PaymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.Destination),
		}
		if req.FeeCents > 0 {
			params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(req.FeeCents)
		}
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return Session{ID: s.ID, URL: s.URL}, nil
}

func (g *stripeGateway) CheckoutSubscription(ctx context.Context, req SubscriptionRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: optional(req.Reference),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else {
		params.CustomerEmail = optional(req.CustomerEmail)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create subscription session: %w", err)
	}
	return Session{ID: s.ID, URL: s.URL}, nil
}

func (g *stripeGateway) CreateConnectAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: optional(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	acct, err := g.api.Accounts.New(params)
	if err != nil {
		return "", fmt.Errorf("create connect account: %w", err)
	}
	return acct.ID, nil
}

func (g *stripeGateway) AccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx
	link, err := g.api.AccountLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("create account link: %w", err)
	}
	return link.URL, nil
}

func (g *stripeGateway) ParseEvent(payload []byte, signature string) (stripe.Event, error) {
	if g.webhookSecret == "" {
		return stripe.Event{}, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return evt, nil
}

type disabledGateway struct{}

func (disabledGateway) CheckoutPayment(context.Context, PaymentRequest) (Session, error) {
	return Session{}, ErrNotConfigured
}

func (disabledGateway) CheckoutSubscription(context.Context, SubscriptionRequest) (Session, error) {
	return Session{}, ErrNotConfigured
}

func (disabledGateway) CreateConnectAccount(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

func (disabledGateway) AccountLink(context.Context, string, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (disabledGateway) ParseEvent([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, ErrNotConfigured
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}
