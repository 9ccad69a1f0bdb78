package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"neuralsalvage/pkg/users"
)

var (
	// ErrConflict marks an event that contradicts stored state, e.g. a second buyer.
	ErrConflict    = errors.New("event conflicts with current state")
	ErrBadMetadata = errors.New("checkout session metadata is incomplete")
)

// Completion is a paid marketplace checkout.
type Completion struct {
	SessionID   string
	AssetID     int64
	BuyerUUID   string
	AmountCents int64
}

type PurchaseCompleter interface {
	CompletePurchase(ctx context.Context, c Completion) error
}

type MintOrderPayer interface {
	MarkOrderPaid(ctx context.Context, orderID int64, sessionID string) error
}

type SubscriptionStore interface {
	SetTier(ctx context.Context, uuid, tier, customerID, subscriptionID string) error
	CancelSubscription(ctx context.Context, subscriptionID string) (string, error)
}

type EventRouter struct {
	purchases     PurchaseCompleter
	mints         MintOrderPayer
	subscriptions SubscriptionStore
	log           *zap.Logger
}

func NewEventRouter(purchases PurchaseCompleter, mints MintOrderPayer, subscriptions SubscriptionStore, log *zap.Logger) *EventRouter {
	return &EventRouter{purchases: purchases, mints: mints, subscriptions: subscriptions, log: log}
}

// Dispatch applies a verified Stripe event. Unhandled event types are ignored.
func (r *EventRouter) Dispatch(ctx context.Context, evt stripe.Event) error {
	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return r.checkoutCompleted(ctx, s)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		uuid, err := r.subscriptions.CancelSubscription(ctx, sub.ID)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				r.log.Warn("subscription cancelled for unknown user", zap.String("subscription_id", sub.ID))
				return nil
			}
			return err
		}
		r.log.Info("subscription cancelled", zap.String("user_uuid", uuid), zap.String("subscription_id", sub.ID))
		return nil
	default:
		r.log.Debug("ignoring stripe event", zap.String("type", string(evt.Type)), zap.String("event_id", evt.ID))
		return nil
	}
}

func (r *EventRouter) checkoutCompleted(ctx context.Context, s stripe.CheckoutSession) error {
	if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		r.log.Info("checkout completed without payment", zap.String("session_id", s.ID))
		return nil
	}

	kind := s.Metadata[MetaKind]
	log := r.log.With(zap.String("session_id", s.ID), zap.String("kind", kind))

	switch kind {
	case KindPurchase:
		assetID, err := metaID(s.Metadata, MetaAssetID)
		if err != nil {
			return err
		}
		buyer := s.Metadata[MetaBuyerUUID]
		if buyer == "" {
			return fmt.Errorf("%w: %s", ErrBadMetadata, MetaBuyerUUID)
		}
		if err := r.purchases.CompletePurchase(ctx, Completion{
			SessionID:   s.ID,
			AssetID:     assetID,
			BuyerUUID:   buyer,
			AmountCents: s.AmountTotal,
		}); err != nil {
			return err
		}
		log.Info("purchase completed", zap.Int64("asset_id", assetID))
	case KindMint:
		orderID, err := metaID(s.Metadata, MetaOrderID)
		if err != nil {
			return err
		}
		if err := r.mints.MarkOrderPaid(ctx, orderID, s.ID); err != nil {
			return err
		}
		log.Info("mint order paid", zap.Int64("order_id", orderID))
	case KindSubscription:
		uuid := s.Metadata[MetaUserUUID]
		if uuid == "" {
			uuid = s.ClientReferenceID
		}
		if uuid == "" {
			return fmt.Errorf("%w: %s", ErrBadMetadata, MetaUserUUID)
		}
		var customerID, subscriptionID string
		if s.Customer != nil {
			customerID = s.Customer.ID
		}
		if s.Subscription != nil {
			subscriptionID = s.Subscription.ID
		}
		if err := r.subscriptions.SetTier(ctx, uuid, users.TierPro, customerID, subscriptionID); err != nil {
			return err
		}
		log.Info("subscription started", zap.String("user_uuid", uuid))
	default:
		log.Warn("checkout session without a known kind")
	}
	return nil
}

func metaID(meta map[string]string, key string) (int64, error) {
	id, err := strconv.ParseInt(meta[key], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrBadMetadata, key)
	}
	return id, nil
}
