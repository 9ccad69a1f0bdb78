package payments

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/users"
)

type mockPurchases struct{ mock.Mock }

func (m *mockPurchases) CompletePurchase(ctx context.Context, c Completion) error {
	return m.Called(ctx, c).Error(0)
}

type mockMints struct{ mock.Mock }

func (m *mockMints) MarkOrderPaid(ctx context.Context, orderID int64, sessionID string) error {
	return m.Called(ctx, orderID, sessionID).Error(0)
}

type mockSubscriptions struct{ mock.Mock }

func (m *mockSubscriptions) SetTier(ctx context.Context, uuid, tier, customerID, subscriptionID string) error {
	return m.Called(ctx, uuid, tier, customerID, subscriptionID).Error(0)
}

func (m *mockSubscriptions) CancelSubscription(ctx context.Context, subscriptionID string) (string, error) {
	args := m.Called(ctx, subscriptionID)
	return args.String(0), args.Error(1)
}

type routerFixture struct {
	purchases *mockPurchases
	mints     *mockMints
	subs      *mockSubscriptions
	router    *EventRouter
}

func newRouterFixture() routerFixture {
	f := routerFixture{purchases: new(mockPurchases), mints: new(mockMints), subs: new(mockSubscriptions)}
	f.router = NewEventRouter(f.purchases, f.mints, f.subs, zap.NewNop())
	return f
}

func event(t *testing.T, typ stripe.EventType, object map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return stripe.Event{ID: "evt_1", Type: typ, Data: &stripe.EventData{Raw: raw}}
}

func TestDispatch_Purchase(t *testing.T) {
	f := newRouterFixture()
	f.purchases.On("CompletePurchase", mock.Anything, Completion{
		SessionID: "cs_1", AssetID: 42, BuyerUUID: "buyer-uuid", AmountCents: 1500,
	}).Return(nil)

	err := f.router.Dispatch(context.Background(), event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_1",
		"payment_status": "paid",
		"amount_total":   1500,
		"metadata":       map[string]string{MetaKind: KindPurchase, MetaAssetID: "42", MetaBuyerUUID: "buyer-uuid"},
	}))

	require.NoError(t, err)
	f.purchases.AssertExpectations(t)
}

func TestDispatch_PurchaseMissingAsset(t *testing.T) {
	f := newRouterFixture()

	err := f.router.Dispatch(context.Background(), event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_1",
		"payment_status": "paid",
		"metadata":       map[string]string{MetaKind: KindPurchase, MetaBuyerUUID: "buyer-uuid"},
	}))

	require.ErrorIs(t, err, ErrBadMetadata)
	f.purchases.AssertNotCalled(t, "CompletePurchase", mock.Anything, mock.Anything)
}

func TestDispatch_MintOrder(t *testing.T) {
	f := newRouterFixture()
	f.mints.On("MarkOrderPaid", mock.Anything, int64(7), "cs_2").Return(nil)

	err := f.router.Dispatch(context.Background(), event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_2",
		"payment_status": "paid",
		"metadata":       map[string]string{MetaKind: KindMint, MetaOrderID: "7"},
	}))

	require.NoError(t, err)
	f.mints.AssertExpectations(t)
}

func TestDispatch_SubscriptionStarted(t *testing.T) {
	f := newRouterFixture()
	f.subs.On("SetTier", mock.Anything, "user-uuid", users.TierPro, "cus_1", "sub_1").Return(nil)

	err := f.router.Dispatch(context.Background(), event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_3",
		"payment_status": "paid",
		"customer":       "cus_1",
		"subscription":   "sub_1",
		"metadata":       map[string]string{MetaKind: KindSubscription, MetaUserUUID: "user-uuid"},
	}))

	require.NoError(t, err)
	f.subs.AssertExpectations(t)
}

func TestDispatch_UnpaidSessionIgnored(t *testing.T) {
	f := newRouterFixture()

	err := f.router.Dispatch(context.Background(), event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_4",
		"payment_status": "unpaid",
		"metadata":       map[string]string{MetaKind: KindPurchase, MetaAssetID: "1", MetaBuyerUUID: "b"},
	}))

	require.NoError(t, err)
	f.purchases.AssertNotCalled(t, "CompletePurchase", mock.Anything, mock.Anything)
}

func TestDispatch_SubscriptionDeleted(t *testing.T) {
	f := newRouterFixture()
	f.subs.On("CancelSubscription", mock.Anything, "sub_1").Return("user-uuid", nil).Once()
	f.subs.On("CancelSubscription", mock.Anything, "sub_gone").Return("", users.ErrUserNotFound).Once()

	require.NoError(t, f.router.Dispatch(context.Background(), event(t, stripe.EventTypeCustomerSubscriptionDeleted, map[string]any{"id": "sub_1"})))
	require.NoError(t, f.router.Dispatch(context.Background(), event(t, stripe.EventTypeCustomerSubscriptionDeleted, map[string]any{"id": "sub_gone"})))
	f.subs.AssertExpectations(t)
}

func TestDispatch_UnknownEvent(t *testing.T) {
	f := newRouterFixture()
	require.NoError(t, f.router.Dispatch(context.Background(), event(t, "invoice.paid", map[string]any{"id": "in_1"})))
}
