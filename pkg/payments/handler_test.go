package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/response"
)

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CheckoutPayment(ctx context.Context, req PaymentRequest) (Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(Session)
	return s, args.Error(1)
}

func (m *mockGateway) CheckoutSubscription(ctx context.Context, req SubscriptionRequest) (Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(Session)
	return s, args.Error(1)
}

func (m *mockGateway) CreateConnectAccount(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) AccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	args := m.Called(ctx, accountID, refreshURL, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) ParseEvent(payload []byte, signature string) (stripe.Event, error) {
	args := m.Called(payload, signature)
	evt, _ := args.Get(0).(stripe.Event)
	return evt, args.Error(1)
}

type mockSubscriptionService struct{ mock.Mock }

func (m *mockSubscriptionService) StartCheckout(ctx context.Context, userUUID string) (Session, error) {
	args := m.Called(ctx, userUUID)
	s, _ := args.Get(0).(Session)
	return s, args.Error(1)
}

type handlerFixture struct {
	gateway   *mockGateway
	subs      *mockSubscriptionService
	purchases *mockPurchases
	router    *gin.Engine
}

func setupPaymentsRouter() handlerFixture {
	gin.SetMode(gin.TestMode)
	f := handlerFixture{gateway: new(mockGateway), subs: new(mockSubscriptionService), purchases: new(mockPurchases)}
	events := NewEventRouter(f.purchases, new(mockMints), new(mockSubscriptions), zap.NewNop())
	h := NewPaymentsHandler(f.gateway, events, f.subs, zap.NewNop())

	f.router = gin.New()
	h.RegisterRoutes(f.router, func(c *gin.Context) {
		c.Set(auth.ContextUserUUID, "caller-uuid")
		c.Next()
	})
	return f
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func purchaseEvent(t *testing.T) stripe.Event {
	return event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_1",
		"payment_status": "paid",
		"amount_total":   900,
		"metadata":       map[string]string{MetaKind: KindPurchase, MetaAssetID: "3", MetaBuyerUUID: "buyer"},
	})
}

func TestWebhook_Processed(t *testing.T) {
	f := setupPaymentsRouter()
	body := []byte(`{"id":"evt_1"}`)
	f.gateway.On("ParseEvent", body, "sig").Return(purchaseEvent(t), nil)
	f.purchases.On("CompletePurchase", mock.Anything, mock.AnythingOfType("payments.Completion")).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", "sig")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode(t, w).Success)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		parseErr error
		dispErr  error
		want     int
	}{
		{"bad signature", fmt.Errorf("%w: mismatch", ErrInvalidSignature), nil, http.StatusBadRequest},
		{"not configured", ErrNotConfigured, nil, http.StatusServiceUnavailable},
		{"already sold", nil, fmt.Errorf("asset sold: %w", ErrConflict), http.StatusConflict},
		{"store failure", nil, fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupPaymentsRouter()
			if tc.parseErr != nil {
				f.gateway.On("ParseEvent", mock.Anything, mock.Anything).Return(nil, tc.parseErr)
			} else {
				f.gateway.On("ParseEvent", mock.Anything, mock.Anything).Return(purchaseEvent(t), nil)
				f.purchases.On("CompletePurchase", mock.Anything, mock.Anything).Return(tc.dispErr)
			}

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)

			require.Equal(t, tc.want, w.Code)
			require.False(t, decode(t, w).Success)
		})
	}
}

func TestSubscriptionCheckout(t *testing.T) {
	f := setupPaymentsRouter()
	f.subs.On("StartCheckout", mock.Anything, "caller-uuid").Return(Session{ID: "cs_9", URL: "https://pay.test"}, nil).Once()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", nil))

	require.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w).Data.(map[string]any)
	require.Equal(t, "https://pay.test", data["url"])

	f.subs.On("StartCheckout", mock.Anything, "caller-uuid").Return(nil, ErrAlreadySubscribed).Once()
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", nil))
	require.Equal(t, http.StatusConflict, w.Code)
}
