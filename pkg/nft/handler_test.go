package nft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/beta"
	"neuralsalvage/pkg/locks"
	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/polygon"
	"neuralsalvage/pkg/response"
)

type mockNFTService struct{ mock.Mock }

func (m *mockNFTService) OwnershipMessage(ctx context.Context, callerUUID string, assetID int64, wallet string) (OwnershipMessage, error) {
	args := m.Called(ctx, callerUUID, assetID, wallet)
	msg, _ := args.Get(0).(OwnershipMessage)
	return msg, args.Error(1)
}

func (m *mockNFTService) Quote(ctx context.Context, callerUUID string, assetID int64) (Quote, error) {
	args := m.Called(ctx, callerUUID, assetID)
	q, _ := args.Get(0).(Quote)
	return q, args.Error(1)
}

func (m *mockNFTService) Checkout(ctx context.Context, callerUUID string, assetID int64) (Checkout, error) {
	args := m.Called(ctx, callerUUID, assetID)
	c, _ := args.Get(0).(Checkout)
	return c, args.Error(1)
}

func (m *mockNFTService) MarkOrderPaid(ctx context.Context, orderID int64, sessionID string) error {
	return m.Called(ctx, orderID, sessionID).Error(0)
}

func (m *mockNFTService) Mint(ctx context.Context, callerUUID string, req MintRequest) (NFT, error) {
	args := m.Called(ctx, callerUUID, req)
	n, _ := args.Get(0).(NFT)
	return n, args.Error(1)
}

func (m *mockNFTService) Retry(ctx context.Context, callerUUID string, id int64) (NFT, error) {
	args := m.Called(ctx, callerUUID, id)
	n, _ := args.Get(0).(NFT)
	return n, args.Error(1)
}

func (m *mockNFTService) Get(ctx context.Context, id int64) (NFT, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(NFT)
	return n, args.Error(1)
}

func (m *mockNFTService) ListOwn(ctx context.Context, ownerUUID string, page, limit int) ([]NFT, int64, error) {
	args := m.Called(ctx, ownerUUID, page, limit)
	items, _ := args.Get(0).([]NFT)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *mockNFTService) PollConfirmations(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func setupNFTRouter(svc NFTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewNFTHandler(svc).RegisterRoutes(r, func(c *gin.Context) {
		c.Set(auth.ContextUserUUID, "caller-uuid")
		c.Next()
	})
	return r
}

func serve(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewReader(body)))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestOwnershipMessageRoute(t *testing.T) {
	svc := new(mockNFTService)
	r := setupNFTRouter(svc)
	svc.On("OwnershipMessage", mock.Anything, "caller-uuid", int64(7), "0xabc").
		Return(OwnershipMessage{Message: "claim", AssetID: 7}, nil)

	w := serve(r, http.MethodGet, "/nft/ownership-message?asset_id=7&wallet=0xabc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "claim", decode(t, w).Data.(map[string]any)["message"])

	w = serve(r, http.MethodGet, "/nft/ownership-message?asset_id=zero&wallet=0xabc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMintRoute(t *testing.T) {
	svc := new(mockNFTService)
	r := setupNFTRouter(svc)
	req := MintRequest{AssetID: 7, Wallet: "0xabc", Message: "claim", Signature: "0xsig", Bridge: true}
	svc.On("Mint", mock.Anything, "caller-uuid", req).Return(NFT{ID: 1, Status: StatusBridged}, nil).Once()

	body, err := json.Marshal(req)
	require.NoError(t, err)
	w := serve(r, http.MethodPost, "/nft/mint", body)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "bridged", decode(t, w).Data.(map[string]any)["status"])

	w = serve(r, http.MethodPost, "/nft/mint", []byte(`{"asset_id":7}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "Mint", 1)
}

func TestCheckoutRoute(t *testing.T) {
	svc := new(mockNFTService)
	r := setupNFTRouter(svc)
	svc.On("Checkout", mock.Anything, "caller-uuid", int64(7)).Return(Checkout{OrderID: 1, URL: "https://pay.test"}, nil)

	w := serve(r, http.MethodPost, "/nft/checkout", []byte(`{"asset_id":7}`))
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "https://pay.test", decode(t, w).Data.(map[string]any)["url"])
}

func TestGetIsPublic(t *testing.T) {
	svc := new(mockNFTService)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewNFTHandler(svc).RegisterRoutes(r, func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	})
	svc.On("Get", mock.Anything, int64(3)).Return(NFT{ID: 3, Status: StatusMinted}, nil)
	svc.On("Get", mock.Anything, int64(4)).Return(NFT{}, ErrNFTNotFound)

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/nft/3", nil).Code)
	require.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/nft/4", nil).Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/nft", nil).Code)
}

func TestListOwnRoute(t *testing.T) {
	svc := new(mockNFTService)
	r := setupNFTRouter(svc)
	svc.On("ListOwn", mock.Anything, "caller-uuid", 2, 5).Return([]NFT{{ID: 1}}, int64(6), nil)

	w := serve(r, http.MethodGet, "/nft?page=2&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(6), decode(t, w).Data.(map[string]any)["total"])
}

func TestRetryRoute(t *testing.T) {
	svc := new(mockNFTService)
	r := setupNFTRouter(svc)
	svc.On("Retry", mock.Anything, "caller-uuid", int64(5)).Return(NFT{}, ErrNotRetryable)

	require.Equal(t, http.StatusConflict, serve(r, http.MethodPost, "/nft/5/retry", nil).Code)
	require.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/nft/x/retry", nil).Code)
}

func TestNFTErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{media.ErrMediaNotFound, http.StatusNotFound},
		{media.ErrForbidden, http.StatusForbidden},
		{beta.ErrNoAccess, http.StatusForbidden},
		{ErrMessageExpired, http.StatusBadRequest},
		{polygon.ErrInvalidSignature, http.StatusBadRequest},
		{ErrPaymentRequired, http.StatusPaymentRequired},
		{ErrAlreadyMinted, http.StatusConflict},
		{locks.ErrLocked, http.StatusConflict},
		{fmt.Errorf("%w at asset step: boom", ErrMintFailed), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := new(mockNFTService)
		r := setupNFTRouter(svc)
		svc.On("Quote", mock.Anything, "caller-uuid", int64(7)).Return(Quote{}, tc.err)

		w := serve(r, http.MethodPost, "/nft/quote", []byte(`{"asset_id":7}`))
		require.Equal(t, tc.want, w.Code, tc.err.Error())
		require.False(t, decode(t, w).Success)
	}
}
