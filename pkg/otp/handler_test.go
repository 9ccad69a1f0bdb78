package otp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOTPService struct {
	mock.Mock
}

func (m *mockOTPService) GenerateAndSendOTP(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockOTPService) VerifyOTP(ctx context.Context, email, code string) error {
	return m.Called(ctx, email, code).Error(0)
}

func setupOTPRouter(service OTPService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewOTPHandler(service).RegisterRoutes(r)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOTPHandler_Send(t *testing.T) {
	svc := new(mockOTPService)
	r := setupOTPRouter(svc)
	svc.On("GenerateAndSendOTP", mock.Anything, "a@example.com").Return(nil).Once()
	svc.On("GenerateAndSendOTP", mock.Anything, "a@example.com").Return(ErrTooManyRequests).Once()

	require.Equal(t, http.StatusOK, postJSON(r, "/otp/send", `{"email":"a@example.com"}`).Code)
	require.Equal(t, http.StatusTooManyRequests, postJSON(r, "/otp/send", `{"email":"a@example.com"}`).Code)
	require.Equal(t, http.StatusBadRequest, postJSON(r, "/otp/send", `{"email":"nope"}`).Code)
}

func TestOTPHandler_Verify(t *testing.T) {
	svc := new(mockOTPService)
	r := setupOTPRouter(svc)
	svc.On("VerifyOTP", mock.Anything, "a@example.com", "123456").Return(nil)
	svc.On("VerifyOTP", mock.Anything, "a@example.com", "000000").Return(ErrInvalidCode)

	w := postJSON(r, "/otp/verify", `{"email":"a@example.com","code":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"verified":true`)

	require.Equal(t, http.StatusUnauthorized, postJSON(r, "/otp/verify", `{"email":"a@example.com","code":"000000"}`).Code)
}
