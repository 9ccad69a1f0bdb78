package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	s, err := NewTokenService("test-secret", "neural-salvage", time.Hour)
	require.NoError(t, err)
	return s
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	s := newTestTokens(t)

	tok, exp, err := s.Issue("uuid-1", "a@example.com", true)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := s.Validate(tok)
	require.NoError(t, err)
	require.Equal(t, "uuid-1", claims.UserUUID)
	require.Equal(t, "a@example.com", claims.Email)
	require.True(t, claims.Verified)
}

func TestTokenService_Expired(t *testing.T) {
	s := newTestTokens(t)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := s.Issue("uuid-1", "a@example.com", true)
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Validate(tok)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_WrongSecret(t *testing.T) {
	s := newTestTokens(t)
	other, err := NewTokenService("other-secret", "neural-salvage", time.Hour)
	require.NoError(t, err)

	tok, _, err := other.Issue("uuid-1", "a@example.com", true)
	require.NoError(t, err)

	_, err = s.Validate(tok)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = s.Validate("")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewTokenService_Validation(t *testing.T) {
	_, err := NewTokenService("", "iss", time.Hour)
	require.Error(t, err)
	_, err = NewTokenService("s", "iss", 0)
	require.Error(t, err)
}

func setupAuthRouter(s *TokenService, admins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireAuth(s), func(c *gin.Context) {
		c.String(http.StatusOK, UserUUID(c))
	})
	r.GET("/admin", RequireAuth(s), RequireAdmin(admins), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	s := newTestTokens(t)
	r := setupAuthRouter(s, nil)
	tok, _, err := s.Issue("uuid-7", "u@example.com", false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "uuid-7", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me?token="+tok, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	s := newTestTokens(t)
	r := setupAuthRouter(s, []string{"boss@example.com"})

	userTok, _, _ := s.Issue("uuid-1", "u@example.com", true)
	adminTok, _, _ := s.Issue("uuid-2", "Boss@Example.com", true)
	unverifiedTok, _, _ := s.Issue("uuid-3", "boss@example.com", false)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userTok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "bearer "+adminTok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+unverifiedTok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
