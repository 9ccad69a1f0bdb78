package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/auth"
)

func setupRouter(l *Limiter, user string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != "" {
			c.Set(auth.ContextUserUUID, user)
		}
		c.Next()
	}, l.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func hit(r *gin.Engine) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	return w.Code
}

func TestMiddleware_BurstThenReject(t *testing.T) {
	l := New(1, 2, zap.NewNop())
	r := setupRouter(l, "u-1")

	require.Equal(t, http.StatusNoContent, hit(r))
	require.Equal(t, http.StatusNoContent, hit(r))
	require.Equal(t, http.StatusTooManyRequests, hit(r))
}

func TestMiddleware_SeparateBucketsPerUser(t *testing.T) {
	l := New(1, 1, zap.NewNop())

	require.Equal(t, http.StatusNoContent, hit(setupRouter(l, "a")))
	require.Equal(t, http.StatusNoContent, hit(setupRouter(l, "b")))
	require.Equal(t, http.StatusTooManyRequests, hit(setupRouter(l, "a")))
}

func TestSweep(t *testing.T) {
	l := New(1, 1, zap.NewNop())
	base := time.Now()
	l.now = func() time.Time { return base }
	l.get("old")
	l.now = func() time.Time { return base.Add(time.Hour) }
	l.get("fresh")

	require.Equal(t, 1, l.Sweep(30*time.Minute))
	require.Len(t, l.entries, 1)
}
