package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neuralsalvage/pkg/auth"
)

type mockSearchService struct {
	mock.Mock
}

func (m *mockSearchService) Search(ctx context.Context, callerUUID string, req Request) (Response, error) {
	args := m.Called(ctx, callerUUID, req)
	res, _ := args.Get(0).(Response)
	return res, args.Error(1)
}

func setupSearchRouter(service SearchService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewSearchHandler(service).RegisterRoutes(r, func(c *gin.Context) {
		c.Set(auth.ContextUserUUID, "caller-uuid")
		c.Next()
	})
	return r
}

func TestSearchHandler(t *testing.T) {
	svc := new(mockSearchService)
	r := setupSearchRouter(svc)
	svc.On("Search", mock.Anything, "caller-uuid", Request{Query: "fox", Scope: ScopeMarketplace, Limit: 5}).
		Return(Response{Mode: ModeVector}, nil)
	svc.On("Search", mock.Anything, "caller-uuid", Request{Query: "fox", Scope: "all"}).
		Return(Response{}, ErrInvalidScope)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"fox","scope":"marketplace","limit":5}`)))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"mode":"vector"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"fox","scope":"all"}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
