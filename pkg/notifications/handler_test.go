package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/response"
)

func setupNotificationRouter(svc NotificationService, hub *Hub) (*gin.Engine, *NotificationHandler) {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(svc, hub, nil, zap.NewNop())
	r := gin.New()
	h.RegisterRoutes(r, func(c *gin.Context) {
		c.Set(auth.ContextUserUUID, "caller-uuid")
		c.Next()
	})
	return r, h
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandler_ListAndRead(t *testing.T) {
	repo := &memoryRepo{}
	hub := NewHub()
	svc := newTestService(repo, hub, nil)
	router, _ := setupNotificationRouter(svc, hub)
	ctx := context.Background()
	_, _ = svc.Notify(ctx, Notification{UserUUID: "caller-uuid", Kind: KindPurchase, Title: "a"})
	_, _ = svc.Notify(ctx, Notification{UserUUID: "caller-uuid", Kind: KindPurchase, Title: "b"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications?unread=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w).Data.(map[string]any)
	require.Equal(t, float64(2), page["total"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/notifications/read", bytes.NewBufferString(`{"ids":[1]}`)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications/unread-count", nil))
	require.Equal(t, float64(1), decode(t, w).Data.(map[string]any)["unread"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/notifications/read", bytes.NewBufferString(`{"ids":[]}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/notifications/read-all", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decode(t, w).Data.(map[string]any)["updated"])
}

func TestHandler_WebSocketDelivers(t *testing.T) {
	repo := &memoryRepo{}
	hub := NewHub()
	svc := newTestService(repo, hub, nil)
	router, _ := setupNotificationRouter(svc, hub)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var evt Event
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, "unread", evt.EventType)
	require.Equal(t, int64(0), *evt.Unread)

	_, err = svc.Notify(context.Background(), Notification{UserUUID: "caller-uuid", Kind: KindPurchase, Title: "Purchase complete"})
	require.NoError(t, err)

	evt = Event{}
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, "notification", evt.EventType)
	require.Equal(t, "Purchase complete", evt.Notification.Title)

	require.NoError(t, conn.WriteJSON(ReadRequest{EventType: "mark_all_read"}))
	evt = Event{}
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, "unread", evt.EventType)
	require.Equal(t, int64(0), *evt.Unread)

	require.NoError(t, conn.WriteJSON(ReadRequest{EventType: "bogus"}))
	evt = Event{}
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, "error", evt.EventType)
}

type failingUpgrader struct{ called bool }

func (f *failingUpgrader) Upgrade(http.ResponseWriter, *http.Request, http.Header) (*websocket.Conn, error) {
	f.called = true
	return nil, errors.New("upgrade failed")
}

func TestHandler_UpgradeFailureLeavesUserOffline(t *testing.T) {
	hub := NewHub()
	router, h := setupNotificationRouter(newTestService(&memoryRepo{}, hub, nil), hub)
	up := &failingUpgrader{}
	h.SetWebSocketUpgrader(up)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/notifications/ws", nil))

	require.True(t, up.called)
	require.False(t, hub.IsOnline("caller-uuid"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.test/"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.test")
	require.True(t, check(req))
	req.Header.Set("Origin", "https://evil.test")
	require.False(t, check(req))
}

func TestHub_ReplaceAndRemove(t *testing.T) {
	hub := NewHub()
	first := hub.AddClient("u", nil)
	second := hub.AddClient("u", nil)

	select {
	case <-first.Done:
	default:
		t.Fatal("replaced client should be closed")
	}

	hub.RemoveClient(first)
	require.True(t, hub.IsOnline("u"))
	require.Equal(t, 1, hub.OnlineCount())

	hub.RemoveClient(second)
	require.False(t, hub.IsOnline("u"))
	require.Error(t, hub.Push("u", "x"))
}
