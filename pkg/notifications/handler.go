package notifications

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/response"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Upgrader turns an HTTP request into a websocket connection.
type Upgrader interface {
	Upgrade(w http.ResponseWriter, r *http.Request, responseHeader http.Header) (*websocket.Conn, error)
}

type NotificationHandler struct {
	service  NotificationService
	hub      *Hub
	upgrader Upgrader
	log      *zap.Logger
}

// NewNotificationHandler accepts websocket origins from allowedOrigins; an
// empty list accepts any origin.
func NewNotificationHandler(service NotificationService, hub *Hub, allowedOrigins []string, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		hub:     hub,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func (h *NotificationHandler) SetWebSocketUpgrader(u Upgrader) {
	h.upgrader = u
}

func (h *NotificationHandler) RegisterRoutes(router gin.IRouter, requireAuth gin.HandlerFunc) {
	g := router.Group("/notifications", requireAuth)
	g.GET("", h.list)
	g.GET("/unread-count", h.unreadCount)
	g.POST("/read", h.markRead)
	g.POST("/read-all", h.markAllRead)
	g.GET("/ws", h.stream)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// @Summary      List notifications
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        unread query bool false "Only unread"
// @Param        page   query int  false "Page number" default(1)
// @Param        limit  query int  false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=response.Page[Notification]}
// @Router       /notifications [get]
func (h *NotificationHandler) list(c *gin.Context) {
	page, limit := response.Pagination(c)
	unread := c.Query("unread") == "true"

	items, total, err := h.service.List(c.Request.Context(), auth.UserUUID(c), unread, page, limit)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "notifications listed", response.Page[Notification]{Items: items, Total: total, Page: page, Limit: limit})
}

// @Summary      Count unread notifications
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse
// @Router       /notifications/unread-count [get]
func (h *NotificationHandler) unreadCount(c *gin.Context) {
	n, err := h.service.UnreadCount(c.Request.Context(), auth.UserUUID(c))
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "unread count", gin.H{"unread": n})
}

// @Summary      Mark notifications read
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ReadRequest true "Notification ids"
// @Success      200 {object} response.APIResponse
// @Failure      400 {object} response.APIResponse
// @Router       /notifications/read [post]
func (h *NotificationHandler) markRead(c *gin.Context) {
	var req ReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "ids are required", nil)
		return
	}
	n, err := h.service.MarkRead(c.Request.Context(), auth.UserUUID(c), req.IDs)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "notifications marked read", gin.H{"updated": n})
}

// @Summary      Mark every notification read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse
// @Router       /notifications/read-all [post]
func (h *NotificationHandler) markAllRead(c *gin.Context) {
	n, err := h.service.MarkAllRead(c.Request.Context(), auth.UserUUID(c))
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "notifications marked read", gin.H{"updated": n})
}

// @Summary      Live notification stream
// @Description  Upgrades to a websocket. Pass the access token as ?token= when headers cannot be set.
// @Tags         notifications
// @Security     BearerAuth
// @Router       /notifications/ws [get]
func (h *NotificationHandler) stream(c *gin.Context) {
	userUUID := auth.UserUUID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.String("user_uuid", userUUID), zap.Error(err))
		return
	}

	client := h.hub.AddClient(userUUID, conn)
	h.log.Debug("notification socket connected", zap.String("user_uuid", userUUID))

	if n, err := h.service.UnreadCount(c.Request.Context(), userUUID); err == nil {
		_ = h.hub.Push(userUUID, Event{EventType: "unread", Unread: &n})
	}

	go h.readLoop(client)
	go h.writeLoop(client)
}

func (h *NotificationHandler) readLoop(client *Client) {
	defer func() {
		h.hub.RemoveClient(client)
		client.Conn.Close()
		h.log.Debug("notification socket closed", zap.String("user_uuid", client.UserUUID))
	}()

	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req ReadRequest
		if err := client.Conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("notification socket read", zap.String("user_uuid", client.UserUUID), zap.Error(err))
			}
			return
		}
		h.handleClientEvent(client, req)
	}
}

func (h *NotificationHandler) handleClientEvent(client *Client, req ReadRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch req.EventType {
	case "mark_read":
		_, err = h.service.MarkRead(ctx, client.UserUUID, req.IDs)
	case "mark_all_read":
		_, err = h.service.MarkAllRead(ctx, client.UserUUID)
	default:
		err = errUnknownEvent
	}
	if err != nil {
		select {
		case client.Send <- Event{EventType: "error", Error: err.Error()}:
		case <-client.Done:
		}
	}
}

func (h *NotificationHandler) writeLoop(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-client.Done:
			return
		case msg := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(msg); err != nil {
				h.log.Debug("notification socket write", zap.String("user_uuid", client.UserUUID), zap.Error(err))
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
