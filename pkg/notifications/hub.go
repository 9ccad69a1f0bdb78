package notifications

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one connected websocket.
type Client struct {
	UserUUID string
	Conn     *websocket.Conn
	Send     chan any
	Done     chan struct{}
}

// Hub tracks the live socket of each user. A new connection replaces the old one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) AddClient(userUUID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[userUUID]; ok {
		close(existing.Done)
		if existing.Conn != nil {
			existing.Conn.Close()
		}
	}

	client := &Client{
		UserUUID: userUUID,
		Conn:     conn,
		Send:     make(chan any, 32),
		Done:     make(chan struct{}),
	}
	h.clients[userUUID] = client
	return client
}

// RemoveClient unregisters c unless it was already replaced by a newer connection.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[c.UserUUID]; ok && current == c {
		close(c.Done)
		delete(h.clients, c.UserUUID)
	}
}

func (h *Hub) IsOnline(userUUID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userUUID]
	return ok
}

func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Push queues msg for userUUID. It never blocks.
func (h *Hub) Push(userUUID string, msg any) error {
	h.mu.RLock()
	client, ok := h.clients[userUUID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user %s is not online", userUUID)
	}

	select {
	case client.Send <- msg:
		return nil
	case <-client.Done:
		return fmt.Errorf("user %s disconnected", userUUID)
	default:
		return fmt.Errorf("user %s message queue full", userUUID)
	}
}
