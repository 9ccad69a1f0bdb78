package notifications

import "time"

type Kind string

const (
	KindSale       Kind = "sale"
	KindPurchase   Kind = "purchase"
	KindMint       Kind = "mint"
	KindMintFailed Kind = "mint_failed"
	KindBridge     Kind = "bridge"
)

// emailed kinds are also delivered by email when the sender is configured.
var emailed = map[Kind]bool{
	KindSale:       true,
	KindMint:       true,
	KindMintFailed: true,
}

type Notification struct {
	ID        int64     `json:"id"`
	UserUUID  string    `json:"user_uuid"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is pushed over the websocket.
type Event struct {
	EventType    string        `json:"event_type"`
	Notification *Notification `json:"notification,omitempty"`
	Unread       *int64        `json:"unread,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ReadRequest is sent by clients, over HTTP or the socket, to mark notifications read.
type ReadRequest struct {
	EventType string  `json:"event_type"`
	IDs       []int64 `json:"ids"`
}
