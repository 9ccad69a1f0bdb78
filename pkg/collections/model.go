package collections

import "time"

type Collection struct {
	ID          int64     `json:"id"`
	OwnerUUID   string    `json:"owner_uuid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"is_public"`
	AssetIDs    []int64   `json:"asset_ids"`
	CreatedAt   time.Time `json:"created_at"`
}
