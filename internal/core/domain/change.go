package domain

import "time"

// Collections tracked by the change feed.
const (
	CollectionInventory     = "inventory"
	CollectionMovements     = "movements"
	CollectionOrders        = "orders"
	CollectionNotifications = "notifications"
)

type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id,omitempty"`
	At         time.Time `json:"at"`
}
