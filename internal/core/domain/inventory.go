package domain

import "time"

type InventoryItem struct {
	ID           string    `json:"id" db:"id"`
	SKU          string    `json:"sku" db:"sku"`
	Name         string    `json:"name" db:"name"`
	Location     string    `json:"location" db:"location"`
	Quantity     int       `json:"quantity" db:"quantity"`
	MinimumStock int       `json:"minimumStock" db:"minimum_stock"`
	Version      int       `json:"-" db:"version"` // optimistic locking
	LastUpdated  time.Time `json:"lastUpdated" db:"last_updated"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// IsLow reports whether the item sits at or below its reorder threshold.
func (i InventoryItem) IsLow() bool {
	return i.Quantity <= i.MinimumStock
}

type ItemFilter struct {
	Location string
	LowStock bool
	Search   string
	Limit    int
	Offset   int
}
