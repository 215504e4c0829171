package domain

import "time"

// LowStockEvent is emitted when an item's quantity crosses from above to
// at-or-below its minimum stock.
type LowStockEvent struct {
	ID               string    `json:"id" db:"id"`
	ItemID           string    `json:"itemId" db:"item_id"`
	SKU              string    `json:"sku" db:"sku"`
	Name             string    `json:"name" db:"name"`
	PreviousQuantity int       `json:"previousQuantity" db:"previous_quantity"`
	CurrentQuantity  int       `json:"currentQuantity" db:"current_quantity"`
	MinimumStock     int       `json:"minimumStock" db:"minimum_stock"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
}
