package domain

import "time"

type MovementType string

const (
	MovementReceive     MovementType = "receive"
	MovementTransfer    MovementType = "transfer"
	MovementCheck       MovementType = "check"
	MovementFulfillment MovementType = "fulfillment"
	MovementReturn      MovementType = "return"
	// MovementOrder is recorded by the order-notify path. It reserves stock and
	// may drive quantity below zero.
	MovementOrder MovementType = "order"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementReceive, MovementTransfer, MovementCheck, MovementFulfillment, MovementReturn, MovementOrder:
		return true
	}
	return false
}

type MovementStatus string

const (
	MovementStatusCompleted MovementStatus = "completed"
	MovementStatusPending   MovementStatus = "pending"
	MovementStatusCancelled MovementStatus = "cancelled"
)

func (s MovementStatus) Valid() bool {
	switch s {
	case MovementStatusCompleted, MovementStatusPending, MovementStatusCancelled:
		return true
	}
	return false
}

// Non-interactive movement origins.
const (
	UserWebhook           = "webhook"
	UserWebhookSimulation = "webhook-simulation"
	UserSystem            = "system"
)

type Movement struct {
	ID             string         `json:"id" db:"id"`
	Type           MovementType   `json:"type" db:"type"`
	ItemID         string         `json:"itemId" db:"item_id"`
	SKU            string         `json:"sku" db:"sku"`
	Quantity       int            `json:"quantity" db:"quantity"`
	QuantityBefore int            `json:"quantityBefore" db:"quantity_before"`
	QuantityAfter  int            `json:"quantityAfter" db:"quantity_after"`
	FromLocation   string         `json:"fromLocation,omitempty" db:"from_location"`
	ToLocation     string         `json:"toLocation,omitempty" db:"to_location"`
	UserID         string         `json:"userId" db:"user_id"`
	Notes          string         `json:"notes,omitempty" db:"notes"`
	Reference      string         `json:"reference,omitempty" db:"reference"`
	Status         MovementStatus `json:"status" db:"status"`
	Timestamp      time.Time      `json:"timestamp" db:"timestamp"`
}

type MovementFilter struct {
	SKU    string
	Type   MovementType
	Status MovementStatus
	Limit  int
	Offset int
}
