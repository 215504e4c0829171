// Package ledger holds the pure rules that turn a movement intent and the
// current item state into the next item state and its audit record.
package ledger

import (
	"fmt"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// timestampResolution matches the DATETIME(6) precision of the store, so a
// persisted lastUpdated never collapses onto the previous value.
const timestampResolution = time.Microsecond

type Result struct {
	Item     domain.InventoryItem
	Movement domain.Movement
	Signal   *domain.LowStockEvent
	Created  bool
}

// Apply computes the next state of item after intent. A nil item means the
// SKU did not resolve; only a receive with CreateIfMissing may proceed then.
// Apply has no side effects: persisting the result is the caller's job.
func Apply(item *domain.InventoryItem, intent domain.Intent, now time.Time) (*Result, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	var before domain.InventoryItem
	created := false
	switch {
	case item != nil:
		before = *item
	case intent.Type == domain.MovementReceive && intent.CreateIfMissing:
		name := intent.ItemName
		if name == "" {
			name = intent.SKU
		}
		before = domain.InventoryItem{SKU: intent.SKU, Name: name, Location: intent.ToLocation}
		created = true
	default:
		return nil, fmt.Errorf("%w: sku %s", domain.ErrItemNotFound, intent.SKU)
	}

	after := before
	movement := domain.Movement{
		Type:           intent.Type,
		ItemID:         before.ID,
		SKU:            before.SKU,
		Quantity:       intent.Quantity,
		QuantityBefore: before.Quantity,
		FromLocation:   intent.FromLocation,
		ToLocation:     intent.ToLocation,
		UserID:         intent.UserID,
		Notes:          intent.Notes,
		Reference:      intent.Reference,
		Status:         intent.Status,
	}
	if movement.Status == "" {
		movement.Status = domain.MovementStatusCompleted
	}

	switch intent.Type {
	case domain.MovementReceive, domain.MovementReturn:
		after.Quantity = before.Quantity + intent.Quantity
		if intent.ToLocation != "" {
			after.Location = intent.ToLocation
		}
	case domain.MovementTransfer:
		if movement.FromLocation == "" {
			movement.FromLocation = before.Location
		}
		if intent.ToLocation != "" {
			after.Location = intent.ToLocation
		}
	case domain.MovementCheck:
		after.Quantity = intent.Quantity
	case domain.MovementFulfillment:
		after.Quantity = max(0, before.Quantity-intent.Quantity)
		if movement.FromLocation == "" {
			movement.FromLocation = before.Location
		}
	case domain.MovementOrder:
		after.Quantity = before.Quantity - intent.Quantity
		if movement.FromLocation == "" {
			movement.FromLocation = before.Location
		}
	}

	stamp := NextTimestamp(before.LastUpdated, now)
	after.LastUpdated = stamp
	if created {
		after.CreatedAt = stamp
	}
	movement.QuantityAfter = after.Quantity
	movement.Timestamp = stamp

	res := &Result{Item: after, Movement: movement, Created: created}
	if !created {
		res.Signal = Evaluate(before, after, stamp)
	}
	return res, nil
}

// NextTimestamp returns now truncated to store precision, nudged forward when
// the clock has not moved past prev.
func NextTimestamp(prev, now time.Time) time.Time {
	ts := now.UTC().Truncate(timestampResolution)
	if prev.IsZero() {
		return ts
	}
	floor := prev.UTC().Truncate(timestampResolution).Add(timestampResolution)
	if ts.Before(floor) {
		return floor
	}
	return ts
}
