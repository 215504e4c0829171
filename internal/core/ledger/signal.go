package ledger

import (
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// Evaluate returns a low-stock event only on the falling edge: after is at or
// below its threshold while before was above its own. Staying low never
// re-fires.
func Evaluate(before, after domain.InventoryItem, at time.Time) *domain.LowStockEvent {
	if after.Quantity > after.MinimumStock || before.Quantity <= before.MinimumStock {
		return nil
	}
	return &domain.LowStockEvent{
		ItemID:           after.ID,
		SKU:              after.SKU,
		Name:             after.Name,
		PreviousQuantity: before.Quantity,
		CurrentQuantity:  after.Quantity,
		MinimumStock:     after.MinimumStock,
		Timestamp:        at,
	}
}
