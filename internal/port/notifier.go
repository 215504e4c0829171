package port

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// Notifier delivers low-stock events to whoever needs to reorder.
type Notifier interface {
	Notify(ctx context.Context, event domain.LowStockEvent) error
}
