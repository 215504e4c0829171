// Package ingest turns the outside world's ways of describing stock changes
// (warehouse forms, shipping webhooks, the Kafka shipping topic, simulated
// shipments) into ledger intents. Nothing here does quantity arithmetic.
package ingest

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/ledger"
)

// MovementApplier commits intents to the ledger.
type MovementApplier interface {
	Apply(ctx context.Context, intent domain.Intent) (*ledger.Result, error)
	ApplyBatch(ctx context.Context, intents []domain.Intent) domain.BatchReport
}

type ItemResolver interface {
	GetItem(ctx context.Context, id string) (*domain.InventoryItem, error)
}

type OrderRecorder interface {
	RecordOrder(ctx context.Context, orderNumber, customer string, items []domain.OrderItem) (*domain.Order, error)
	MarkShipped(ctx context.Context, ref, trackingNumber, carrier string) (*domain.Order, error)
}

func idempotencyKey(eventType, ref, sku string) string {
	if ref == "" {
		return ""
	}
	return eventType + ":" + ref + ":" + sku
}
