package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/ledger"
)

const eventSimulatedShipment = "SIMULATED_SHIPMENT"

// SimulatedShipment lets administrators exercise the shipping path by hand.
type SimulatedShipment struct {
	OrderNumber string `json:"orderNumber"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
}

func SimulationIntent(s SimulatedShipment) (domain.Intent, error) {
	sku := strings.TrimSpace(s.SKU)
	if sku == "" {
		return domain.Intent{}, &domain.ValidationError{Field: "sku", Message: "sku is required"}
	}
	if s.Quantity <= 0 {
		return domain.Intent{}, domain.ErrInvalidQuantity
	}
	return domain.Intent{
		Type:           domain.MovementFulfillment,
		SKU:            sku,
		Quantity:       s.Quantity,
		UserID:         domain.UserWebhookSimulation,
		Notes:          fmt.Sprintf("Order %s shipped", s.OrderNumber),
		Reference:      s.OrderNumber,
		IdempotencyKey: idempotencyKey(eventSimulatedShipment, s.OrderNumber, sku),
	}, nil
}

type SimulationAdapter struct {
	applier MovementApplier
}

func NewSimulationAdapter(applier MovementApplier) *SimulationAdapter {
	return &SimulationAdapter{applier: applier}
}

func (a *SimulationAdapter) Simulate(ctx context.Context, s SimulatedShipment) (*ledger.Result, error) {
	intent, err := SimulationIntent(s)
	if err != nil {
		return nil, err
	}
	return a.applier.Apply(ctx, intent)
}
