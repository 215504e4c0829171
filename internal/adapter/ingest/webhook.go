package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
)

const (
	// HeaderEventType carries the shipping platform's event name.
	HeaderEventType = "X-ShipStation-Hook-Event"
	// HeaderDeliveryID identifies one delivery across redeliveries.
	HeaderDeliveryID = "X-ShipStation-Delivery-Id"
)

const (
	EventOrderNotify = "ORDER_NOTIFY"
	EventShipNotify  = "SHIP_NOTIFY"
)

var (
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrNothingApplied   = errors.New("no webhook item could be applied")
)

// Event is one of OrderNotify, ShipNotify or Unhandled.
type Event interface {
	EventType() string
	isEvent()
}

type WebhookItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// OrderNotify announces a new order; its items are reserved immediately.
type OrderNotify struct {
	OrderID      string        `json:"orderId"`
	OrderNumber  string        `json:"orderNumber"`
	CustomerName string        `json:"customerName"`
	Items        []WebhookItem `json:"items"`

	// EventID identifies the delivery when the payload carries no order ID.
	EventID string `json:"-"`
}

func (OrderNotify) EventType() string { return EventOrderNotify }
func (OrderNotify) isEvent()          {}

func (o OrderNotify) ref() string {
	switch {
	case o.OrderID != "":
		return o.OrderID
	case o.OrderNumber != "":
		return o.OrderNumber
	}
	return o.EventID
}

type ShipNotify struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

func (ShipNotify) EventType() string { return EventShipNotify }
func (ShipNotify) isEvent()          {}

type Unhandled struct {
	Type string
}

func (u Unhandled) EventType() string { return u.Type }
func (Unhandled) isEvent()            {}

// Decode parses body according to eventType. Unknown event types are not an
// error; their body is not inspected.
func Decode(eventType string, body []byte) (Event, error) {
	switch eventType {
	case EventOrderNotify:
		var ev OrderNotify
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return ev, nil
	case EventShipNotify:
		var ev ShipNotify
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return ev, nil
	}
	if eventType == "" {
		eventType = "unknown"
	}
	return Unhandled{Type: eventType}, nil
}

type WebhookResult struct {
	Event   string             `json:"event"`
	Handled bool               `json:"handled"`
	Report  domain.BatchReport `json:"report"`
	Order   *domain.Order      `json:"order,omitempty"`
}

type WebhookProcessor struct {
	applier MovementApplier
	orders  OrderRecorder
	logger  *zap.Logger
}

func NewWebhookProcessor(applier MovementApplier, orders OrderRecorder, logger *zap.Logger) *WebhookProcessor {
	return &WebhookProcessor{applier: applier, orders: orders, logger: logger}
}

// Process applies ev. A non-nil error means the delivery should be retried
// by the sender; per-item failures of a partly applied order are only
// reported in the result.
func (p *WebhookProcessor) Process(ctx context.Context, ev Event) (*WebhookResult, error) {
	switch e := ev.(type) {
	case OrderNotify:
		return p.orderNotify(ctx, e)
	case ShipNotify:
		return p.shipNotify(ctx, e)
	case Unhandled:
		p.logger.Info("unhandled webhook event", zap.String("event", e.Type))
		return &WebhookResult{Event: e.Type}, nil
	}
	return nil, fmt.Errorf("unsupported event %T", ev)
}

func (p *WebhookProcessor) orderNotify(ctx context.Context, ev OrderNotify) (*WebhookResult, error) {
	ref := ev.ref()
	if ref == "" {
		return nil, fmt.Errorf("%w: order has no id, number or delivery id", ErrMalformedPayload)
	}

	// Lines for the same SKU share one idempotency key, so they are reserved
	// as a single movement.
	intents := make([]domain.Intent, 0, len(ev.Items))
	items := make([]domain.OrderItem, 0, len(ev.Items))
	bySKU := make(map[string]int, len(ev.Items))
	for _, it := range ev.Items {
		items = append(items, domain.OrderItem{SKU: it.SKU, Quantity: it.Quantity, Price: it.UnitPrice})
		if i, ok := bySKU[it.SKU]; ok && it.Quantity > 0 {
			intents[i].Quantity += it.Quantity
			continue
		}
		if it.Quantity > 0 {
			bySKU[it.SKU] = len(intents)
		}
		intents = append(intents, domain.Intent{
			Type:           domain.MovementOrder,
			SKU:            it.SKU,
			Quantity:       it.Quantity,
			UserID:         domain.UserWebhook,
			Notes:          fmt.Sprintf("Order %s", ev.OrderNumber),
			Reference:      ev.OrderNumber,
			IdempotencyKey: idempotencyKey(EventOrderNotify, ref, it.SKU),
		})
	}

	result := &WebhookResult{Event: EventOrderNotify, Handled: true}
	result.Report = p.applier.ApplyBatch(ctx, intents)

	p.logger.Info("order notify processed",
		zap.String("order_number", ev.OrderNumber),
		zap.Int("items", len(intents)),
		zap.Int("applied", result.Report.Applied()),
		zap.Int("item_not_found", result.Report.Count(domain.ErrItemNotFound)),
		zap.Int("duplicates", result.Report.Count(domain.ErrDuplicateDelivery)),
	)

	if result.Report.Unrecoverable() {
		return result, ErrNothingApplied
	}

	if ev.OrderNumber != "" && p.orders != nil {
		order, err := p.orders.RecordOrder(ctx, ev.OrderNumber, ev.CustomerName, items)
		if err != nil {
			p.logger.Warn("failed to record webhook order", zap.String("order_number", ev.OrderNumber), zap.Error(err))
		} else {
			result.Order = order
		}
	}
	return result, nil
}

func (p *WebhookProcessor) shipNotify(ctx context.Context, ev ShipNotify) (*WebhookResult, error) {
	ref := ev.OrderID
	if ref == "" {
		ref = ev.OrderNumber
	}
	result := &WebhookResult{Event: EventShipNotify}

	order, err := p.orders.MarkShipped(ctx, ref, ev.TrackingNumber, ev.Carrier)
	switch {
	case err == nil:
		result.Handled = true
		result.Order = order
	case errors.Is(err, domain.ErrOrderNotFound) || domain.IsValidation(err):
		p.logger.Warn("ship notify for unknown order", zap.String("order", ref))
	case errors.Is(err, domain.ErrInvalidTransition):
		p.logger.Warn("ship notify for order past shipping",
			zap.String("order", ref),
			zap.String("tracking_number", ev.TrackingNumber),
		)
	default:
		return result, err
	}
	return result, nil
}
