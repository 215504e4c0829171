package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

type OrderService struct {
	orders port.OrderRepository
	feed   port.ChangeFeed
	logger *zap.Logger
	now    func() time.Time
}

func NewOrderService(orders port.OrderRepository, feed port.ChangeFeed, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		feed:   feed,
		logger: logger,
		now:    time.Now,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	if order.OrderNumber != "" {
		existing, err := s.orders.GetOrderByNumber(ctx, order.OrderNumber)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "get order", Err: err}
		}
		if existing != nil {
			return nil, &domain.ValidationError{Field: "orderNumber", Message: "order number already exists"}
		}
	}

	now := s.now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if err := s.orders.CreateOrder(ctx, &order); err != nil {
		return nil, &domain.PersistenceError{Op: "create order", Err: err}
	}

	s.logger.Info("order created", zap.String("order_id", order.ID), zap.String("order_number", order.OrderNumber))
	publishChange(ctx, s.feed, s.logger, domain.CollectionOrders, order.ID, now)
	return &order, nil
}

// RecordOrder stores an order announced by an external system. Redelivered
// announcements return the order already on file.
func (s *OrderService) RecordOrder(ctx context.Context, orderNumber, customer string, items []domain.OrderItem) (*domain.Order, error) {
	if orderNumber == "" {
		return nil, &domain.ValidationError{Field: "orderNumber", Message: "order number is required"}
	}
	existing, err := s.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get order", Err: err}
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now().UTC()
	order := &domain.Order{
		OrderNumber: orderNumber,
		Customer:    customer,
		Status:      domain.OrderStatusPending,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, &domain.PersistenceError{Op: "create order", Err: err}
	}
	publishChange(ctx, s.feed, s.logger, domain.CollectionOrders, order.ID, now)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get order", Err: err}
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if status != "" && !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: "unknown order status"}
	}
	orders, err := s.orders.ListOrders(ctx, status)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(status) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.orders.UpdateOrderStatus(ctx, id, status, now); err != nil {
		return nil, &domain.PersistenceError{Op: "update order", Err: err}
	}
	order.Status = status
	order.UpdatedAt = now
	s.logger.Info("order status changed", zap.String("order_id", id), zap.String("status", string(status)))
	publishChange(ctx, s.feed, s.logger, domain.CollectionOrders, id, now)
	return order, nil
}

// MarkShipped records shipment details. ref is matched against the order ID
// first and the order number second, since carriers echo either. Orders that
// cannot move to shipped are left untouched with ErrInvalidTransition.
func (s *OrderService) MarkShipped(ctx context.Context, ref, trackingNumber, carrier string) (*domain.Order, error) {
	if ref == "" {
		return nil, &domain.ValidationError{Field: "orderId", Message: "order reference is required"}
	}

	order, err := s.orders.GetOrder(ctx, ref)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get order", Err: err}
	}
	if order == nil {
		order, err = s.orders.GetOrderByNumber(ctx, ref)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "get order", Err: err}
		}
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	// A repeated notice for the same shipment changes nothing.
	if order.Status == domain.OrderStatusShipped && order.TrackingNumber == trackingNumber {
		return order, nil
	}
	if !order.Status.CanTransition(domain.OrderStatusShipped) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.orders.MarkShipped(ctx, order.ID, trackingNumber, carrier, now); err != nil {
		return nil, &domain.PersistenceError{Op: "mark shipped", Err: err}
	}
	order.Status = domain.OrderStatusShipped
	order.TrackingNumber = trackingNumber
	order.Carrier = carrier
	order.ShippedAt = &now
	order.UpdatedAt = now

	s.logger.Info("order shipped",
		zap.String("order_id", order.ID),
		zap.String("tracking_number", trackingNumber),
		zap.String("carrier", carrier),
	)
	publishChange(ctx, s.feed, s.logger, domain.CollectionOrders, order.ID, now)
	return order, nil
}

func validateOrder(order domain.Order) error {
	if strings.TrimSpace(order.Customer) == "" {
		return &domain.ValidationError{Field: "customer", Message: "customer name is required"}
	}
	if order.Email != "" && !strings.Contains(order.Email, "@") {
		return &domain.ValidationError{Field: "email", Message: "invalid email address"}
	}
	if order.Status != "" && !order.Status.Valid() {
		return &domain.ValidationError{Field: "status", Message: "unknown order status"}
	}
	if len(order.Items) == 0 {
		return &domain.ValidationError{Field: "items", Message: "at least one item is required"}
	}
	for _, it := range order.Items {
		if it.SKU == "" {
			return &domain.ValidationError{Field: "items.sku", Message: "item is required"}
		}
		if it.Quantity < 1 {
			return &domain.ValidationError{Field: "items.quantity", Message: "quantity must be at least 1"}
		}
		if it.Price < 0 {
			return &domain.ValidationError{Field: "items.price", Message: "price must be non-negative"}
		}
	}
	return nil
}
