package port

import (
	"context"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// ItemRepository reads and edits inventory items. Getters return (nil, nil)
// when nothing matches.
type ItemRepository interface {
	GetItemByID(ctx context.Context, id string) (*domain.InventoryItem, error)
	GetItemBySKU(ctx context.Context, sku string) (*domain.InventoryItem, error)
	ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error)

	// CreateItem assigns the item ID and persists it.
	CreateItem(ctx context.Context, item *domain.InventoryItem) error

	// UpdateItem writes item guarded by its version for optimistic locking.
	UpdateItem(ctx context.Context, item domain.InventoryItem) error

	DeleteItem(ctx context.Context, id string) error
}

// LedgerRepository persists the outcome of one movement application.
type LedgerRepository interface {
	// CommitMovement writes the new item state and appends the movement in a
	// single transaction. Existing items are guarded by version; an item
	// without ID is inserted. The movement ID is assigned here.
	CommitMovement(ctx context.Context, item *domain.InventoryItem, movement *domain.Movement) error
}

type MovementRepository interface {
	GetMovement(ctx context.Context, id string) (*domain.Movement, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error)
	UpdateMovementStatus(ctx context.Context, id string, from, to domain.MovementStatus, notes *string) error
}

type OrderRepository interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	CreateOrder(ctx context.Context, order *domain.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error
	MarkShipped(ctx context.Context, id, trackingNumber, carrier string, shippedAt time.Time) error
}

type NotificationRepository interface {
	SaveNotification(ctx context.Context, event *domain.LowStockEvent) error
	ListNotifications(ctx context.Context, limit int) ([]domain.LowStockEvent, error)
}

type DatabaseRepository interface {
	ItemRepository
	LedgerRepository
	MovementRepository
	OrderRepository
	NotificationRepository
}
