package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/ledger"
	"github.com/rl1809/stockroom/internal/port"
)

// AlertSink receives low-stock events raised outside a movement, e.g. when
// an administrator raises an item's minimum stock above its quantity.
type AlertSink interface {
	RaiseAlert(ctx context.Context, event domain.LowStockEvent)
}

type ItemService struct {
	items     port.ItemRepository
	movements port.MovementRepository
	feed      port.ChangeFeed
	alerts    AlertSink
	logger    *zap.Logger
	now       func() time.Time
}

func NewItemService(items port.ItemRepository, movements port.MovementRepository, feed port.ChangeFeed, alerts AlertSink, logger *zap.Logger) *ItemService {
	return &ItemService{
		items:     items,
		movements: movements,
		feed:      feed,
		alerts:    alerts,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ItemService) AddItem(ctx context.Context, input domain.NewItem) (*domain.InventoryItem, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)
	if input.SKU == "" {
		return nil, &domain.ValidationError{Field: "sku", Message: "sku is required"}
	}
	if input.Name == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "name is required"}
	}
	if input.MinimumStock < 0 {
		return nil, &domain.ValidationError{Field: "minimumStock", Message: "minimum stock cannot be negative"}
	}
	if input.Quantity < 0 {
		return nil, &domain.ValidationError{Field: "quantity", Message: "quantity cannot be negative"}
	}

	existing, err := s.items.GetItemBySKU(ctx, input.SKU)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get item", Err: err}
	}
	if existing != nil {
		return nil, domain.ErrDuplicateSKU
	}

	now := ledger.NextTimestamp(time.Time{}, s.now())
	item := &domain.InventoryItem{
		SKU:          input.SKU,
		Name:         input.Name,
		Location:     input.Location,
		Quantity:     input.Quantity,
		MinimumStock: input.MinimumStock,
		LastUpdated:  now,
		CreatedAt:    now,
	}
	if err := s.items.CreateItem(ctx, item); err != nil {
		if errors.Is(err, domain.ErrDuplicateSKU) {
			return nil, err
		}
		return nil, &domain.PersistenceError{Op: "create item", Err: err}
	}

	s.logger.Info("item created", zap.String("item_id", item.ID), zap.String("sku", item.SKU))
	publishChange(ctx, s.feed, s.logger, domain.CollectionInventory, item.ID, now)
	return item, nil
}

func (s *ItemService) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	item, err := s.items.GetItemByID(ctx, id)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get item", Err: err}
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	return item, nil
}

func (s *ItemService) GetItemBySKU(ctx context.Context, sku string) (*domain.InventoryItem, error) {
	item, err := s.items.GetItemBySKU(ctx, sku)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get item", Err: err}
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	return item, nil
}

func (s *ItemService) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error) {
	items, err := s.items.ListItems(ctx, filter)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list items", Err: err}
	}
	return items, nil
}

// UpdateItem edits descriptive fields and the reorder threshold. Raising the
// threshold over the current quantity raises a low-stock alert.
func (s *ItemService) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (*domain.InventoryItem, error) {
	if patch.MinimumStock != nil && *patch.MinimumStock < 0 {
		return nil, &domain.ValidationError{Field: "minimumStock", Message: "minimum stock cannot be negative"}
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "name cannot be empty"}
	}

	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		before, err := s.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}

		after := *before
		if patch.Name != nil {
			after.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Location != nil {
			after.Location = *patch.Location
		}
		if patch.MinimumStock != nil {
			after.MinimumStock = *patch.MinimumStock
		}
		after.LastUpdated = ledger.NextTimestamp(before.LastUpdated, s.now())

		err = s.items.UpdateItem(ctx, after)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, &domain.PersistenceError{Op: "update item", Err: err}
		}

		after.Version++
		publishChange(ctx, s.feed, s.logger, domain.CollectionInventory, after.ID, after.LastUpdated)
		if signal := ledger.Evaluate(*before, after, after.LastUpdated); signal != nil && s.alerts != nil {
			s.alerts.RaiseAlert(ctx, *signal)
		}
		return &after, nil
	}
	return nil, &domain.PersistenceError{Op: "update item", Err: ErrCommitConflict}
}

// DeleteItem removes the item. Its movements stay as audit history.
func (s *ItemService) DeleteItem(ctx context.Context, id string) error {
	if _, err := s.GetItem(ctx, id); err != nil {
		return err
	}
	if err := s.items.DeleteItem(ctx, id); err != nil {
		return &domain.PersistenceError{Op: "delete item", Err: err}
	}
	s.logger.Info("item deleted", zap.String("item_id", id))
	publishChange(ctx, s.feed, s.logger, domain.CollectionInventory, id, s.now())
	return nil
}

func (s *ItemService) LowStock(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.ListItems(ctx, domain.ItemFilter{LowStock: true})
}

func (s *ItemService) Stats(ctx context.Context, recent int) (*domain.DashboardStats, error) {
	items, err := s.ListItems(ctx, domain.ItemFilter{})
	if err != nil {
		return nil, err
	}
	movements, err := s.movements.ListMovements(ctx, domain.MovementFilter{Limit: recent})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list movements", Err: err}
	}

	stats := &domain.DashboardStats{
		TotalItems:      len(items),
		RecentMovements: movements,
		GeneratedAt:     s.now().UTC(),
	}
	locations := make(map[string]struct{})
	for _, it := range items {
		stats.TotalUnits += it.Quantity
		if it.IsLow() {
			stats.LowStockItems++
		}
		if it.Location != "" {
			locations[it.Location] = struct{}{}
		}
	}
	stats.Locations = len(locations)
	return stats, nil
}
