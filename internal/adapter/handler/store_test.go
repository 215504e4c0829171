package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// memStore is an in-memory stand-in for the MySQL adapter.
type memStore struct {
	mu            sync.Mutex
	seq           int
	items         map[string]*domain.InventoryItem
	movements     []domain.Movement
	orders        map[string]*domain.Order
	notifications []domain.LowStockEvent
	down          error
}

func newMemStore() *memStore {
	return &memStore{
		items:  make(map[string]*domain.InventoryItem),
		orders: make(map[string]*domain.Order),
	}
}

func (m *memStore) id(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) seed(sku string, quantity, minimum int) domain.InventoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := &domain.InventoryItem{
		ID:           m.id("item"),
		SKU:          sku,
		Name:         "Item " + sku,
		Location:     "A1",
		Quantity:     quantity,
		MinimumStock: minimum,
	}
	m.items[it.ID] = it
	return *it
}

func (m *memStore) quantity(sku string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.SKU == sku {
			return it.Quantity
		}
	}
	return -1
}

func (m *memStore) GetItemByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down != nil {
		return nil, m.down
	}
	if it, ok := m.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetItemBySKU(ctx context.Context, sku string) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down != nil {
		return nil, m.down
	}
	for _, it := range m.items {
		if it.SKU == sku {
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.InventoryItem{}
	for _, it := range m.items {
		if filter.LowStock && !it.IsLow() {
			continue
		}
		if filter.Location != "" && it.Location != filter.Location {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (m *memStore) CreateItem(ctx context.Context, item *domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.SKU == item.SKU {
			return domain.ErrDuplicateSKU
		}
	}
	item.ID = m.id("item")
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memStore) UpdateItem(ctx context.Context, item domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[item.ID]
	if !ok || cur.Version != item.Version {
		return domain.ErrVersionConflict
	}
	item.Version++
	m.items[item.ID] = &item
	return nil
}

func (m *memStore) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memStore) CommitMovement(ctx context.Context, item *domain.InventoryItem, movement *domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down != nil {
		return m.down
	}
	if item.ID == "" {
		item.ID = m.id("item")
		movement.ItemID = item.ID
	} else {
		cur, ok := m.items[item.ID]
		if !ok || cur.Version != item.Version {
			return domain.ErrVersionConflict
		}
		item.Version++
	}
	cp := *item
	m.items[item.ID] = &cp
	movement.ID = m.id("mv")
	m.movements = append(m.movements, *movement)
	return nil
}

func (m *memStore) GetMovement(ctx context.Context, id string) (*domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mv := range m.movements {
		if mv.ID == id {
			cp := mv
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Movement{}
	for i := len(m.movements) - 1; i >= 0; i-- {
		mv := m.movements[i]
		if filter.SKU != "" && mv.SKU != filter.SKU {
			continue
		}
		if filter.Type != "" && mv.Type != filter.Type {
			continue
		}
		out = append(out, mv)
	}
	return out, nil
}

func (m *memStore) UpdateMovementStatus(ctx context.Context, id string, from, to domain.MovementStatus, notes *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.movements {
		if m.movements[i].ID == id && m.movements[i].Status == from {
			m.movements[i].Status = to
			if notes != nil {
				m.movements[i].Notes = *notes
			}
			return nil
		}
	}
	return domain.ErrInvalidTransition
}

func (m *memStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == orderNumber {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Order{}
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = m.id("order")
	if order.OrderNumber == "" {
		order.OrderNumber = "ORD-" + order.ID
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = status
		o.UpdatedAt = updatedAt
	}
	return nil
}

func (m *memStore) MarkShipped(ctx context.Context, id, trackingNumber, carrier string, shippedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = domain.OrderStatusShipped
		o.TrackingNumber = trackingNumber
		o.Carrier = carrier
		o.ShippedAt = &shippedAt
	}
	return nil
}

func (m *memStore) SaveNotification(ctx context.Context, event *domain.LowStockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = m.id("n")
	m.notifications = append(m.notifications, *event)
	return nil
}

func (m *memStore) ListNotifications(ctx context.Context, limit int) ([]domain.LowStockEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.LowStockEvent{}
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.notifications[i])
	}
	return out, nil
}

type memKeys struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (k *memKeys) SetIdempotency(ctx context.Context, key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.keys == nil {
		k.keys = make(map[string]bool)
	}
	if k.keys[key] {
		return false, nil
	}
	k.keys[key] = true
	return true, nil
}

func (k *memKeys) ReleaseIdempotency(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
	return nil
}

// memFeed fans published changes out to live subscribers.
type memFeed struct {
	mu   sync.Mutex
	subs []feedSub
}

type feedSub struct {
	ch          chan domain.Change
	collections map[string]bool
}

func (f *memFeed) Publish(ctx context.Context, change domain.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.collections[change.Collection] {
			select {
			case s.ch <- change:
			default:
			}
		}
	}
	return nil
}

func (f *memFeed) Subscribe(ctx context.Context, collections ...string) (<-chan domain.Change, error) {
	sub := feedSub{ch: make(chan domain.Change, 16), collections: make(map[string]bool)}
	for _, c := range collections {
		sub.collections[c] = true
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, s := range f.subs {
			if s.ch == sub.ch {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				break
			}
		}
		close(sub.ch)
	}()
	return sub.ch, nil
}

// subscribers reports how many subscriptions are live.
func (f *memFeed) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
