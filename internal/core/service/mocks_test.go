package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// Mock store implementing the item, ledger, movement and order repositories
type mockStore struct {
	mu        sync.Mutex
	items     map[string]*domain.InventoryItem // by ID
	movements []domain.Movement
	orders    map[string]*domain.Order
	seq       int

	// conflicts makes the next N writes fail with ErrVersionConflict
	conflicts int
	// failWith makes every write fail with this error
	failWith error
}

func newMockStore() *mockStore {
	return &mockStore{
		items:  make(map[string]*domain.InventoryItem),
		orders: make(map[string]*domain.Order),
	}
}

func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *mockStore) seed(sku string, quantity, minimum int) *domain.InventoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := &domain.InventoryItem{
		ID:           m.nextID("item"),
		SKU:          sku,
		Name:         "Item " + sku,
		Location:     "A1",
		Quantity:     quantity,
		MinimumStock: minimum,
		LastUpdated:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	m.items[item.ID] = item
	cp := *item
	return &cp
}

func (m *mockStore) quantity(sku string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.SKU == sku {
			return it.Quantity
		}
	}
	return -1
}

func (m *mockStore) writeErr() error {
	if m.failWith != nil {
		return m.failWith
	}
	if m.conflicts > 0 {
		m.conflicts--
		return domain.ErrVersionConflict
	}
	return nil
}

func (m *mockStore) GetItemByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, nil
}

func (m *mockStore) GetItemBySKU(ctx context.Context, sku string) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.SKU == sku {
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InventoryItem
	for _, it := range m.items {
		if filter.LowStock && !it.IsLow() {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (m *mockStore) CreateItem(ctx context.Context, item *domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	item.ID = m.nextID("item")
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockStore) UpdateItem(ctx context.Context, item domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	cur, ok := m.items[item.ID]
	if !ok || cur.Version != item.Version {
		return domain.ErrVersionConflict
	}
	item.Version++
	m.items[item.ID] = &item
	return nil
}

func (m *mockStore) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *mockStore) CommitMovement(ctx context.Context, item *domain.InventoryItem, movement *domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = m.nextID("item")
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
	movement.ID = m.nextID("mv")
	m.movements = append(m.movements, *movement)
	return nil
}

func (m *mockStore) GetMovement(ctx context.Context, id string) (*domain.Movement, error) {
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

func (m *mockStore) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Movement
	for i := len(m.movements) - 1; i >= 0; i-- {
		mv := m.movements[i]
		if filter.SKU != "" && mv.SKU != filter.SKU {
			continue
		}
		out = append(out, mv)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) UpdateMovementStatus(ctx context.Context, id string, from, to domain.MovementStatus, notes *string) error {
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
	return domain.ErrMovementNotFound
}

func (m *mockStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (m *mockStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
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

func (m *mockStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	order.ID = m.nextID("order")
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *mockStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return errors.New("no such order")
	}
	o.Status = status
	o.UpdatedAt = updatedAt
	return nil
}

func (m *mockStore) MarkShipped(ctx context.Context, id, trackingNumber, carrier string, shippedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return errors.New("no such order")
	}
	o.Status = domain.OrderStatusShipped
	o.TrackingNumber = trackingNumber
	o.Carrier = carrier
	o.ShippedAt = &shippedAt
	return nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	released       []string
	err            error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	m.released = append(m.released, key)
	return nil
}

// Mock ChangeFeed recording what was published
type mockFeed struct {
	mu      sync.Mutex
	changes []domain.Change
}

func (m *mockFeed) Publish(ctx context.Context, change domain.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return nil
}

func (m *mockFeed) Subscribe(ctx context.Context, collections ...string) (<-chan domain.Change, error) {
	ch := make(chan domain.Change)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (m *mockFeed) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.changes {
		if c.Collection == collection {
			n++
		}
	}
	return n
}
