package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/ledger"
)

// fakeApplier applies intents to an in-memory SKU table through the engine.
type fakeApplier struct {
	mu      sync.Mutex
	items   map[string]*domain.InventoryItem
	keys    map[string]bool
	intents []domain.Intent
	failAll error
	// failures fails that many calls before behaving normally
	failures int
}

func newFakeApplier(items ...domain.InventoryItem) *fakeApplier {
	f := &fakeApplier{items: map[string]*domain.InventoryItem{}, keys: map[string]bool{}}
	for i := range items {
		it := items[i]
		f.items[it.SKU] = &it
	}
	return f
}

func (f *fakeApplier) Apply(ctx context.Context, intent domain.Intent) (*ledger.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)

	if f.failAll != nil {
		return nil, &domain.PersistenceError{Op: "commit movement", Err: f.failAll}
	}
	if f.failures > 0 {
		f.failures--
		return nil, &domain.PersistenceError{Op: "commit movement", Err: errStoreDown}
	}
	if intent.IdempotencyKey != "" {
		if f.keys[intent.IdempotencyKey] {
			return nil, domain.ErrDuplicateDelivery
		}
	}

	res, err := ledger.Apply(f.items[intent.SKU], intent, time.Now())
	if err != nil {
		return nil, err
	}
	if intent.IdempotencyKey != "" {
		f.keys[intent.IdempotencyKey] = true
	}
	item := res.Item
	f.items[intent.SKU] = &item
	res.Movement.ID = fmt.Sprintf("mv-%d", len(f.intents))
	return res, nil
}

func (f *fakeApplier) ApplyBatch(ctx context.Context, intents []domain.Intent) domain.BatchReport {
	var report domain.BatchReport
	for i, intent := range intents {
		outcome := domain.ItemOutcome{Index: i, SKU: intent.SKU}
		res, err := f.Apply(ctx, intent)
		if err != nil {
			outcome.Err = err
		} else {
			mv := res.Movement
			outcome.Movement = &mv
		}
		report.Add(outcome)
	}
	return report
}

func (f *fakeApplier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

func (f *fakeApplier) quantity(sku string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[sku].Quantity
}

type fakeResolver map[string]domain.InventoryItem

func (r fakeResolver) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	it, ok := r[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return &it, nil
}

type fakeOrders struct {
	mu       sync.Mutex
	recorded []string
	shipped  map[string]string
	known    map[string]bool
	err      error
}

func newFakeOrders(known ...string) *fakeOrders {
	o := &fakeOrders{shipped: map[string]string{}, known: map[string]bool{}}
	for _, k := range known {
		o.known[k] = true
	}
	return o
}

func (o *fakeOrders) RecordOrder(ctx context.Context, orderNumber, customer string, items []domain.OrderItem) (*domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorded = append(o.recorded, orderNumber)
	return &domain.Order{ID: "order-" + orderNumber, OrderNumber: orderNumber, Customer: customer, Items: items}, nil
}

func (o *fakeOrders) MarkShipped(ctx context.Context, ref, trackingNumber, carrier string) (*domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	if !o.known[ref] {
		return nil, domain.ErrOrderNotFound
	}
	o.shipped[ref] = trackingNumber
	return &domain.Order{ID: ref, Status: domain.OrderStatusShipped, TrackingNumber: trackingNumber, Carrier: carrier}, nil
}

var errStoreDown = errors.New("store down")
