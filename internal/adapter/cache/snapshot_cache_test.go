package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// In-process change feed
type chanFeed struct {
	mu   sync.Mutex
	subs []chan domain.Change
}

func (f *chanFeed) Publish(ctx context.Context, change domain.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		s <- change
	}
	return nil
}

func (f *chanFeed) Subscribe(ctx context.Context, collections ...string) (<-chan domain.Change, error) {
	ch := make(chan domain.Change, 16)
	out := make(chan domain.Change)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-ch:
				out <- c
			}
		}
	}()
	return out, nil
}

func (f *chanFeed) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func TestGet_ReadThrough(t *testing.T) {
	c, err := NewSnapshotCache(4, &chanFeed{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	var loads atomic.Int32
	c.Register(domain.CollectionInventory, func(ctx context.Context) (interface{}, error) {
		loads.Add(1)
		return []string{"a", "b"}, nil
	})

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), domain.CollectionInventory)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if len(v.([]string)) != 2 {
			t.Errorf("unexpected snapshot: %v", v)
		}
	}
	if loads.Load() != 1 {
		t.Errorf("expected one load, got %d", loads.Load())
	}

	c.Invalidate(domain.CollectionInventory)
	c.Get(context.Background(), domain.CollectionInventory)
	if loads.Load() != 2 {
		t.Errorf("expected reload after invalidation, got %d loads", loads.Load())
	}
}

func TestGet_UnknownCollection(t *testing.T) {
	c, _ := NewSnapshotCache(4, &chanFeed{}, zap.NewNop())
	if _, err := c.Get(context.Background(), "nope"); err == nil {
		t.Error("expected error for unregistered collection")
	}
}

func TestGet_LoaderErrorNotCached(t *testing.T) {
	c, _ := NewSnapshotCache(4, &chanFeed{}, zap.NewNop())
	fail := true
	c.Register(domain.CollectionOrders, func(ctx context.Context) (interface{}, error) {
		if fail {
			return nil, errors.New("db down")
		}
		return 1, nil
	})

	if _, err := c.Get(context.Background(), domain.CollectionOrders); err == nil {
		t.Fatal("expected loader error")
	}
	fail = false
	if v, err := c.Get(context.Background(), domain.CollectionOrders); err != nil || v.(int) != 1 {
		t.Errorf("expected fresh load, got %v, %v", v, err)
	}
}

func TestRun_InvalidatesOnChange(t *testing.T) {
	feed := &chanFeed{}
	c, _ := NewSnapshotCache(4, feed, zap.NewNop())

	var loads atomic.Int32
	c.Register(domain.CollectionInventory, func(ctx context.Context) (interface{}, error) {
		return int(loads.Add(1)), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for feed.subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	v, _ := c.Get(context.Background(), domain.CollectionInventory)
	if v.(int) != 1 {
		t.Fatalf("expected first snapshot, got %v", v)
	}

	feed.Publish(ctx, domain.Change{Collection: domain.CollectionInventory, ID: "x"})

	for time.Now().Before(deadline) {
		v, _ = c.Get(context.Background(), domain.CollectionInventory)
		if v.(int) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if v.(int) != 2 {
		t.Errorf("expected snapshot to be reloaded after change, got %v", v)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
