// Package cache keeps read-only snapshots of whole collections for list
// endpoints. Snapshots are dropped when the change feed reports a write to
// their collection, so the ledger itself never reads from here.
package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// Loader reads a full snapshot of one collection from the source of truth.
type Loader func(ctx context.Context) (interface{}, error)

type SnapshotCache struct {
	entries *lru.Cache
	feed    port.ChangeFeed
	logger  *zap.Logger

	mu      sync.RWMutex
	loaders map[string]Loader
	// generation is bumped on every invalidation so a load that raced with a
	// change is not stored.
	generation map[string]uint64
}

func NewSnapshotCache(size int, feed port.ChangeFeed, logger *zap.Logger) (*SnapshotCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	return &SnapshotCache{
		entries:    entries,
		feed:       feed,
		logger:     logger,
		loaders:    make(map[string]Loader),
		generation: make(map[string]uint64),
	}, nil
}

func (c *SnapshotCache) Register(collection string, loader Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaders[collection] = loader
}

// Get returns the cached snapshot of collection, loading it on a miss.
func (c *SnapshotCache) Get(ctx context.Context, collection string) (interface{}, error) {
	if v, ok := c.entries.Get(collection); ok {
		return v, nil
	}

	c.mu.RLock()
	loader, ok := c.loaders[collection]
	gen := c.generation[collection]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no loader registered for %q", collection)
	}

	v, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation[collection] == gen {
		c.entries.Add(collection, v)
	}
	c.mu.Unlock()
	return v, nil
}

func (c *SnapshotCache) Invalidate(collection string) {
	c.mu.Lock()
	c.generation[collection]++
	c.entries.Remove(collection)
	c.mu.Unlock()
}

// Run drops snapshots as changes arrive until ctx is done.
func (c *SnapshotCache) Run(ctx context.Context) error {
	c.mu.RLock()
	collections := make([]string, 0, len(c.loaders))
	for name := range c.loaders {
		collections = append(collections, name)
	}
	c.mu.RUnlock()

	changes, err := c.feed.Subscribe(ctx, collections...)
	if err != nil {
		return err
	}
	c.logger.Info("snapshot cache listening", zap.Strings("collections", collections))

	for change := range changes {
		c.Invalidate(change.Collection)
		c.logger.Debug("snapshot invalidated",
			zap.String("collection", change.Collection),
			zap.String("id", change.ID),
		)
	}
	return ctx.Err()
}

// Watch streams changes for one collection to a subscriber until ctx is done.
func (c *SnapshotCache) Watch(ctx context.Context, collection string) (<-chan domain.Change, error) {
	return c.feed.Subscribe(ctx, collection)
}
