package training

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

// MetaCache is the process-scoped view of the scheduler metadata. It loads
// on first use and is rewritten on every Put. It does not coordinate with
// other processes.
type MetaCache struct {
	store ports.TrainingMetaStore
	group singleflight.Group

	mu     sync.Mutex
	loaded bool
	meta   domain.TrainingMeta
}

func NewMetaCache(store ports.TrainingMetaStore) *MetaCache {
	return &MetaCache{store: store}
}

func (c *MetaCache) Get(ctx context.Context) (domain.TrainingMeta, error) {
	c.mu.Lock()
	if c.loaded {
		meta := c.meta
		c.mu.Unlock()
		return meta, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("meta", func() (any, error) {
		meta, err := c.store.Load(ctx)
		if err != nil {
			return domain.TrainingMeta{}, fmt.Errorf("load training meta: %w", err)
		}
		c.mu.Lock()
		c.meta = meta
		c.loaded = true
		c.mu.Unlock()
		return meta, nil
	})
	if err != nil {
		return domain.TrainingMeta{}, err
	}
	return v.(domain.TrainingMeta), nil
}

func (c *MetaCache) Put(ctx context.Context, meta domain.TrainingMeta) error {
	if err := c.store.Save(ctx, meta); err != nil {
		c.Invalidate()
		return fmt.Errorf("save training meta: %w", err)
	}
	c.mu.Lock()
	c.meta = meta
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Invalidate forces the next Get to reload from the store.
func (c *MetaCache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}
