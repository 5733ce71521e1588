package region

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider enumerates the canonical ordered region identifiers for a
// descriptor's remote dataset.
type Provider interface {
	EnumerateIDs(ctx context.Context, dataset, property string) ([]int, error)
}

// Persistence is the optional durable layer under the identifier cache.
// Implemented by the session cache store.
type Persistence interface {
	GetRegionIDs(ctx context.Context, code string) ([]int, bool, error)
	SetRegionIDs(ctx context.Context, code string, ids []int) error
}

// IDCache memoizes identifier tables per descriptor code. Concurrent callers
// requesting a not-yet-resolved table share the in-flight fetch instead of
// issuing duplicate requests.
type IDCache struct {
	provider Provider
	persist  Persistence // optional

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	done chan struct{}
	ids  []int
	err  error
}

// NewIDCache builds a cache over the given provider. persist may be nil.
func NewIDCache(provider Provider, persist Persistence) *IDCache {
	return &IDCache{
		provider: provider,
		persist:  persist,
		entries:  make(map[string]*cacheEntry),
	}
}

// IDs returns the ordered identifier table for a descriptor, fetching it at
// most once per descriptor code for the lifetime of the cache.
func (c *IDCache) IDs(ctx context.Context, d Descriptor) ([]int, error) {
	c.mu.Lock()
	entry, ok := c.entries[d.Code]
	if ok {
		c.mu.Unlock()
		select {
		case <-entry.done:
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "region: wait for identifier table")
		}
		return entry.ids, entry.err
	}

	entry = &cacheEntry{done: make(chan struct{})}
	c.entries[d.Code] = entry
	c.mu.Unlock()

	entry.ids, entry.err = c.fetch(ctx, d)
	if entry.err != nil {
		// Failed fetches are not cached; the next caller retries.
		c.mu.Lock()
		delete(c.entries, d.Code)
		c.mu.Unlock()
	}
	close(entry.done)
	return entry.ids, entry.err
}

func (c *IDCache) fetch(ctx context.Context, d Descriptor) ([]int, error) {
	if c.persist != nil {
		ids, found, err := c.persist.GetRegionIDs(ctx, d.Code)
		if err != nil {
			zap.L().Warn("region: identifier cache read failed", zap.String("region", d.Code), zap.Error(err))
		} else if found {
			zap.L().Debug("region: identifier table cache hit", zap.String("region", d.Code), zap.Int("count", len(ids)))
			return ids, nil
		}
	}

	ids, err := c.provider.EnumerateIDs(ctx, d.ServerDataset, d.IDProperty)
	if err != nil {
		return nil, eris.Wrapf(err, "region: enumerate identifiers for %s", d.Code)
	}
	if len(ids) == 0 {
		return nil, eris.Errorf("region: empty identifier table for %s", d.Code)
	}

	if c.persist != nil {
		if err := c.persist.SetRegionIDs(ctx, d.Code, ids); err != nil {
			zap.L().Warn("region: identifier cache write failed", zap.String("region", d.Code), zap.Error(err))
		}
	}

	zap.L().Info("region: identifier table fetched",
		zap.String("region", d.Code),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}
