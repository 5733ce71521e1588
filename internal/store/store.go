// Package store persists the session-spanning caches: statistical query
// results keyed by URL, region identifier tables keyed by region type, and
// saved share documents.
package store

import (
	"context"
	"time"
)

// Store defines the persistence interface for the catalog caches. The region
// identifier methods satisfy the region package's Persistence interface, so a
// Store plugs straight under the in-memory identifier cache.
type Store interface {
	// Query result cache
	GetCachedTable(ctx context.Context, url string) ([]byte, error)
	SetCachedTable(ctx context.Context, url string, text []byte, ttl time.Duration) error
	DeleteExpiredTables(ctx context.Context) (int, error)

	// Region identifier tables
	GetRegionIDs(ctx context.Context, code string) ([]int, bool, error)
	SetRegionIDs(ctx context.Context, code string, ids []int) error

	// Shares
	SaveShare(ctx context.Context, id string, doc []byte) error
	GetShare(ctx context.Context, id string) ([]byte, error)
	ListShares(ctx context.Context, limit int) ([]ShareInfo, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ShareInfo summarizes one saved share document.
type ShareInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
