package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ausmap/geocat-cli/internal/catalog"
	"github.com/ausmap/geocat-cli/internal/fetcher"
	"github.com/ausmap/geocat-cli/internal/region"
	"github.com/ausmap/geocat-cli/internal/store"
	"github.com/ausmap/geocat-cli/pkg/absapi"
	"github.com/ausmap/geocat-cli/pkg/regionprov"
)

// Env bundles the services every command builds items from.
type Env struct {
	Store  store.Store
	Fetch  fetcher.Fetcher
	FTP    *fetcher.FTPFetcher
	IDs    *region.IDCache
	Mapper *region.Mapper
	ABS    absapi.Client
	Deps   *catalog.Deps
}

// initEnv validates config for the given command mode and wires the service
// graph: store under the identifier cache, shared fetcher with proxy rewrite,
// region and ABS clients, and the catalog dependency set.
func initEnv(ctx context.Context, mode string) (*Env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	if n, err := st.DeleteExpiredTables(ctx); err != nil {
		zap.L().Warn("store: expiry sweep failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Debug("store: expired cached tables removed", zap.Int("count", n))
	}

	fetch := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RateLimiters: fetcher.DefaultRateLimiters(),
		ProxyBase:    cfg.Fetch.ProxyBase,
		ProxyHosts:   cfg.Fetch.ProxyHosts,
	})
	ftp := fetcher.NewFTPFetcher(fetcher.FTPOptions{})

	prov := regionprov.NewClient(
		regionprov.WithBaseURL(cfg.Region.ServerURL),
		regionprov.WithRateLimit(cfg.Region.RateLimit),
	)
	ids := region.NewIDCache(prov, st)
	mapper := region.NewMapper(region.DefaultRegistry(), ids)

	abs := absapi.NewClient(
		absapi.WithBaseURL(cfg.ABS.BaseURL),
		absapi.WithRateLimit(cfg.ABS.RateLimit),
	)

	env := &Env{
		Store:  st,
		Fetch:  fetch,
		FTP:    ftp,
		IDs:    ids,
		Mapper: mapper,
		ABS:    abs,
		Deps: &catalog.Deps{
			Fetcher:         fetch,
			FTP:             ftp,
			Mapper:          mapper,
			ABS:             abs,
			Cache:           st,
			CacheTTL:        time.Duration(cfg.Store.CacheTTLHours) * time.Hour,
			NewImageryLayer: func() catalog.ImageryLayer { return &catalog.RecordingLayer{} },
			NewVectorLayer:  func() catalog.VectorLayer { return &catalog.RecordingLayer{} },
		},
	}
	return env, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == "postgres" {
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	}
	return store.NewSQLite(cfg.Store.Path)
}

// Close releases the store.
func (e *Env) Close() {
	_ = e.Store.Close()
}
