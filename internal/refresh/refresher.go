// Package refresh rebuilds preload scopes on a schedule so long-running
// prediction processes pick up newly ingested games.
package refresh

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/engine"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// Builder constructs a fresh preload context for a season key.
type Builder func(ctx context.Context, season string) (*engine.PreloadContext, error)

// ContextCache is the caller-managed reuse point for preload scopes,
// keyed by season string. The mutex guards the swap performed by the
// scheduled refresh; readers take the read lock.
type ContextCache struct {
	mu       sync.RWMutex
	contexts map[string]*engine.PreloadContext
}

func NewContextCache() *ContextCache {
	return &ContextCache{contexts: make(map[string]*engine.PreloadContext)}
}

// Get returns the cached scope for a season, nil when absent.
func (c *ContextCache) Get(season string) *engine.PreloadContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contexts[season]
}

// Put swaps in a rebuilt scope for a season.
func (c *ContextCache) Put(season string, pctx *engine.PreloadContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts[season] = pctx
}

// Clear drops every cached scope.
func (c *ContextCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts = make(map[string]*engine.PreloadContext)
}

// Refresher rebuilds the cached scopes on a cron schedule.
type Refresher struct {
	cron    *cron.Cron
	cache   *ContextCache
	builder Builder
	seasons []string
	log     *logrus.Entry
}

func NewRefresher(cache *ContextCache, builder Builder, seasons []string) *Refresher {
	return &Refresher{
		cron:    cron.New(),
		cache:   cache,
		builder: builder,
		seasons: seasons,
		log:     logger.WithComponent("preload_refresher"),
	}
}

// Start schedules the rebuild with the given cron spec and begins the
// scheduler.
func (r *Refresher) Start(spec string) error {
	_, err := r.cron.AddFunc(spec, r.RefreshAll)
	if err != nil {
		return err
	}
	r.cron.Start()
	r.log.WithField("cron_spec", spec).Info("Preload refresher started")
	return nil
}

// RefreshAll rebuilds every configured season scope. A failed rebuild
// leaves the previous scope in place.
func (r *Refresher) RefreshAll() {
	ctx := context.Background()
	for _, season := range r.seasons {
		pctx, err := r.builder(ctx, season)
		if err != nil {
			r.log.WithError(err).WithField("season", season).Error("Preload refresh failed, keeping previous scope")
			continue
		}
		r.cache.Put(season, pctx)
		r.log.WithField("season", season).Info("Preload scope refreshed")
	}
}

// Stop halts the scheduler, waiting for a running refresh to finish.
func (r *Refresher) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
}
