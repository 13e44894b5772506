package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/batch"
	"github.com/courtdata/feature-engine/internal/cache"
	"github.com/courtdata/feature-engine/internal/engine"
	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/internal/refresh"
	"github.com/courtdata/feature-engine/internal/store"
	"github.com/courtdata/feature-engine/pkg/config"
	"github.com/courtdata/feature-engine/pkg/database"
	"github.com/courtdata/feature-engine/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger("", cfg.IsDevelopment())
	logger.WithComponent("main").WithFields(logrus.Fields{
		"environment": cfg.Env,
		"seasons":     cfg.PreloadSeasons,
	}).Info("Starting feature engine")

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db.DB); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	eventStore := store.NewGormStore(db.DB, store.GormStoreConfig{
		RateLimit:        cfg.StoreRateLimit,
		RateBurst:        cfg.StoreRateBurst,
		BreakerThreshold: cfg.CircuitBreakerThreshold,
		BreakerTimeout:   30 * time.Second,
	})

	featureCache, err := cache.NewFeatureVectorCache(cache.CacheConfig{
		RedisURL:   cfg.RedisURL,
		DefaultTTL: time.Duration(cfg.FeatureCacheTTL) * time.Second,
		KeyPrefix:  cfg.FeatureCachePrefix,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer featureCache.Close()

	ctx := context.Background()

	buildScope := func(ctx context.Context, season string) (*engine.PreloadContext, error) {
		opts := engine.PreloadOptions{
			Season:                season,
			RotationMinMPG:        cfg.RotationMinMPG,
			NormalizedCap:         cfg.NormalizedSignalCap,
			FallbackWarnThreshold: cfg.FallbackWarnThreshold,
			EloConfig: engine.EloConfig{
				KFactor:       cfg.EloKFactor,
				HomeAdvantage: cfg.EloHomeAdvantage,
				BaseRating:    cfg.EloBaseRating,
			},
		}
		if cfg.IncludePriorSeason {
			opts.PriorSeason = priorSeason(season)
		}
		return engine.NewPreloadContext(ctx, eventStore, opts)
	}

	engineCfg := engine.EngineConfig{
		Injury: engine.InjuryConfig{
			DecayDays:      cfg.RecencyDecayDays,
			RotationMinMPG: cfg.RotationMinMPG,
			NormalizedCap:  cfg.NormalizedSignalCap,
		},
		Form: engine.FormConfig{
			Windows:      []int{5, 10},
			ExcludeTypes: cfg.ExcludedGameTypes,
		},
	}

	contexts := refresh.NewContextCache()
	for _, season := range cfg.PreloadSeasons {
		pctx, err := buildScope(ctx, season)
		if err != nil {
			log.Fatalf("Failed to build preload scope for %s: %v", season, err)
		}
		contexts.Put(season, pctx)

		if err := eventStore.SaveEloHistory(ctx, pctx.Elo.HistoryRows()); err != nil {
			logger.WithSeason(season).WithError(err).Warn("Failed to persist Elo history")
		}

		provider, err := engine.NewStorePERProvider(ctx, eventStore, pctx.Seasons)
		if err != nil {
			log.Fatalf("Failed to load efficiency rows for %s: %v", season, err)
		}
		eng := engine.NewEngine(engineCfg, pctx, provider, eventStore)

		// Warm batch: compute and cache vectors for the target season's
		// games so live queries start hot.
		var seasonGames []models.GameEvent
		for _, g := range pctx.Games {
			if g.Season == season {
				seasonGames = append(seasonGames, g)
			}
		}
		driver := batch.NewDriver(batch.Config{ChunkSize: cfg.BatchChunkSize, Workers: cfg.BatchWorkers}, eng)
		result := driver.Run(ctx, seasonGames)
		if err := featureCache.StoreBatch(ctx, result.Vectors); err != nil {
			logger.WithSeason(season).WithError(err).Warn("Failed to cache warm-batch vectors")
		}
		logger.WithSeason(season).WithFields(logrus.Fields{
			"batch_run_id": result.RunID,
			"computed":     len(result.Vectors),
			"skipped":      result.Skipped,
			"duration":     result.Duration,
		}).Info("Season warm batch completed")
	}

	refresher := refresh.NewRefresher(contexts, buildScope, cfg.PreloadSeasons)
	if err := refresher.Start(cfg.RefreshCronSpec); err != nil {
		log.Fatalf("Failed to start preload refresher: %v", err)
	}
	defer refresher.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.WithComponent("main").Info("Shutting down feature engine")
}

// priorSeason derives the immediately preceding season from a
// "2023-24"-style season string, empty when the format is unexpected.
func priorSeason(season string) string {
	if len(season) != 7 || season[4] != '-' {
		return ""
	}
	startYear, err := strconv.Atoi(season[:4])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", startYear-1, startYear%100)
}
