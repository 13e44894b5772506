// Package cache provides the Redis-backed store for computed feature
// vectors, the one component mutated after fan-out begins; the redis
// client serializes concurrent access.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/engine"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// FeatureVectorCache caches computed per-matchup vectors so repeated
// queries for the same (home, away, season, date) skip recomputation.
type FeatureVectorCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	keyPrefix  string
	logger     *logrus.Entry
}

// CacheConfig contains configuration for the feature vector cache.
type CacheConfig struct {
	RedisURL   string
	Database   int
	DefaultTTL time.Duration
	KeyPrefix  string
}

// NewFeatureVectorCache connects and pings the Redis instance.
func NewFeatureVectorCache(cfg CacheConfig) (*FeatureVectorCache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.DB = cfg.Database

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache := &FeatureVectorCache{
		client:     client,
		defaultTTL: cfg.DefaultTTL,
		keyPrefix:  cfg.KeyPrefix,
		logger:     logger.WithComponent("feature_cache"),
	}
	cache.logger.WithFields(logrus.Fields{
		"default_ttl": cfg.DefaultTTL,
		"key_prefix":  cfg.KeyPrefix,
	}).Info("Feature vector cache initialized")
	return cache, nil
}

// Get returns the cached vector for a matchup, nil on a miss.
func (c *FeatureVectorCache) Get(ctx context.Context, home, away, season string, date time.Time) (*engine.FeatureSet, error) {
	key := c.buildKey(home, away, season, date)
	result, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		c.logger.WithError(err).WithField("key", key).Error("Failed to get feature vector from cache")
		return nil, err
	}

	var fs engine.FeatureSet
	if err := json.Unmarshal([]byte(result), &fs); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to unmarshal feature vector")
		return nil, err
	}
	return &fs, nil
}

// Set caches a computed vector under its matchup key.
func (c *FeatureVectorCache) Set(ctx context.Context, fs *engine.FeatureSet) error {
	if fs == nil {
		return fmt.Errorf("feature set cannot be nil")
	}
	key := c.buildKey(fs.HomeTeam, fs.AwayTeam, fs.Season, fs.Date)
	data, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("failed to marshal feature vector: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.defaultTTL).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to set feature vector in cache")
		return err
	}
	return nil
}

// StoreBatch pipelines a whole batch result into the cache.
func (c *FeatureVectorCache) StoreBatch(ctx context.Context, vectors []*engine.FeatureSet) error {
	if len(vectors) == 0 {
		return nil
	}
	warmID := uuid.New().String()
	start := time.Now()

	pipe := c.client.Pipeline()
	stored := 0
	for _, fs := range vectors {
		if fs == nil {
			continue
		}
		data, err := json.Marshal(fs)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to marshal feature vector in batch store")
			continue
		}
		pipe.Set(ctx, c.buildKey(fs.HomeTeam, fs.AwayTeam, fs.Season, fs.Date), data, c.defaultTTL)
		stored++
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to execute batch feature cache store")
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"warm_id":       warmID,
		"stored":        stored,
		"response_time": time.Since(start),
	}).Info("Batch feature vectors cached")
	return nil
}

// InvalidateSeason removes every cached vector for a season.
func (c *FeatureVectorCache) InvalidateSeason(ctx context.Context, season string) error {
	pattern := fmt.Sprintf("%smatchup:*:season:%s:*", c.keyPrefix, season)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"season":  season,
		"deleted": deleted,
	}).Info("Season feature vectors invalidated")
	return nil
}

// Close closes the Redis connection.
func (c *FeatureVectorCache) Close() error {
	return c.client.Close()
}

func (c *FeatureVectorCache) buildKey(home, away, season string, date time.Time) string {
	return fmt.Sprintf("%smatchup:%s@%s:season:%s:%s",
		c.keyPrefix, away, home, season, date.UTC().Format("2006-01-02"))
}
