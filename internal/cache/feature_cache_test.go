package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildKey(t *testing.T) {
	c := &FeatureVectorCache{keyPrefix: "fe:"}

	date := time.Date(2024, time.January, 15, 19, 30, 0, 0, time.UTC)
	key := c.buildKey("BOS", "NYK", "2023-24", date)
	assert.Equal(t, "fe:matchup:NYK@BOS:season:2023-24:2024-01-15", key)

	// Time of day never changes the key.
	later := time.Date(2024, time.January, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, key, c.buildKey("BOS", "NYK", "2023-24", later))
}

func TestNewFeatureVectorCache_BadURL(t *testing.T) {
	_, err := NewFeatureVectorCache(CacheConfig{RedisURL: "not-a-url"})
	assert.Error(t, err)
}
