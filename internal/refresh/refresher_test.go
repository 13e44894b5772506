package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtdata/feature-engine/internal/engine"
	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/internal/store"
)

func buildScope(t *testing.T, season string) *engine.PreloadContext {
	t.Helper()
	st := store.NewMemoryStore()
	st.Games = []models.GameEvent{{
		ID: "g1", Date: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Season: season, HomeTeam: "BOS", AwayTeam: "NYK",
		GameType: models.GameTypeRegular,
	}}
	pctx, err := engine.NewPreloadContext(context.Background(), st, engine.PreloadOptions{
		Season:         season,
		RotationMinMPG: 10,
		NormalizedCap:  1.5,
		EloConfig:      engine.DefaultEloConfig(),
	})
	require.NoError(t, err)
	return pctx
}

func TestContextCache(t *testing.T) {
	cache := NewContextCache()
	assert.Nil(t, cache.Get("2023-24"))

	pctx := buildScope(t, "2023-24")
	cache.Put("2023-24", pctx)
	assert.Same(t, pctx, cache.Get("2023-24"))

	cache.Clear()
	assert.Nil(t, cache.Get("2023-24"))
}

func TestRefreshAll_SwapsScopes(t *testing.T) {
	cache := NewContextCache()
	stale := buildScope(t, "2023-24")
	cache.Put("2023-24", stale)

	builds := 0
	builder := func(ctx context.Context, season string) (*engine.PreloadContext, error) {
		builds++
		return buildScope(t, season), nil
	}

	r := NewRefresher(cache, builder, []string{"2023-24", "2024-25"})
	r.RefreshAll()

	assert.Equal(t, 2, builds)
	assert.NotSame(t, stale, cache.Get("2023-24"))
	assert.NotNil(t, cache.Get("2024-25"))
}

func TestRefreshAll_FailureKeepsPreviousScope(t *testing.T) {
	cache := NewContextCache()
	previous := buildScope(t, "2023-24")
	cache.Put("2023-24", previous)

	builder := func(ctx context.Context, season string) (*engine.PreloadContext, error) {
		return nil, errors.New("ingest backlog")
	}

	NewRefresher(cache, builder, []string{"2023-24"}).RefreshAll()

	assert.Same(t, previous, cache.Get("2023-24"))
}

func TestRefresher_RejectsBadCronSpec(t *testing.T) {
	r := NewRefresher(NewContextCache(), func(ctx context.Context, season string) (*engine.PreloadContext, error) {
		return nil, nil
	}, nil)

	assert.Error(t, r.Start("not a cron spec"))
}
