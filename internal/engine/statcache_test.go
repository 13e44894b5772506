package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/internal/store"
)

func record(player, team string, d time.Time, minutes float64) models.PlayerGameRecord {
	return models.PlayerGameRecord{
		PlayerID:   player,
		PlayerName: player,
		GameID:     "game-" + d.Format("0102"),
		Date:       d,
		Season:     "2023-24",
		Team:       team,
		Minutes:    minutes,
	}
}

func newTestStatCache(records []models.PlayerGameRecord) *StatCache {
	source := NewIndexedRecordSource(records, nil, 5)
	return NewStatCache(source, 10)
}

func TestPlayerSeasonStats_StrictlyBeforeCutoff(t *testing.T) {
	records := []models.PlayerGameRecord{
		record("tatum", "BOS", day(1), 30),
		record("tatum", "BOS", day(3), 36),
		record("tatum", "BOS", day(5), 42), // dated exactly on the cutoff
	}
	cache := newTestStatCache(records)

	stats, err := cache.PlayerSeasonStats(context.Background(), "BOS", "2023-24", day(5), []string{"tatum"})
	require.NoError(t, err)

	st := stats["tatum"]
	assert.Equal(t, 2, st.GamesPlayed)
	assert.InDelta(t, 33.0, st.MPG, 1e-9)
	assert.True(t, st.LastPlayedDate.Equal(day(3)))

	// A record dated exactly on the query date must never change the
	// result: recompute with the cutoff one day later and confirm the
	// day-5 row only then enters.
	later, err := cache.PlayerSeasonStats(context.Background(), "BOS", "2023-24", day(6), []string{"tatum"})
	require.NoError(t, err)
	assert.Equal(t, 3, later["tatum"].GamesPlayed)
}

func TestPlayerSeasonStats_AbsentPlayerHasNoHistory(t *testing.T) {
	cache := newTestStatCache([]models.PlayerGameRecord{
		record("tatum", "BOS", day(1), 30),
	})

	stats, err := cache.PlayerSeasonStats(context.Background(), "BOS", "2023-24", day(5), []string{"tatum", "ghost"})
	require.NoError(t, err)

	assert.Equal(t, 0, stats["ghost"].GamesPlayed)
	assert.Zero(t, stats["ghost"].MPG)
	assert.Equal(t, "ghost", stats["ghost"].PlayerID)
}

func TestDerivedCaches(t *testing.T) {
	records := []models.PlayerGameRecord{
		record("tatum", "BOS", day(1), 36),
		record("tatum", "BOS", day(3), 36),
		record("brown", "BOS", day(1), 30),
		record("brown", "BOS", day(3), 30),
		record("bench", "BOS", day(1), 6),
		record("bench", "BOS", day(3), 6),
	}
	cache := newTestStatCache(records)
	ctx := context.Background()

	maxMPG, err := cache.MaxMPGOnTeam(ctx, "BOS", "2023-24", day(5))
	require.NoError(t, err)
	assert.InDelta(t, 36.0, maxMPG, 1e-9)

	// bench averages 6 MPG, below the rotation threshold.
	rot, err := cache.TeamRotationMPG(ctx, "BOS", "2023-24", day(5))
	require.NoError(t, err)
	assert.InDelta(t, 66.0, rot, 1e-9)
}

func TestPlayerLastTeam_SeesAcrossTeams(t *testing.T) {
	records := []models.PlayerGameRecord{
		record("vet", "BOS", day(1), 28),
		{PlayerID: "vet", PlayerName: "vet", GameID: "g-nyk", Date: day(4), Season: "2023-24", Team: "NYK", Minutes: 25},
	}
	cache := newTestStatCache(records)
	ctx := context.Background()

	// The team-scoped aggregate only sees BOS rows, but the season-wide
	// view knows the player moved on.
	bosStats, err := cache.PlayerSeasonStats(ctx, "BOS", "2023-24", day(6), []string{"vet"})
	require.NoError(t, err)
	assert.Equal(t, "BOS", bosStats["vet"].LastTeam)

	lastTeam, ok := cache.PlayerLastTeam(ctx, "vet", "2023-24", day(6))
	require.True(t, ok)
	assert.Equal(t, "NYK", lastTeam)

	// Before the trade the season-wide view still points at BOS.
	lastTeam, ok = cache.PlayerLastTeam(ctx, "vet", "2023-24", day(3))
	require.True(t, ok)
	assert.Equal(t, "BOS", lastTeam)

	_, ok = cache.PlayerLastTeam(ctx, "nobody", "2023-24", day(6))
	assert.False(t, ok)
}

func TestWarmThenSealLifecycle(t *testing.T) {
	records := []models.PlayerGameRecord{
		record("tatum", "BOS", day(1), 30),
	}
	cache := newTestStatCache(records)
	ctx := context.Background()

	require.NoError(t, cache.Warm(ctx, "BOS", "2023-24", day(5)))
	cache.Seal()

	assert.True(t, cache.Sealed())
	assert.Error(t, cache.Warm(ctx, "BOS", "2023-24", day(7)))

	// Warmed key reads from the memo with no sealed-miss.
	_, err := cache.PlayerSeasonStats(ctx, "BOS", "2023-24", day(5), []string{"tatum"})
	require.NoError(t, err)
	assert.Zero(t, cache.SealedMissCount())

	// Unwarmed key still resolves, counted as a sealed miss.
	stats, err := cache.PlayerSeasonStats(ctx, "BOS", "2023-24", day(7), []string{"tatum"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats["tatum"].GamesPlayed)
	assert.Equal(t, int64(1), cache.SealedMissCount())
}

func TestIdenticalQueriesAreBitIdentical(t *testing.T) {
	records := []models.PlayerGameRecord{
		record("tatum", "BOS", day(1), 31.7),
		record("tatum", "BOS", day(3), 34.9),
	}
	cache := newTestStatCache(records)
	ctx := context.Background()

	first, err := cache.PlayerSeasonStats(ctx, "BOS", "2023-24", day(5), []string{"tatum"})
	require.NoError(t, err)
	second, err := cache.PlayerSeasonStats(ctx, "BOS", "2023-24", day(5), []string{"tatum"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIndexedSourceFallback(t *testing.T) {
	backing := store.NewMemoryStore()
	backing.Records = []models.PlayerGameRecord{
		record("randle", "NYK", day(2), 34),
	}

	// Preloaded scope only holds BOS rows; NYK lookups fall through.
	source := NewIndexedRecordSource([]models.PlayerGameRecord{
		record("tatum", "BOS", day(1), 30),
	}, &LiveRecordSource{Store: backing}, 2)

	rows, err := source.RecordsBefore(context.Background(), "NYK", "2023-24", day(5))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "randle", rows[0].PlayerID)
	assert.Equal(t, int64(1), source.FallbackCount())

	_, err = source.RecordsBefore(context.Background(), "NYK", "2023-24", day(6))
	require.NoError(t, err)
	assert.Equal(t, int64(2), source.FallbackCount())
}
