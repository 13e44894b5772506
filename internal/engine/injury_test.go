package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/internal/store"
)

// stubPERProvider serves the efficiency contract from a fixed table.
type stubPERProvider struct {
	per       map[string]float64
	teamOf    map[string]string
	panicking bool
}

func (s *stubPERProvider) PlayerPERBeforeDate(ctx context.Context, playerID, team, season string, date time.Time) (float64, bool) {
	if s.panicking {
		panic("aggregator unavailable")
	}
	per, ok := s.per[playerID]
	return per, ok && per > 0
}

func (s *stubPERProvider) TeamPERFeatures(ctx context.Context, team, season string, date time.Time) (TeamPER, error) {
	if s.panicking {
		panic("aggregator unavailable")
	}
	var out TeamPER
	var players []PlayerPER
	for id, per := range s.per {
		if s.teamOf[id] != team || per <= 0 {
			continue
		}
		players = append(players, PlayerPER{PlayerID: id, PlayerName: id, PER: per})
	}
	// Insertion order of a map is random; pick top values directly.
	for _, p := range players {
		if p.PER > out.Top1 {
			out.Top1 = p.PER
		}
	}
	top3 := []float64{}
	for _, p := range players {
		top3 = append(top3, p.PER)
	}
	for i := 0; i < len(top3); i++ {
		for j := i + 1; j < len(top3); j++ {
			if top3[j] > top3[i] {
				top3[i], top3[j] = top3[j], top3[i]
			}
		}
	}
	for i, v := range top3 {
		if i >= 3 {
			break
		}
		out.Top3Sum += v
	}
	out.Players = players
	return out, nil
}

// fixture: five BOS games on days 1,3,5,7,9; tatum 30 MPG, brown 20 MPG,
// bench 5 MPG. Queries run as of day 14 so tatum is 5 days idle.
func injuryFixture() (*InjuryCalculator, *store.MemoryStore) {
	var records []models.PlayerGameRecord
	for _, d := range []int{1, 3, 5, 7, 9} {
		records = append(records,
			record("tatum", "BOS", day(d), 30),
			record("brown", "BOS", day(d), 20),
			record("bench", "BOS", day(d), 5),
		)
	}

	backing := store.NewMemoryStore()
	backing.Records = records

	source := NewIndexedRecordSource(records, &LiveRecordSource{Store: backing}, 5)
	cache := NewStatCache(source, 10)

	provider := &stubPERProvider{
		per:    map[string]float64{"tatum": 25, "brown": 15, "bench": 8},
		teamOf: map[string]string{"tatum": "BOS", "brown": "BOS", "bench": "BOS"},
	}

	calc := NewInjuryCalculator(DefaultInjuryConfig(), cache, provider, backing)
	return calc, backing
}

func matchupReq(homeInjured, awayInjured []string) MatchupRequest {
	return MatchupRequest{
		HomeTeam:    "BOS",
		AwayTeam:    "NYK",
		Season:      "2023-24",
		Date:        day(14),
		HomeInjured: homeInjured,
		AwayInjured: awayInjured,
	}
}

func TestComputeMatchup_StarInjured(t *testing.T) {
	calc, _ := injuryFixture()

	fs := calc.ComputeMatchup(context.Background(), matchupReq([]string{"tatum"}, []string{}))

	// Recency weight for a player 5 days idle with a 15-day window.
	weight := math.Exp(-5.0 / 15.0)
	assert.InDelta(t, 25*weight, fs.Features["inj_weighted_per_lost|none|raw|home"], 1e-6)

	assert.InDelta(t, 25, fs.Features["inj_top1_per|none|raw|home"], 1e-9)
	assert.InDelta(t, 25, fs.Features["inj_top3_sum_per|none|raw|home"], 1e-9)
	assert.InDelta(t, 30, fs.Features["inj_minutes_lost|none|raw|home"], 1e-9)

	// Rotation is tatum 30 + brown 20; bench stays below the threshold.
	assert.InDelta(t, 0.6, fs.Features["inj_severity|none|raw|home"], 1e-6)
	assert.InDelta(t, 1, fs.Features["inj_rotation_count|none|raw|home"], 1e-9)

	assert.InDelta(t, 1.0, fs.Features["inj_top1_ratio|none|norm|home"], 1e-9)
	assert.InDelta(t, 25.0/48.0, fs.Features["inj_top3_ratio|none|norm|home"], 1e-6)

	// Star score: tatum 750, brown 300, bench 40.
	assert.InDelta(t, 1, fs.Features["inj_star_out|none|raw|home"], 1e-9)
	assert.InDelta(t, 750.0/1090.0, fs.Features["inj_star_mass_out|none|norm|home"], 1e-6)

	blend := 0.45*0.6 + 0.35*25 + 0.20*1
	assert.InDelta(t, blend, fs.Features["inj_blend|none|raw|home"], 1e-6)

	// Healthy away side zeroes every scalar, so diff equals home.
	assert.Zero(t, fs.Features["inj_severity|none|raw|away"])
	assert.InDelta(t, 0.6, fs.Features["inj_severity|none|raw|diff"], 1e-6)
}

func TestComputeMatchup_AuditList(t *testing.T) {
	calc, _ := injuryFixture()

	fs := calc.ComputeMatchup(context.Background(), matchupReq([]string{"tatum", "brown"}, []string{}))

	audit := fs.Audit["inj_weighted_per_lost|none|raw|home"]
	require.Len(t, audit, 2)
	byID := map[string]ContributingPlayer{}
	for _, cp := range audit {
		byID[cp.PlayerID] = cp
	}
	assert.InDelta(t, 25, byID["tatum"].PER, 1e-9)
	assert.InDelta(t, 30, byID["tatum"].MPG, 1e-9)
	assert.Greater(t, byID["tatum"].Contribution, byID["brown"].Contribution)
}

func TestComputeMatchup_Idempotent(t *testing.T) {
	calc, _ := injuryFixture()
	ctx := context.Background()
	req := matchupReq([]string{"tatum", "brown"}, []string{})

	first := calc.ComputeMatchup(ctx, req)
	second := calc.ComputeMatchup(ctx, req)

	assert.Equal(t, first.Features, second.Features)
	assert.Equal(t, first.Audit, second.Audit)
}

func TestComputeMatchup_SignalsStayInRange(t *testing.T) {
	calc, _ := injuryFixture()

	// Every rotation player out at once.
	fs := calc.ComputeMatchup(context.Background(), matchupReq([]string{"tatum", "brown", "bench"}, []string{}))

	for _, name := range []string{
		"inj_severity|none|raw|home",
		"inj_top1_ratio|none|norm|home",
		"inj_top3_ratio|none|norm|home",
		"inj_star_mass_out|none|norm|home",
	} {
		v := fs.Features[name]
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.5, name)
	}
}

func TestComputeMatchup_TradedPlayerExcluded(t *testing.T) {
	calc, backing := injuryFixture()

	// vet played for BOS early, then moved to NYK.
	backing.Records = append(backing.Records,
		record("vet", "BOS", day(1), 24),
		record("vet", "BOS", day(3), 24),
		models.PlayerGameRecord{PlayerID: "vet", PlayerName: "vet", GameID: "g-nyk", Date: day(11), Season: "2023-24", Team: "NYK", Minutes: 22},
	)
	// Rebuild the calculator so the preloaded source sees vet's rows.
	source := NewIndexedRecordSource(backing.Records, &LiveRecordSource{Store: backing}, 5)
	cache := NewStatCache(source, 10)
	provider := &stubPERProvider{
		per:    map[string]float64{"tatum": 25, "brown": 15, "bench": 8, "vet": 18},
		teamOf: map[string]string{"tatum": "BOS", "brown": "BOS", "bench": "BOS", "vet": "NYK"},
	}
	calc = NewInjuryCalculator(DefaultInjuryConfig(), cache, provider, backing)

	fs := calc.ComputeMatchup(context.Background(), matchupReq([]string{"vet"}, []string{}))

	// vet's most recent game was for NYK, so his injury no longer counts
	// against BOS.
	assert.Zero(t, fs.Features["inj_weighted_per_lost|none|raw|home"])
	assert.Zero(t, fs.Features["inj_severity|none|raw|home"])
	assert.Zero(t, fs.Features["inj_rotation_count|none|raw|home"])
}

func TestComputeMatchup_MissingDataDefaultsToZero(t *testing.T) {
	calc, _ := injuryFixture()

	// Unknown player, no history at all.
	fs := calc.ComputeMatchup(context.Background(), matchupReq([]string{"ghost"}, []string{}))
	for name, v := range fs.Features {
		assert.Zero(t, v, name)
	}

	// Empty injured lists mean fully healthy.
	fs = calc.ComputeMatchup(context.Background(), matchupReq([]string{}, []string{}))
	assert.Zero(t, fs.Features["inj_severity|none|raw|diff"])
}

func TestComputeMatchup_PanickingAggregatorDegrades(t *testing.T) {
	calc, _ := injuryFixture()

	calcPanic := NewInjuryCalculator(DefaultInjuryConfig(), calc.stats, &stubPERProvider{panicking: true}, calc.store)

	var fs *FeatureSet
	require.NotPanics(t, func() {
		fs = calcPanic.ComputeMatchup(context.Background(), matchupReq([]string{"tatum"}, []string{}))
	})

	// PER-based signals degrade to zero; minutes-based signals survive.
	assert.Zero(t, fs.Features["inj_weighted_per_lost|none|raw|home"])
	assert.Zero(t, fs.Features["inj_top1_per|none|raw|home"])
	assert.InDelta(t, 0.6, fs.Features["inj_severity|none|raw|home"], 1e-6)
}

func TestResolveInjured_FromGameDocument(t *testing.T) {
	calc, backing := injuryFixture()

	game := models.GameEvent{
		ID: "g-doc", Date: day(14), Season: "2023-24",
		HomeTeam: "BOS", AwayTeam: "NYK",
	}
	require.NoError(t, game.SetInjured([]string{"tatum"}, []string{}))
	backing.Games = append(backing.Games, game)

	req := MatchupRequest{HomeTeam: "BOS", AwayTeam: "NYK", Season: "2023-24", Date: day(14)}
	fs := calc.ComputeMatchup(context.Background(), req)

	assert.InDelta(t, 0.6, fs.Features["inj_severity|none|raw|home"], 1e-6)
}

func TestResolveInjured_RosterFallback(t *testing.T) {
	calc, backing := injuryFixture()

	backing.Rosters = []models.RosterEntry{
		{Team: "BOS", Season: "2023-24", PlayerID: "tatum", Injured: true},
		{Team: "BOS", Season: "2023-24", PlayerID: "brown", Injured: false},
		{Team: "BOS", Season: "2023-24", PlayerID: "cut", Injured: true, Disabled: true},
	}

	// No game document on file, both lists unknown.
	req := MatchupRequest{HomeTeam: "BOS", AwayTeam: "NYK", Season: "2023-24", Date: day(14)}
	fs := calc.ComputeMatchup(context.Background(), req)

	// Only tatum counts: brown is healthy, cut is disabled.
	assert.InDelta(t, 1, fs.Features["inj_rotation_count|none|raw|home"], 1e-9)
	assert.InDelta(t, 0.6, fs.Features["inj_severity|none|raw|home"], 1e-6)
}
