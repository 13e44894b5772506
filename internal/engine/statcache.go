package engine

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/internal/store"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// PlayerStats is a player's season-to-date aggregate as of a cutoff date.
// Aggregated exclusively from rows dated strictly before the cutoff.
type PlayerStats struct {
	PlayerID       string
	PlayerName     string
	MPG            float64
	GamesPlayed    int
	LastPlayedDate time.Time
	LastTeam       string
}

// StatKey is the exact cache key for point-in-time aggregates. No
// nearest-date reuse: correctness depends on the exact cutoff.
type StatKey struct {
	Team   string
	Season string
	Date   time.Time
}

// NewStatKey normalizes the cutoff to a UTC calendar date.
func NewStatKey(team, season string, date time.Time) StatKey {
	return StatKey{Team: team, Season: season, Date: models.NormalizeDate(date)}
}

// RecordSource supplies a team-season's box-score rows before a cutoff.
// Two implementations exist: an indexed in-memory source for preloaded
// scopes and a passthrough live-query source.
type RecordSource interface {
	RecordsBefore(ctx context.Context, team, season string, before time.Time) ([]models.PlayerGameRecord, error)

	// LastGameBefore returns the player's most recent row in the season
	// across all teams, nil when the player has no history. Distinguishes
	// a rostered player from one traded away before the query date.
	LastGameBefore(ctx context.Context, playerID, season string, before time.Time) (*models.PlayerGameRecord, error)
}

// LiveRecordSource queries the backing store per call.
type LiveRecordSource struct {
	Store store.EventStore
}

func (s *LiveRecordSource) RecordsBefore(ctx context.Context, team, season string, before time.Time) ([]models.PlayerGameRecord, error) {
	return s.Store.PlayerRecordsBefore(ctx, team, season, before)
}

func (s *LiveRecordSource) LastGameBefore(ctx context.Context, playerID, season string, before time.Time) (*models.PlayerGameRecord, error) {
	return s.Store.PlayerLastGameBefore(ctx, playerID, season, before)
}

// IndexedRecordSource serves from per-(team, season) date-sorted record
// lists loaded during preload. A miss falls through to the optional
// fallback source; frequent fallback during a supposedly-preloaded run
// indicates scope misconfiguration and is logged once past a threshold.
type IndexedRecordSource struct {
	records       map[teamSeasonKey][]models.PlayerGameRecord
	playerRows    map[playerSeasonKey][]models.PlayerGameRecord
	fallback      RecordSource
	fallbackCount int64
	warnThreshold int64
	log           *logrus.Entry
}

type playerSeasonKey struct {
	PlayerID string
	Season   string
}

// NewIndexedRecordSource groups and date-sorts the given rows, both per
// (team, season) and per (player, season). fallback may be nil, in which
// case out-of-scope lookups return no history.
func NewIndexedRecordSource(records []models.PlayerGameRecord, fallback RecordSource, warnThreshold int) *IndexedRecordSource {
	grouped := make(map[teamSeasonKey][]models.PlayerGameRecord)
	byPlayer := make(map[playerSeasonKey][]models.PlayerGameRecord)
	for _, r := range records {
		key := teamSeasonKey{Team: r.Team, Season: r.Season}
		grouped[key] = append(grouped[key], r)
		pkey := playerSeasonKey{PlayerID: r.PlayerID, Season: r.Season}
		byPlayer[pkey] = append(byPlayer[pkey], r)
	}
	for key := range grouped {
		rows := grouped[key]
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Date.Before(rows[j].Date)
		})
		grouped[key] = rows
	}
	for key := range byPlayer {
		rows := byPlayer[key]
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Date.Before(rows[j].Date)
		})
		byPlayer[key] = rows
	}
	if warnThreshold <= 0 {
		warnThreshold = 5
	}
	return &IndexedRecordSource{
		records:       grouped,
		playerRows:    byPlayer,
		fallback:      fallback,
		warnThreshold: int64(warnThreshold),
		log:           logger.WithComponent("record_source"),
	}
}

func (s *IndexedRecordSource) RecordsBefore(ctx context.Context, team, season string, before time.Time) ([]models.PlayerGameRecord, error) {
	rows, ok := s.records[teamSeasonKey{Team: team, Season: season}]
	if ok {
		cut := sort.Search(len(rows), func(i int) bool {
			return !rows[i].Date.Before(before)
		})
		return rows[:cut], nil
	}

	count := atomic.AddInt64(&s.fallbackCount, 1)
	if count == s.warnThreshold {
		s.log.WithFields(logrus.Fields{
			"team":      team,
			"season":    season,
			"fallbacks": count,
		}).Warn("Repeated live-store fallback during preloaded run, check preload scope")
	}
	if s.fallback == nil {
		return nil, nil
	}
	return s.fallback.RecordsBefore(ctx, team, season, before)
}

func (s *IndexedRecordSource) LastGameBefore(ctx context.Context, playerID, season string, before time.Time) (*models.PlayerGameRecord, error) {
	rows, ok := s.playerRows[playerSeasonKey{PlayerID: playerID, Season: season}]
	if ok {
		cut := sort.Search(len(rows), func(i int) bool {
			return !rows[i].Date.Before(before)
		})
		if cut == 0 {
			return nil, nil
		}
		return &rows[cut-1], nil
	}
	if s.fallback == nil {
		return nil, nil
	}
	atomic.AddInt64(&s.fallbackCount, 1)
	return s.fallback.LastGameBefore(ctx, playerID, season, before)
}

// FallbackCount reports how many lookups missed the preloaded scope.
func (s *IndexedRecordSource) FallbackCount() int64 {
	return atomic.LoadInt64(&s.fallbackCount)
}

// StatCache memoizes point-in-time per-player aggregates plus the derived
// max-MPG and rotation-MPG values for each exact (team, season, cutoff)
// triple. Population happens in the single-threaded preload phase; Seal
// flips the cache read-only so concurrent readers need no locking. Sealed
// misses are computed on the fly without being stored.
type StatCache struct {
	source      RecordSource
	rotationMPG float64

	stats      map[StatKey]map[string]PlayerStats
	maxMPG     map[StatKey]float64
	teamRot    map[StatKey]float64
	sealed     atomic.Bool
	sealedMiss int64
}

// NewStatCache builds an empty cache over the given record source.
// rotationMinMPG is the rotation-player threshold for the derived
// team-rotation-MPG cache.
func NewStatCache(source RecordSource, rotationMinMPG float64) *StatCache {
	if rotationMinMPG <= 0 {
		rotationMinMPG = 10
	}
	return &StatCache{
		source:      source,
		rotationMPG: rotationMinMPG,
		stats:       make(map[StatKey]map[string]PlayerStats),
		maxMPG:      make(map[StatKey]float64),
		teamRot:     make(map[StatKey]float64),
	}
}

// Seal marks the preload phase complete. After Seal the memo maps are
// never mutated; misses compute directly from the record source.
func (c *StatCache) Seal() {
	c.sealed.Store(true)
}

// Sealed reports whether fan-out has begun.
func (c *StatCache) Sealed() bool {
	return c.sealed.Load()
}

// SealedMissCount reports computations performed after sealing, which
// should stay near zero in a correctly warmed batch run.
func (c *StatCache) SealedMissCount() int64 {
	return atomic.LoadInt64(&c.sealedMiss)
}

// Warm populates the memo maps for one (team, season, cutoff) triple.
// Must be called before Seal.
func (c *StatCache) Warm(ctx context.Context, team, season string, before time.Time) error {
	if c.sealed.Load() {
		return errCacheSealed
	}
	key := NewStatKey(team, season, before)
	if _, ok := c.stats[key]; ok {
		return nil
	}
	all, maxMPG, rot, err := c.compute(ctx, team, season, key.Date)
	if err != nil {
		return err
	}
	c.stats[key] = all
	c.maxMPG[key] = maxMPG
	c.teamRot[key] = rot
	return nil
}

// PlayerSeasonStats returns aggregates for the requested players as of the
// cutoff. A requested player absent from the underlying rows is returned
// as a zero-history entry.
func (c *StatCache) PlayerSeasonStats(ctx context.Context, team, season string, before time.Time, playerIDs []string) (map[string]PlayerStats, error) {
	all, _, _, err := c.lookup(ctx, team, season, before)
	if err != nil {
		return nil, err
	}
	out := make(map[string]PlayerStats, len(playerIDs))
	for _, id := range playerIDs {
		if st, ok := all[id]; ok {
			out[id] = st
		} else {
			out[id] = PlayerStats{PlayerID: id}
		}
	}
	return out, nil
}

// TeamStats returns the full aggregate map for a team as of the cutoff.
func (c *StatCache) TeamStats(ctx context.Context, team, season string, before time.Time) (map[string]PlayerStats, error) {
	all, _, _, err := c.lookup(ctx, team, season, before)
	return all, err
}

// MaxMPGOnTeam returns the highest season-to-date MPG on the team as of
// the cutoff, zero when the team has no history.
func (c *StatCache) MaxMPGOnTeam(ctx context.Context, team, season string, before time.Time) (float64, error) {
	_, maxMPG, _, err := c.lookup(ctx, team, season, before)
	return maxMPG, err
}

// TeamRotationMPG returns the summed MPG of the team's rotation players
// (MPG at or above the rotation threshold) as of the cutoff.
func (c *StatCache) TeamRotationMPG(ctx context.Context, team, season string, before time.Time) (float64, error) {
	_, _, rot, err := c.lookup(ctx, team, season, before)
	return rot, err
}

// PlayerLastTeam returns the team a player most recently appeared for in
// the season, across all teams, as of the cutoff. false when the player
// has no history at all.
func (c *StatCache) PlayerLastTeam(ctx context.Context, playerID, season string, before time.Time) (string, bool) {
	rec, err := c.source.LastGameBefore(ctx, playerID, season, models.NormalizeDate(before))
	if err != nil || rec == nil {
		return "", false
	}
	return rec.Team, true
}

func (c *StatCache) lookup(ctx context.Context, team, season string, before time.Time) (map[string]PlayerStats, float64, float64, error) {
	key := NewStatKey(team, season, before)
	if all, ok := c.stats[key]; ok {
		return all, c.maxMPG[key], c.teamRot[key], nil
	}
	if c.sealed.Load() {
		atomic.AddInt64(&c.sealedMiss, 1)
		return c.compute(ctx, team, season, key.Date)
	}
	all, maxMPG, rot, err := c.compute(ctx, team, season, key.Date)
	if err != nil {
		return nil, 0, 0, err
	}
	c.stats[key] = all
	c.maxMPG[key] = maxMPG
	c.teamRot[key] = rot
	return all, maxMPG, rot, nil
}

func (c *StatCache) compute(ctx context.Context, team, season string, before time.Time) (map[string]PlayerStats, float64, float64, error) {
	rows, err := c.source.RecordsBefore(ctx, team, season, before)
	if err != nil {
		return nil, 0, 0, err
	}

	type accum struct {
		minutes float64
		games   int
		last    time.Time
		team    string
		name    string
	}
	accums := make(map[string]*accum)
	for _, r := range rows {
		// Strict inequality guard: the source contract already excludes
		// the cutoff date, this keeps a buggy source from poisoning keys.
		if !r.Date.Before(before) {
			continue
		}
		a, ok := accums[r.PlayerID]
		if !ok {
			a = &accum{}
			accums[r.PlayerID] = a
		}
		a.minutes += r.Minutes
		a.games++
		if r.Date.After(a.last) {
			a.last = r.Date
			a.team = r.Team
		}
		if a.name == "" {
			a.name = r.PlayerName
		}
	}

	all := make(map[string]PlayerStats, len(accums))
	maxMPG := 0.0
	rot := 0.0
	for id, a := range accums {
		mpg := 0.0
		if a.games > 0 {
			mpg = a.minutes / float64(a.games)
		}
		all[id] = PlayerStats{
			PlayerID:       id,
			PlayerName:     a.name,
			MPG:            mpg,
			GamesPlayed:    a.games,
			LastPlayedDate: a.last,
			LastTeam:       a.team,
		}
		if mpg > maxMPG {
			maxMPG = mpg
		}
		if mpg >= c.rotationMPG {
			rot += mpg
		}
	}
	return all, maxMPG, rot, nil
}
