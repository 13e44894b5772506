package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/internal/store"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// PreloadOptions bounds a preload scope. The window is the target season
// plus, optionally, the immediately preceding season so cross-boundary
// rolling windows have history to draw on.
type PreloadOptions struct {
	Season                string
	PriorSeason           string // empty to scope a single season
	RotationMinMPG        float64
	NormalizedCap         float64
	FallbackWarnThreshold int
	EloConfig             EloConfig
}

// PreloadContext assembles the index, stat cache, season severity, and
// Elo structures for a bounded season window so live predictions avoid
// per-feature round trips. Construction is eager; once sealed the bundle
// is read-only and safe for concurrent readers. Reuse across requests is
// caller-managed and keyed by season string; a context must never be
// shared across mismatched scopes.
type PreloadContext struct {
	Seasons   []string
	Index     *TeamSeasonIndex
	StatCache *StatCache
	Severity  *SeasonSeverity
	Elo       *EloEngine
	Games     []models.GameEvent
	Records   []models.PlayerGameRecord
	Venues    map[string]models.Venue

	venueByTeam map[string]string
	sealed      atomic.Bool
	builtAt     time.Time
	log         *logrus.Entry
}

// NewPreloadContext eagerly loads and indexes the window: games, the
// qualifying (minutes > 0) player rows, and venue coordinates. The stat
// cache falls back to the live store for out-of-scope lookups; the
// severity and Elo passes run here since they consume the same rows.
func NewPreloadContext(ctx context.Context, st store.EventStore, opts PreloadOptions) (*PreloadContext, error) {
	if opts.Season == "" {
		return nil, fmt.Errorf("preload scope requires a target season")
	}
	seasons := []string{opts.Season}
	if opts.PriorSeason != "" {
		seasons = append(seasons, opts.PriorSeason)
	}

	log := logger.WithComponent("preload_context").WithField("seasons", seasons)
	start := time.Now()

	games, err := st.GamesForSeasons(ctx, seasons)
	if err != nil {
		return nil, fmt.Errorf("preload games: %w", err)
	}
	records, err := st.PlayerRecordsForSeasons(ctx, seasons)
	if err != nil {
		return nil, fmt.Errorf("preload player records: %w", err)
	}
	venueRows, err := st.Venues(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload venues: %w", err)
	}

	venues := make(map[string]models.Venue, len(venueRows))
	venueByTeam := make(map[string]string, len(venueRows))
	for _, v := range venueRows {
		venues[v.ID] = v
		if v.Team != "" {
			venueByTeam[v.Team] = v.ID
		}
	}

	idx := BuildTeamSeasonIndex(games)
	source := NewIndexedRecordSource(records, &LiveRecordSource{Store: st}, opts.FallbackWarnThreshold)
	statCache := NewStatCache(source, opts.RotationMinMPG)

	severity := NewSeasonSeverity(opts.RotationMinMPG, opts.NormalizedCap)
	severity.PrecomputeAll(idx, records)

	elo := NewEloEngine(opts.EloConfig)
	elo.Process(games)

	pctx := &PreloadContext{
		Seasons:     seasons,
		Index:       idx,
		StatCache:   statCache,
		Severity:    severity,
		Elo:         elo,
		Games:       games,
		Records:     records,
		Venues:      venues,
		venueByTeam: venueByTeam,
		builtAt:     time.Now().UTC(),
		log:         log,
	}

	log.WithFields(logrus.Fields{
		"games":       len(games),
		"records":     len(records),
		"venues":      len(venues),
		"elo_skipped": elo.SkippedGames(),
		"build_time":  time.Since(start),
	}).Info("Preload context built")

	return pctx, nil
}

// SeasonKey identifies this scope for caller-managed reuse.
func (p *PreloadContext) SeasonKey() string {
	return p.Seasons[0]
}

// Seal ends the preload phase. After sealing, the memoized structures
// are read-only and safe for concurrent readers; further warming is a
// programming error.
func (p *PreloadContext) Seal() {
	p.StatCache.Seal()
	p.sealed.Store(true)
}

// Sealed reports whether fan-out may begin.
func (p *PreloadContext) Sealed() bool {
	return p.sealed.Load()
}

// BuiltAt reports when the scope was loaded.
func (p *PreloadContext) BuiltAt() time.Time {
	return p.builtAt
}

// HomeVenueID resolves a team's home venue, empty when unknown.
func (p *PreloadContext) HomeVenueID(team string) string {
	return p.venueByTeam[team]
}
