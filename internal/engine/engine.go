// Package engine computes point-in-time feature snapshots from a
// historical game log. Every signal for a game date uses only
// information available strictly before that date.
package engine

import (
	"context"

	"github.com/courtdata/feature-engine/internal/store"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// Engine bundles the calculators over one preload scope and assembles
// the flat feature vector per matchup. Synchronous, single-threaded per
// request; a batch driver supplies parallelism above it.
type Engine struct {
	pctx   *PreloadContext
	injury *InjuryCalculator
	form   *FormCalculator
	rest   *RestCalculator
}

// EngineConfig collects per-calculator tuning.
type EngineConfig struct {
	Injury InjuryConfig
	Form   FormConfig
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Injury: DefaultInjuryConfig(),
		Form:   DefaultFormConfig(),
	}
}

// NewEngine wires the calculators over a built preload context.
func NewEngine(cfg EngineConfig, pctx *PreloadContext, efficiency EfficiencyProvider, st store.EventStore) *Engine {
	return &Engine{
		pctx:   pctx,
		injury: NewInjuryCalculator(cfg.Injury, pctx.StatCache, efficiency, st),
		form:   NewFormCalculator(cfg.Form, pctx.Index),
		rest:   NewRestCalculator(pctx.Index, pctx.Venues, cfg.Form.ExcludeTypes),
	}
}

// Warm populates the stat cache for one matchup's cutoff date. Called
// during the single-threaded preload phase, before Seal.
func (e *Engine) Warm(ctx context.Context, req MatchupRequest) error {
	if err := e.pctx.StatCache.Warm(ctx, req.HomeTeam, req.Season, req.Date); err != nil {
		return err
	}
	return e.pctx.StatCache.Warm(ctx, req.AwayTeam, req.Season, req.Date)
}

// ComputeFeatures produces the full flat feature vector for one matchup:
// injury impact, entering season severity, pre-game Elo, rolling form,
// and rest signals, all as home/away/diff triples. Missing upstream data
// zeroes the affected signals rather than erroring.
func (e *Engine) ComputeFeatures(ctx context.Context, req MatchupRequest) *FeatureSet {
	fs := e.injury.ComputeMatchup(ctx, req)

	homeSev, _ := e.pctx.Severity.EnteringSeverity(req.HomeTeam, req.Season, req.Date)
	awaySev, _ := e.pctx.Severity.EnteringSeverity(req.AwayTeam, req.Season, req.Date)
	fs.PutTriple("inj_season_severity", "none", "raw", homeSev, awaySev)

	homeElo, ok := e.pctx.Elo.PregameRating(req.HomeTeam, req.Season, req.Date)
	if !ok {
		// No game on record for this date: prediction-time query, the
		// current rating is the pre-game rating.
		homeElo = e.pctx.Elo.Rating(req.HomeTeam)
	}
	awayElo, ok := e.pctx.Elo.PregameRating(req.AwayTeam, req.Season, req.Date)
	if !ok {
		awayElo = e.pctx.Elo.Rating(req.AwayTeam)
	}
	fs.PutTriple("elo_rating", "none", "raw", homeElo, awayElo)

	fs.Merge(e.form.ComputeMatchup(req.HomeTeam, req.AwayTeam, req.Season, req.Date))

	venueID := e.pctx.HomeVenueID(req.HomeTeam)
	fs.Merge(e.rest.ComputeMatchup(req.HomeTeam, req.AwayTeam, req.Season, req.Date, venueID))

	return fs
}

// Preload exposes the engine's scope for lifecycle management.
func (e *Engine) Preload() *PreloadContext {
	return e.pctx
}

// LogScope emits a summary of the engine's preload scope.
func (e *Engine) LogScope() {
	logger.WithComponent("engine").WithField("seasons", e.pctx.Seasons).Info("Engine scope ready")
}
