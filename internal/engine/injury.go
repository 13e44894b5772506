package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/store"
	"github.com/courtdata/feature-engine/pkg/logger"
)

const severityEpsilon = 1e-6

// InjuryConfig tunes the injury impact model.
type InjuryConfig struct {
	// DecayDays is the recency decay window k: a player out for d days
	// contributes with weight exp(-d/k).
	DecayDays float64
	// RotationMinMPG qualifies a player as a rotation player.
	RotationMinMPG float64
	// NormalizedCap clips ratio signals, default 1.5.
	NormalizedCap float64
}

func DefaultInjuryConfig() InjuryConfig {
	return InjuryConfig{
		DecayDays:      15,
		RotationMinMPG: 10,
		NormalizedCap:  1.5,
	}
}

// InjuryCalculator combines the stat cache, the efficiency aggregator,
// and the event store into per-matchup injury impact signals. It never
// errors out of a batch run: missing upstream data degrades the affected
// signals to zero so the feature vector stays dense.
type InjuryCalculator struct {
	cfg        InjuryConfig
	stats      *StatCache
	efficiency EfficiencyProvider
	store      store.EventStore
	log        *logrus.Entry
}

func NewInjuryCalculator(cfg InjuryConfig, stats *StatCache, efficiency EfficiencyProvider, st store.EventStore) *InjuryCalculator {
	if cfg.DecayDays <= 0 {
		cfg.DecayDays = 15
	}
	if cfg.RotationMinMPG <= 0 {
		cfg.RotationMinMPG = 10
	}
	if cfg.NormalizedCap <= 0 {
		cfg.NormalizedCap = 1.5
	}
	return &InjuryCalculator{
		cfg:        cfg,
		stats:      stats,
		efficiency: efficiency,
		store:      st,
		log:        logger.WithComponent("injury_calculator"),
	}
}

// MatchupRequest identifies one matchup query. Injured lists may be
// supplied directly; when nil they are resolved from the game document,
// then from the roster lookup, and finally default to fully healthy.
type MatchupRequest struct {
	HomeTeam    string
	AwayTeam    string
	Season      string
	Date        time.Time
	HomeInjured []string
	AwayInjured []string
}

// sideImpact holds one side's computed scalars plus the audit rows.
type sideImpact struct {
	WeightedPERLost   float64
	Top1PERLost       float64
	Top3SumPERLost    float64
	MinutesLost       float64
	Severity          float64
	RotationCountLost float64
	Top1Ratio         float64
	Top3Ratio         float64
	StarOut           float64
	StarMassOut       float64
	Blend             float64
	Contributors      []ContributingPlayer
}

// ComputeMatchup produces the full injury signal schema for one matchup.
// Every scalar is emitted as a home/away/diff triple.
func (c *InjuryCalculator) ComputeMatchup(ctx context.Context, req MatchupRequest) *FeatureSet {
	fs := NewFeatureSet(req.HomeTeam, req.AwayTeam, req.Season, req.Date)

	homeInjured, awayInjured := c.resolveInjured(ctx, req)

	home := c.computeSide(ctx, req.HomeTeam, req.Season, req.Date, homeInjured)
	away := c.computeSide(ctx, req.AwayTeam, req.Season, req.Date, awayInjured)

	fs.PutTriple("inj_weighted_per_lost", "none", "raw", home.WeightedPERLost, away.WeightedPERLost)
	fs.PutTriple("inj_top1_per", "none", "raw", home.Top1PERLost, away.Top1PERLost)
	fs.PutTriple("inj_top3_sum_per", "none", "raw", home.Top3SumPERLost, away.Top3SumPERLost)
	fs.PutTriple("inj_minutes_lost", "none", "raw", home.MinutesLost, away.MinutesLost)
	fs.PutTriple("inj_severity", "none", "raw", home.Severity, away.Severity)
	fs.PutTriple("inj_rotation_count", "none", "raw", home.RotationCountLost, away.RotationCountLost)
	fs.PutTriple("inj_top1_ratio", "none", "norm", home.Top1Ratio, away.Top1Ratio)
	fs.PutTriple("inj_top3_ratio", "none", "norm", home.Top3Ratio, away.Top3Ratio)
	fs.PutTriple("inj_star_out", "none", "raw", home.StarOut, away.StarOut)
	fs.PutTriple("inj_star_mass_out", "none", "norm", home.StarMassOut, away.StarMassOut)
	fs.PutTriple("inj_blend", "none", "raw", home.Blend, away.Blend)

	fs.Audit[FeatureName("inj_weighted_per_lost", "none", "raw", PerspectiveHome)] = home.Contributors
	fs.Audit[FeatureName("inj_weighted_per_lost", "none", "raw", PerspectiveAway)] = away.Contributors

	return fs
}

// resolveInjured settles both sides' injured lists. Any lookup failure
// resolves to "fully healthy": feature vectors must stay dense and a
// single matchup must never abort a batch.
func (c *InjuryCalculator) resolveInjured(ctx context.Context, req MatchupRequest) ([]string, []string) {
	homeInjured := req.HomeInjured
	awayInjured := req.AwayInjured
	if homeInjured != nil && awayInjured != nil {
		return homeInjured, awayInjured
	}

	game, err := c.store.GameByMatchup(ctx, req.HomeTeam, req.AwayTeam, req.Season, req.Date)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"home": req.HomeTeam,
			"away": req.AwayTeam,
			"date": req.Date.Format("2006-01-02"),
		}).Warn("Game lookup failed, defaulting to healthy rosters")
		return homeInjured, awayInjured
	}
	if game != nil {
		if homeInjured == nil {
			homeInjured = game.InjuredHome()
		}
		if awayInjured == nil {
			awayInjured = game.InjuredAway()
		}
	}

	if homeInjured == nil {
		homeInjured = c.rosterInjured(ctx, req.HomeTeam, req.Season)
	}
	if awayInjured == nil {
		awayInjured = c.rosterInjured(ctx, req.AwayTeam, req.Season)
	}
	return homeInjured, awayInjured
}

// rosterInjured is the last-resort injured list when no box-score-derived
// list exists on the game document.
func (c *InjuryCalculator) rosterInjured(ctx context.Context, team, season string) []string {
	entries, err := c.store.Roster(ctx, team, season)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"team":   team,
			"season": season,
		}).Warn("Roster fallback failed, defaulting to healthy roster")
		return nil
	}
	var ids []string
	for _, e := range entries {
		if e.Injured && !e.Disabled {
			ids = append(ids, e.PlayerID)
		}
	}
	return ids
}

func (c *InjuryCalculator) computeSide(ctx context.Context, team, season string, date time.Time, injured []string) sideImpact {
	var impact sideImpact
	if len(injured) == 0 {
		return impact
	}

	stats, err := c.stats.PlayerSeasonStats(ctx, team, season, date, injured)
	if err != nil {
		c.log.WithError(err).WithField("team", team).Warn("Stat lookup failed, zeroing injury signals")
		return impact
	}
	maxMPG, err := c.stats.MaxMPGOnTeam(ctx, team, season, date)
	if err != nil {
		maxMPG = 0
	}
	rotationMPG, err := c.stats.TeamRotationMPG(ctx, team, season, date)
	if err != nil {
		rotationMPG = 0
	}

	// Keep only players whose most recent game before this date was for
	// this team; a since-traded player's injury no longer counts against
	// their former team. The season-wide last-team lookup sees games for
	// the player's new team, which the team-scoped aggregate cannot.
	rostered := make([]PlayerStats, 0, len(injured))
	for _, id := range injured {
		st := stats[id]
		if st.GamesPlayed == 0 {
			continue
		}
		lastTeam, ok := c.stats.PlayerLastTeam(ctx, id, season, date)
		if !ok {
			lastTeam = st.LastTeam
		}
		if lastTeam != team {
			continue
		}
		rostered = append(rostered, st)
	}
	if len(rostered) == 0 {
		return impact
	}

	var injuredPERs []float64
	for _, st := range rostered {
		per, hasPER := c.playerPER(ctx, st.PlayerID, team, season, date)

		contribution := 0.0
		if hasPER && st.MPG > 0 && maxMPG > 0 {
			days := date.Sub(st.LastPlayedDate).Hours() / 24
			if days < 0 {
				days = 0
			}
			// Down-weight players absent long enough that their loss is
			// already priced into recent team form.
			recency := math.Exp(-days / c.cfg.DecayDays)
			contribution = per * (st.MPG / maxMPG) * recency
			impact.WeightedPERLost += contribution
		}
		impact.Contributors = append(impact.Contributors, ContributingPlayer{
			PlayerID:     st.PlayerID,
			PlayerName:   st.PlayerName,
			PER:          per,
			MPG:          st.MPG,
			Contribution: contribution,
		})

		if hasPER && per > 0 {
			injuredPERs = append(injuredPERs, per)
		}
		if st.MPG >= c.cfg.RotationMinMPG {
			impact.MinutesLost += st.MPG
			impact.RotationCountLost++
		}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(injuredPERs)))
	for i, per := range injuredPERs {
		if i == 0 {
			impact.Top1PERLost = per
		}
		if i >= 3 {
			break
		}
		impact.Top3SumPERLost += per
	}

	if rotationMPG > severityEpsilon {
		impact.Severity = clip(impact.MinutesLost/(rotationMPG+severityEpsilon), 0, c.cfg.NormalizedCap)
	}

	c.normalize(ctx, team, season, date, rostered, &impact)

	impact.Blend = 0.45*impact.Severity + 0.35*impact.Top1PERLost + 0.20*impact.RotationCountLost
	return impact
}

// normalize fills the deconfounded ratio signals and the star flags.
// Losing a star on a strong roster should compare to losing an
// equivalent player on a weak one.
func (c *InjuryCalculator) normalize(ctx context.Context, team, season string, date time.Time, rostered []PlayerStats, impact *sideImpact) {
	teamPER, err := c.teamPER(ctx, team, season, date)
	if err != nil {
		c.log.WithError(err).WithField("team", team).Debug("Team PER unavailable, skipping normalized signals")
		return
	}

	if teamPER.Top1 > severityEpsilon {
		impact.Top1Ratio = clip(impact.Top1PERLost/teamPER.Top1, 0, c.cfg.NormalizedCap)
	}
	if teamPER.Top3Sum > severityEpsilon {
		impact.Top3Ratio = clip(impact.Top3SumPERLost/teamPER.Top3Sum, 0, c.cfg.NormalizedCap)
	}

	teamStats, err := c.stats.TeamStats(ctx, team, season, date)
	if err != nil {
		return
	}
	injuredSet := make(map[string]bool, len(rostered))
	for _, st := range rostered {
		injuredSet[st.PlayerID] = true
	}

	// Star score ranks rostered players by PER x MPG.
	type starRow struct {
		id    string
		score float64
	}
	var stars []starRow
	for _, pl := range teamPER.Players {
		st, ok := teamStats[pl.PlayerID]
		if !ok || st.MPG <= 0 {
			continue
		}
		if lastTeam, known := c.stats.PlayerLastTeam(ctx, pl.PlayerID, season, date); known && lastTeam != team {
			continue
		}
		stars = append(stars, starRow{id: pl.PlayerID, score: pl.PER * st.MPG})
	}
	if len(stars) == 0 {
		return
	}
	sort.Slice(stars, func(i, j int) bool {
		if stars[i].score != stars[j].score {
			return stars[i].score > stars[j].score
		}
		return stars[i].id < stars[j].id
	})

	if injuredSet[stars[0].id] {
		impact.StarOut = 1
	}

	topN := 3
	if len(stars) < topN {
		topN = len(stars)
	}
	totalMass := 0.0
	injuredMass := 0.0
	for _, s := range stars[:topN] {
		totalMass += s.score
		if injuredSet[s.id] {
			injuredMass += s.score
		}
	}
	if totalMass > severityEpsilon {
		impact.StarMassOut = clip(injuredMass/totalMass, 0, c.cfg.NormalizedCap)
	}
}

// teamPER shields the batch from a panicking aggregator the same way
// playerPER does; the normalized signals simply stay zero.
func (c *InjuryCalculator) teamPER(ctx context.Context, team, season string, date time.Time) (out TeamPER, err error) {
	if c.efficiency == nil {
		return TeamPER{}, errors.New("no efficiency provider configured")
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("team", team).Warn("Efficiency provider panicked, skipping normalized signals")
			out, err = TeamPER{}, fmt.Errorf("efficiency provider panic: %v", r)
		}
	}()
	return c.efficiency.TeamPERFeatures(ctx, team, season, date)
}

// playerPER swallows provider failures so a missing aggregator degrades
// only the affected signal.
func (c *InjuryCalculator) playerPER(ctx context.Context, playerID, team, season string, date time.Time) (per float64, ok bool) {
	if c.efficiency == nil {
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("player_id", playerID).Warn("Efficiency provider panicked, treating PER as unknown")
			per, ok = 0, false
		}
	}()
	return c.efficiency.PlayerPERBeforeDate(ctx, playerID, team, season, date)
}
