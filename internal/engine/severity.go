package engine

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// SeverityKey addresses the severity value entering one game.
type SeverityKey struct {
	Team   string
	Season string
	Date   time.Time
}

// SeasonSeverity precomputes, in one forward pass per (team, season), the
// proportion of rotation minutes missing entering every game. Computed
// once, immutable after; avoids the quadratic cost of re-summing all
// prior games per query.
type SeasonSeverity struct {
	rotationMinMPG float64
	cap            float64
	entries        map[SeverityKey]float64
}

func NewSeasonSeverity(rotationMinMPG, normalizedCap float64) *SeasonSeverity {
	if rotationMinMPG <= 0 {
		rotationMinMPG = 10
	}
	if normalizedCap <= 0 {
		normalizedCap = 1.5
	}
	return &SeasonSeverity{
		rotationMinMPG: rotationMinMPG,
		cap:            normalizedCap,
		entries:        make(map[SeverityKey]float64),
	}
}

// EnteringSeverity returns the precomputed severity entering the team's
// game on the given date.
func (s *SeasonSeverity) EnteringSeverity(team, season string, date time.Time) (float64, bool) {
	v, ok := s.entries[SeverityKey{Team: team, Season: season, Date: models.NormalizeDate(date)}]
	return v, ok
}

// PrecomputeAll runs the forward pass for every (team, season) in the
// index. Must run after the stat-cache preload completes since it
// consumes the same qualifying record rows.
func (s *SeasonSeverity) PrecomputeAll(idx *TeamSeasonIndex, records []models.PlayerGameRecord) {
	byGameTeam := groupRecordsByGameTeam(records)
	log := logger.WithComponent("season_severity")

	pairs := idx.TeamSeasons()
	for _, pair := range pairs {
		team, season := pair[0], pair[1]
		games := idx.QueryRange(team, season, nil, nil, nil)
		s.Precompute(team, season, games, byGameTeam)
	}
	log.WithFields(logrus.Fields{
		"team_seasons": len(pairs),
		"entries":      len(s.entries),
	}).Info("Season severity precompute completed")
}

// Precompute walks one team-season's games in ascending order. For each
// game the running ratio is recorded as the entering severity before the
// game's own contributions are folded in, preserving point-in-time
// correctness; per-player cumulative minutes and games are then updated
// from the game's box score for later iterations.
func (s *SeasonSeverity) Precompute(team, season string, games []*models.GameEvent, recordsByGameTeam map[gameTeamKey][]models.PlayerGameRecord) {
	type cum struct {
		minutes float64
		games   int
	}
	players := make(map[string]*cum)

	rotationRun := 0.0
	lostRun := 0.0

	for _, g := range games {
		key := SeverityKey{Team: team, Season: season, Date: models.NormalizeDate(g.Date)}
		if rotationRun > severityEpsilon {
			s.entries[key] = clip(lostRun/rotationRun, 0, s.cap)
		} else {
			s.entries[key] = 0
		}

		injured := make(map[string]bool)
		for _, id := range s.injuredFor(g, team) {
			injured[id] = true
		}

		// This game's contribution from stats current at this point in
		// the season.
		for id, c := range players {
			if c.games == 0 {
				continue
			}
			mpg := c.minutes / float64(c.games)
			if mpg < s.rotationMinMPG {
				continue
			}
			rotationRun += mpg
			if injured[id] {
				lostRun += mpg
			}
		}

		for _, r := range recordsByGameTeam[gameTeamKey{GameID: g.ID, Team: team}] {
			c, ok := players[r.PlayerID]
			if !ok {
				c = &cum{}
				players[r.PlayerID] = c
			}
			c.minutes += r.Minutes
			c.games++
		}
	}
}

func (s *SeasonSeverity) injuredFor(g *models.GameEvent, team string) []string {
	if g.HomeTeam == team {
		return g.InjuredHome()
	}
	return g.InjuredAway()
}

// gameTeamKey addresses one side's box-score rows for one game.
type gameTeamKey struct {
	GameID string
	Team   string
}

func groupRecordsByGameTeam(records []models.PlayerGameRecord) map[gameTeamKey][]models.PlayerGameRecord {
	grouped := make(map[gameTeamKey][]models.PlayerGameRecord)
	for _, r := range records {
		key := gameTeamKey{GameID: r.GameID, Team: r.Team}
		grouped[key] = append(grouped[key], r)
	}
	for key := range grouped {
		rows := grouped[key]
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].PlayerID < rows[j].PlayerID
		})
		grouped[key] = rows
	}
	return grouped
}
