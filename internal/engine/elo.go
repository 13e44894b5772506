package engine

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// EloConfig tunes the rating state machine.
type EloConfig struct {
	KFactor       float64
	HomeAdvantage float64
	BaseRating    float64
}

func DefaultEloConfig() EloConfig {
	return EloConfig{
		KFactor:       20,
		HomeAdvantage: 100,
		BaseRating:    1500,
	}
}

// EloKey addresses one team's pre-game rating for one game date.
type EloKey struct {
	Team   string
	Season string
	Date   time.Time
}

// EloEngine is a sequential state machine over chronologically sorted
// results. It keeps a running rating per team and a history map of
// pre-game ratings; the history is the durable artifact consumed by
// feature assembly.
type EloEngine struct {
	cfg     EloConfig
	ratings map[string]float64
	history map[EloKey]float64
	rows    []models.EloHistory
	skipped int
	log     *logrus.Entry
}

func NewEloEngine(cfg EloConfig) *EloEngine {
	if cfg.KFactor <= 0 {
		cfg.KFactor = 20
	}
	if cfg.BaseRating <= 0 {
		cfg.BaseRating = 1500
	}
	return &EloEngine{
		cfg:     cfg,
		ratings: make(map[string]float64),
		history: make(map[EloKey]float64),
		log:     logger.WithComponent("elo_engine"),
	}
}

// Process folds results-bearing games into the rating state in ascending
// chronological order. Games missing season, result, or team fields are
// skipped and counted, never silently dropped.
func (e *EloEngine) Process(games []models.GameEvent) {
	ordered := make([]models.GameEvent, len(games))
	copy(ordered, games)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	processed := 0
	for i := range ordered {
		g := &ordered[i]
		if g.Season == "" || g.HomeTeam == "" || g.AwayTeam == "" || !g.HasResult() {
			e.skipped++
			continue
		}
		e.apply(g)
		processed++
	}

	e.log.WithFields(logrus.Fields{
		"processed": processed,
		"skipped":   e.skipped,
		"teams":     len(e.ratings),
	}).Info("Elo pass completed")
}

func (e *EloEngine) apply(g *models.GameEvent) {
	home := e.Rating(g.HomeTeam)
	away := e.Rating(g.AwayTeam)

	// Pre-game snapshot, always taken before the update.
	date := models.NormalizeDate(g.Date)
	e.history[EloKey{Team: g.HomeTeam, Season: g.Season, Date: date}] = home
	e.history[EloKey{Team: g.AwayTeam, Season: g.Season, Date: date}] = away

	expected := expectedHomeScore(home, away, e.cfg.HomeAdvantage)
	actual := 0.0
	if *g.HomeWin {
		actual = 1.0
	}
	delta := e.cfg.KFactor * (actual - expected)

	e.ratings[g.HomeTeam] = home + delta
	e.ratings[g.AwayTeam] = away - delta

	e.rows = append(e.rows,
		models.EloHistory{Team: g.HomeTeam, Season: g.Season, Date: date, GameID: g.ID, Pregame: home, Postgame: home + delta},
		models.EloHistory{Team: g.AwayTeam, Season: g.Season, Date: date, GameID: g.ID, Pregame: away, Postgame: away - delta},
	)
}

// expectedHomeScore is the logistic expected score for the home side with
// the home-advantage bonus applied, divisor 400.
func expectedHomeScore(home, away, homeAdvantage float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, ((away-(home+homeAdvantage))/400.0)))
}

// Rating returns the team's current rating, the base rating for unseen
// teams.
func (e *EloEngine) Rating(team string) float64 {
	if r, ok := e.ratings[team]; ok {
		return r
	}
	return e.cfg.BaseRating
}

// PregameRating returns the rating the team carried into its game on the
// given date.
func (e *EloEngine) PregameRating(team, season string, date time.Time) (float64, bool) {
	r, ok := e.history[EloKey{Team: team, Season: season, Date: models.NormalizeDate(date)}]
	return r, ok
}

// SkippedGames reports how many games were excluded for missing fields.
func (e *EloEngine) SkippedGames() int {
	return e.skipped
}

// HistoryRows exports the accumulated pre/post-game snapshots for
// persistence.
func (e *EloEngine) HistoryRows() []models.EloHistory {
	return e.rows
}
