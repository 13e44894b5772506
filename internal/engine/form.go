package engine

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/courtdata/feature-engine/internal/models"
)

// FormConfig tunes the rolling team-form features.
type FormConfig struct {
	// Windows are the last-N-games windows to emit, e.g. 5 and 10.
	Windows []int
	// ExcludeTypes filters non-counting game types out of the windows.
	ExcludeTypes []string
}

func DefaultFormConfig() FormConfig {
	return FormConfig{
		Windows:      []int{5, 10},
		ExcludeTypes: []string{models.GameTypePreseason, models.GameTypeAllStar},
	}
}

// FormCalculator derives pre-game rolling form signals from the temporal
// index: win percentage, point-differential mean and spread, and the
// current streak. Same point-in-time discipline as the injury signals:
// only games strictly before the query date enter a window.
type FormCalculator struct {
	cfg FormConfig
	idx *TeamSeasonIndex
}

func NewFormCalculator(cfg FormConfig, idx *TeamSeasonIndex) *FormCalculator {
	if len(cfg.Windows) == 0 {
		cfg.Windows = []int{5, 10}
	}
	return &FormCalculator{cfg: cfg, idx: idx}
}

type sideForm struct {
	WinPct   float64
	DiffMean float64
	DiffStd  float64
	Streak   float64
}

// ComputeMatchup emits rolling form triples for both sides of a matchup.
func (f *FormCalculator) ComputeMatchup(home, away, season string, date time.Time) *FeatureSet {
	fs := NewFeatureSet(home, away, season, date)
	for _, w := range f.cfg.Windows {
		h := f.computeSide(home, season, date, w)
		a := f.computeSide(away, season, date, w)
		period := fmt.Sprintf("last%d", w)
		fs.PutTriple("form_win_pct", period, "raw", h.WinPct, a.WinPct)
		fs.PutTriple("form_point_diff_mean", period, "raw", h.DiffMean, a.DiffMean)
		fs.PutTriple("form_point_diff_std", period, "raw", h.DiffStd, a.DiffStd)
		fs.PutTriple("form_streak", period, "raw", h.Streak, a.Streak)
	}
	return fs
}

func (f *FormCalculator) computeSide(team, season string, date time.Time, window int) sideForm {
	games := f.idx.GamesBefore(team, season, date, f.cfg.ExcludeTypes)

	// Last N results-bearing games.
	diffs := make([]float64, 0, window)
	wins := make([]bool, 0, window)
	for i := len(games) - 1; i >= 0 && len(diffs) < window; i-- {
		g := games[i]
		if !g.HasResult() {
			continue
		}
		d := float64(g.HomeScore - g.AwayScore)
		won := *g.HomeWin
		if g.AwayTeam == team {
			d = -d
			won = !won
		}
		diffs = append(diffs, d)
		wins = append(wins, won)
	}
	if len(diffs) == 0 {
		return sideForm{}
	}

	var form sideForm
	winCount := 0
	for _, w := range wins {
		if w {
			winCount++
		}
	}
	form.WinPct = float64(winCount) / float64(len(wins))
	form.DiffMean = stat.Mean(diffs, nil)
	if len(diffs) > 1 {
		form.DiffStd = stat.StdDev(diffs, nil)
	}

	// wins[0] is the most recent game; streak counts consecutive same
	// outcomes, positive for wins.
	streak := 1.0
	for i := 1; i < len(wins); i++ {
		if wins[i] != wins[0] {
			break
		}
		streak++
	}
	if !wins[0] {
		streak = -streak
	}
	form.Streak = streak
	return form
}
