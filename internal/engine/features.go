package engine

import (
	"errors"
	"fmt"
	"time"
)

// errCacheSealed signals a preload-phase API used after fan-out began.
var errCacheSealed = errors.New("cache is sealed: preload phase is over")

// Feature name perspectives. Every scalar is emitted as a
// home/away/diff triple.
const (
	PerspectiveHome = "home"
	PerspectiveAway = "away"
	PerspectiveDiff = "diff"
)

// FeatureName builds the canonical flat feature key,
// `<stat>|<time_period>|<calc>|<perspective>`.
func FeatureName(stat, period, calc, perspective string) string {
	return fmt.Sprintf("%s|%s|%s|%s", stat, period, calc, perspective)
}

// ContributingPlayer is one audit row explaining a feature value.
type ContributingPlayer struct {
	PlayerID     string  `json:"player_id"`
	PlayerName   string  `json:"player_name"`
	PER          float64 `json:"per"`
	MPG          float64 `json:"mpg"`
	Contribution float64 `json:"contribution"`
}

// FeatureSet is the flat numeric vector produced for one matchup query,
// plus a parallel audit map of contributing players per feature.
type FeatureSet struct {
	HomeTeam   string                          `json:"home_team"`
	AwayTeam   string                          `json:"away_team"`
	Season     string                          `json:"season"`
	Date       time.Time                       `json:"date"`
	Features   map[string]float64              `json:"features"`
	Audit      map[string][]ContributingPlayer `json:"audit"`
	ComputedAt time.Time                       `json:"computed_at"`
}

// NewFeatureSet allocates an empty vector for a matchup.
func NewFeatureSet(home, away, season string, date time.Time) *FeatureSet {
	return &FeatureSet{
		HomeTeam:   home,
		AwayTeam:   away,
		Season:     season,
		Date:       date,
		Features:   make(map[string]float64),
		Audit:      make(map[string][]ContributingPlayer),
		ComputedAt: time.Now().UTC(),
	}
}

// PutTriple emits the home, away, and home-minus-away values for one stat.
func (fs *FeatureSet) PutTriple(stat, period, calc string, home, away float64) {
	fs.Features[FeatureName(stat, period, calc, PerspectiveHome)] = home
	fs.Features[FeatureName(stat, period, calc, PerspectiveAway)] = away
	fs.Features[FeatureName(stat, period, calc, PerspectiveDiff)] = home - away
}

// Merge copies another set's features and audit rows into this one.
func (fs *FeatureSet) Merge(other *FeatureSet) {
	if other == nil {
		return
	}
	for k, v := range other.Features {
		fs.Features[k] = v
	}
	for k, v := range other.Audit {
		fs.Audit[k] = v
	}
}

// clip bounds a value to [lo, hi].
func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
