package engine

import (
	"sort"
	"time"

	"github.com/courtdata/feature-engine/internal/models"
)

// teamSeasonKey identifies one team's schedule within one season.
type teamSeasonKey struct {
	Team   string
	Season string
}

// teamSchedule holds a date-sorted game sequence plus a parallel date
// slice for binary search. Invariant: Dates is non-decreasing and
// len(Dates) == len(Games).
type teamSchedule struct {
	Dates []time.Time
	Games []*models.GameEvent
}

// TeamSeasonIndex indexes every game under both its home and away team,
// per season, sorted by date. Built once per preload scope and read-only
// afterwards.
type TeamSeasonIndex struct {
	schedules map[teamSeasonKey]*teamSchedule
}

// BuildTeamSeasonIndex constructs the index from a raw event slice. Input
// order is preserved for same-date games.
func BuildTeamSeasonIndex(events []models.GameEvent) *TeamSeasonIndex {
	idx := &TeamSeasonIndex{schedules: make(map[teamSeasonKey]*teamSchedule)}
	for i := range events {
		g := &events[i]
		idx.add(teamSeasonKey{Team: g.HomeTeam, Season: g.Season}, g)
		idx.add(teamSeasonKey{Team: g.AwayTeam, Season: g.Season}, g)
	}
	for _, sched := range idx.schedules {
		sortSchedule(sched)
	}
	return idx
}

func (idx *TeamSeasonIndex) add(key teamSeasonKey, g *models.GameEvent) {
	sched, ok := idx.schedules[key]
	if !ok {
		sched = &teamSchedule{}
		idx.schedules[key] = sched
	}
	sched.Dates = append(sched.Dates, g.Date)
	sched.Games = append(sched.Games, g)
}

func sortSchedule(sched *teamSchedule) {
	order := make([]int, len(sched.Games))
	for i := range order {
		order[i] = i
	}
	// Stable sort keeps insertion order for same-date ties.
	sort.SliceStable(order, func(a, b int) bool {
		return sched.Dates[order[a]].Before(sched.Dates[order[b]])
	})
	dates := make([]time.Time, len(order))
	games := make([]*models.GameEvent, len(order))
	for i, o := range order {
		dates[i] = sched.Dates[o]
		games[i] = sched.Games[o]
	}
	sched.Dates = dates
	sched.Games = games
}

// QueryRange returns the team's games in [begin, end), chronologically
// ordered. A nil bound is unbounded on that side. Games whose type
// appears in excludeTypes are filtered out. Unknown team/season yields an
// empty result.
func (idx *TeamSeasonIndex) QueryRange(team, season string, begin, end *time.Time, excludeTypes []string) []*models.GameEvent {
	sched, ok := idx.schedules[teamSeasonKey{Team: team, Season: season}]
	if !ok {
		return nil
	}

	lo := 0
	if begin != nil {
		lo = sort.Search(len(sched.Dates), func(i int) bool {
			return !sched.Dates[i].Before(*begin)
		})
	}
	hi := len(sched.Dates)
	if end != nil {
		hi = sort.Search(len(sched.Dates), func(i int) bool {
			return !sched.Dates[i].Before(*end)
		})
	}
	if lo >= hi {
		return nil
	}

	excluded := make(map[string]bool, len(excludeTypes))
	for _, t := range excludeTypes {
		excluded[t] = true
	}

	out := make([]*models.GameEvent, 0, hi-lo)
	for _, g := range sched.Games[lo:hi] {
		if excluded[g.GameType] {
			continue
		}
		out = append(out, g)
	}
	return out
}

// GamesBefore returns the team's games strictly before the given date.
func (idx *TeamSeasonIndex) GamesBefore(team, season string, before time.Time, excludeTypes []string) []*models.GameEvent {
	return idx.QueryRange(team, season, nil, &before, excludeTypes)
}

// LastGameBefore returns the team's most recent game strictly before the
// given date, nil when there is none.
func (idx *TeamSeasonIndex) LastGameBefore(team, season string, before time.Time, excludeTypes []string) *models.GameEvent {
	games := idx.GamesBefore(team, season, before, excludeTypes)
	if len(games) == 0 {
		return nil
	}
	return games[len(games)-1]
}

// TeamSeasons enumerates every (team, season) pair present in the index.
func (idx *TeamSeasonIndex) TeamSeasons() [][2]string {
	pairs := make([][2]string, 0, len(idx.schedules))
	for key := range idx.schedules {
		pairs = append(pairs, [2]string{key.Team, key.Season})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}
