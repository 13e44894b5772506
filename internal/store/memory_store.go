package store

import (
	"context"
	"sort"
	"time"

	"github.com/courtdata/feature-engine/internal/models"
)

// MemoryStore is an in-memory EventStore used in tests and as a seed
// source for preload scopes built from already-fetched data.
type MemoryStore struct {
	Games      []models.GameEvent
	Records    []models.PlayerGameRecord
	Rosters    []models.RosterEntry
	VenueRows  []models.Venue
	PERRows    []models.PlayerSeasonPER
	EloRows    []models.EloHistory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) GamesForSeasons(ctx context.Context, seasons []string) ([]models.GameEvent, error) {
	want := make(map[string]bool, len(seasons))
	for _, season := range seasons {
		want[season] = true
	}
	var games []models.GameEvent
	for _, g := range s.Games {
		if want[g.Season] {
			games = append(games, g)
		}
	}
	sort.SliceStable(games, func(i, j int) bool {
		return games[i].Date.Before(games[j].Date)
	})
	return games, nil
}

func (s *MemoryStore) GameByMatchup(ctx context.Context, home, away, season string, date time.Time) (*models.GameEvent, error) {
	day := models.NormalizeDate(date)
	for i := range s.Games {
		g := &s.Games[i]
		if g.HomeTeam == home && g.AwayTeam == away && g.Season == season && models.NormalizeDate(g.Date).Equal(day) {
			return g, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) PlayerRecordsBefore(ctx context.Context, team, season string, before time.Time) ([]models.PlayerGameRecord, error) {
	var records []models.PlayerGameRecord
	for _, r := range s.Records {
		if r.Team == team && r.Season == season && r.Date.Before(before) && r.Minutes > 0 {
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records, nil
}

func (s *MemoryStore) PlayerRecordsForSeasons(ctx context.Context, seasons []string) ([]models.PlayerGameRecord, error) {
	want := make(map[string]bool, len(seasons))
	for _, season := range seasons {
		want[season] = true
	}
	var records []models.PlayerGameRecord
	for _, r := range s.Records {
		if want[r.Season] && r.Minutes > 0 {
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records, nil
}

func (s *MemoryStore) PlayerLastGameBefore(ctx context.Context, playerID, season string, before time.Time) (*models.PlayerGameRecord, error) {
	var last *models.PlayerGameRecord
	for i := range s.Records {
		r := &s.Records[i]
		if r.PlayerID != playerID || r.Season != season || !r.Date.Before(before) || r.Minutes <= 0 {
			continue
		}
		if last == nil || r.Date.After(last.Date) {
			last = r
		}
	}
	return last, nil
}

func (s *MemoryStore) Roster(ctx context.Context, team, season string) ([]models.RosterEntry, error) {
	var entries []models.RosterEntry
	for _, e := range s.Rosters {
		if e.Team == team && e.Season == season {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *MemoryStore) Venues(ctx context.Context) ([]models.Venue, error) {
	return s.VenueRows, nil
}

func (s *MemoryStore) PlayerPERRows(ctx context.Context, season string) ([]models.PlayerSeasonPER, error) {
	var rows []models.PlayerSeasonPER
	for _, r := range s.PERRows {
		if r.Season == season {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (s *MemoryStore) SaveEloHistory(ctx context.Context, rows []models.EloHistory) error {
	s.EloRows = append(s.EloRows, rows...)
	return nil
}
