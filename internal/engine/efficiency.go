package engine

import (
	"context"
	"sort"
	"time"

	"github.com/courtdata/feature-engine/internal/store"
)

// PlayerPER is one player's efficiency rating within a team context.
type PlayerPER struct {
	PlayerID   string
	PlayerName string
	PER        float64
}

// TeamPER summarizes a team's efficiency distribution as of a date.
type TeamPER struct {
	Top3Sum float64
	Top1    float64
	Players []PlayerPER
}

// EfficiencyProvider is the external efficiency-aggregator contract. Its
// internals are out of scope; the engine only consumes point-in-time PER
// values through it.
type EfficiencyProvider interface {
	// PlayerPERBeforeDate returns a player's PER as of the date; false
	// when no value is known.
	PlayerPERBeforeDate(ctx context.Context, playerID, team, season string, date time.Time) (float64, bool)

	// TeamPERFeatures returns the team-level PER summary as of the date.
	TeamPERFeatures(ctx context.Context, team, season string, date time.Time) (TeamPER, error)
}

// StorePERProvider is a reference EfficiencyProvider over precomputed
// per-season PER rows. Loaded eagerly per season so reads during fan-out
// touch only memory.
type StorePERProvider struct {
	byPlayer map[string]map[string]playerPERRow // season -> player -> row
}

type playerPERRow struct {
	Name string
	Team string
	PER  float64
}

// NewStorePERProvider loads the PER rows for the given seasons.
func NewStorePERProvider(ctx context.Context, st store.EventStore, seasons []string) (*StorePERProvider, error) {
	p := &StorePERProvider{byPlayer: make(map[string]map[string]playerPERRow)}
	for _, season := range seasons {
		rows, err := st.PlayerPERRows(ctx, season)
		if err != nil {
			return nil, err
		}
		m := make(map[string]playerPERRow, len(rows))
		for _, r := range rows {
			m[r.PlayerID] = playerPERRow{Name: r.PlayerName, Team: r.Team, PER: r.PER}
		}
		p.byPlayer[season] = m
	}
	return p, nil
}

func (p *StorePERProvider) PlayerPERBeforeDate(ctx context.Context, playerID, team, season string, date time.Time) (float64, bool) {
	m, ok := p.byPlayer[season]
	if !ok {
		return 0, false
	}
	row, ok := m[playerID]
	if !ok || row.PER <= 0 {
		return 0, false
	}
	return row.PER, true
}

func (p *StorePERProvider) TeamPERFeatures(ctx context.Context, team, season string, date time.Time) (TeamPER, error) {
	m := p.byPlayer[season]
	var players []PlayerPER
	for id, row := range m {
		if row.Team != team || row.PER <= 0 {
			continue
		}
		players = append(players, PlayerPER{PlayerID: id, PlayerName: row.Name, PER: row.PER})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].PER != players[j].PER {
			return players[i].PER > players[j].PER
		}
		return players[i].PlayerID < players[j].PlayerID
	})

	out := TeamPER{Players: players}
	for i, pl := range players {
		if i == 0 {
			out.Top1 = pl.PER
		}
		if i < 3 {
			out.Top3Sum += pl.PER
		}
	}
	return out, nil
}
