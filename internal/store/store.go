package store

import (
	"context"
	"time"

	"github.com/courtdata/feature-engine/internal/models"
)

// EventStore is the read-only query surface over the historical game log.
// The engine consumes it for preload scans and for point-query fallback
// when a request lands outside the preloaded window.
type EventStore interface {
	// GamesForSeasons returns every game in the given seasons sorted by date.
	GamesForSeasons(ctx context.Context, seasons []string) ([]models.GameEvent, error)

	// GameByMatchup resolves the game document for one matchup on one date.
	// Returns nil (not an error) when no such game exists.
	GameByMatchup(ctx context.Context, home, away, season string, date time.Time) (*models.GameEvent, error)

	// PlayerRecordsBefore returns a team's player box-score rows for one
	// season with date strictly before the cutoff, sorted by date.
	PlayerRecordsBefore(ctx context.Context, team, season string, before time.Time) ([]models.PlayerGameRecord, error)

	// PlayerRecordsForSeasons returns every qualifying (minutes > 0)
	// box-score row for the given seasons, sorted by date.
	PlayerRecordsForSeasons(ctx context.Context, seasons []string) ([]models.PlayerGameRecord, error)

	// PlayerLastGameBefore returns a player's most recent box-score row
	// in a season strictly before the cutoff, across all teams. Returns
	// nil when the player has no history.
	PlayerLastGameBefore(ctx context.Context, playerID, season string, before time.Time) (*models.PlayerGameRecord, error)

	// Roster returns the roster entries for a team-season, empty when none
	// are on file.
	Roster(ctx context.Context, team, season string) ([]models.RosterEntry, error)

	// Venues returns all venue coordinate rows.
	Venues(ctx context.Context) ([]models.Venue, error)

	// PlayerPERRows returns the precomputed efficiency rows for a season.
	PlayerPERRows(ctx context.Context, season string) ([]models.PlayerSeasonPER, error)

	// SaveEloHistory persists pre-game rating snapshots produced by a
	// chronological Elo pass.
	SaveEloHistory(ctx context.Context, rows []models.EloHistory) error
}
