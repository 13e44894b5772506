package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Game type classifiers. Preseason and all-star games never count toward
// rolling or rating features.
const (
	GameTypeRegular   = "regular"
	GameTypePlayoff   = "playoff"
	GameTypePreseason = "preseason"
	GameTypeAllStar   = "allstar"
)

// GameEvent represents a completed contest as produced by ingestion.
// Rows are immutable once written.
type GameEvent struct {
	ID          string         `gorm:"primaryKey;size:64" json:"id"`
	Date        time.Time      `gorm:"index;not null" json:"date"`
	Season      string         `gorm:"size:16;index" json:"season"`
	HomeTeam    string         `gorm:"size:8;index" json:"home_team"`
	AwayTeam    string         `gorm:"size:8;index" json:"away_team"`
	HomeScore   int            `json:"home_score"`
	AwayScore   int            `json:"away_score"`
	HomeWin     *bool          `json:"home_win"`
	GameType    string         `gorm:"size:16;default:regular" json:"game_type"`
	VenueID     string         `gorm:"size:64" json:"venue_id"`
	HomeInjured datatypes.JSON `json:"home_injured"`
	AwayInjured datatypes.JSON `json:"away_injured"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (GameEvent) TableName() string {
	return "game_events"
}

// HasResult reports whether the game carries a usable final result.
func (g *GameEvent) HasResult() bool {
	return g.HomeWin != nil
}

// InjuredHome returns the home side's injured player IDs, nil when the
// game document carries no injury data at all.
func (g *GameEvent) InjuredHome() []string {
	return decodeIDList(g.HomeInjured)
}

// InjuredAway returns the away side's injured player IDs.
func (g *GameEvent) InjuredAway() []string {
	return decodeIDList(g.AwayInjured)
}

// SetInjured encodes both injured lists onto the event.
func (g *GameEvent) SetInjured(home, away []string) error {
	h, err := json.Marshal(home)
	if err != nil {
		return err
	}
	a, err := json.Marshal(away)
	if err != nil {
		return err
	}
	g.HomeInjured = datatypes.JSON(h)
	g.AwayInjured = datatypes.JSON(a)
	return nil
}

func decodeIDList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return ids
}

// Venue stores arena coordinates for travel-distance features.
type Venue struct {
	ID        string  `gorm:"primaryKey;size:64" json:"id"`
	Name      string  `gorm:"size:100" json:"name"`
	Team      string  `gorm:"size:8;index" json:"team"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (Venue) TableName() string {
	return "venues"
}

// NormalizeDate truncates a timestamp to its UTC calendar date so that
// map keys built from dates compare reliably.
func NormalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
