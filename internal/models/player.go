package models

import "time"

// PlayerGameRecord is one player's box-score line for one game.
// Many-to-one with GameEvent, immutable once written.
type PlayerGameRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID   string    `gorm:"size:64;index" json:"player_id"`
	PlayerName string    `gorm:"size:100" json:"player_name"`
	GameID     string    `gorm:"size:64;index" json:"game_id"`
	Date       time.Time `gorm:"index;not null" json:"date"`
	Season     string    `gorm:"size:16;index" json:"season"`
	Team       string    `gorm:"size:8;index" json:"team"`
	Minutes    float64   `json:"minutes"`
	Starter    bool      `json:"starter"`
}

func (PlayerGameRecord) TableName() string {
	return "player_game_records"
}

// RosterEntry is the fallback injury source when a game document carries
// no box-score-derived injured list.
type RosterEntry struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Team       string `gorm:"size:8;index:idx_roster_team_season" json:"team"`
	Season     string `gorm:"size:16;index:idx_roster_team_season" json:"season"`
	PlayerID   string `gorm:"size:64" json:"player_id"`
	PlayerName string `gorm:"size:100" json:"player_name"`
	Injured    bool   `json:"injured"`
	Starter    bool   `json:"starter"`
	Disabled   bool   `json:"disabled"`
}

func (RosterEntry) TableName() string {
	return "roster_entries"
}

// PlayerSeasonPER holds a precomputed efficiency rating row consumed by
// the store-backed efficiency provider.
type PlayerSeasonPER struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID   string    `gorm:"size:64;index:idx_per_player_season" json:"player_id"`
	PlayerName string    `gorm:"size:100" json:"player_name"`
	Team       string    `gorm:"size:8;index" json:"team"`
	Season     string    `gorm:"size:16;index:idx_per_player_season" json:"season"`
	PER        float64   `json:"per"`
	AsOfDate   time.Time `gorm:"index" json:"as_of_date"`
}

func (PlayerSeasonPER) TableName() string {
	return "player_season_per"
}
