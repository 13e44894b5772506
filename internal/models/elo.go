package models

import "time"

// EloHistory persists the pre-game rating snapshot taken for each side of
// every processed result. The history rows are the durable artifact; the
// running per-team rating is rebuilt from the game log on demand.
type EloHistory struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Team      string    `gorm:"size:8;index:idx_elo_team_season" json:"team"`
	Season    string    `gorm:"size:16;index:idx_elo_team_season" json:"season"`
	Date      time.Time `gorm:"index;not null" json:"date"`
	GameID    string    `gorm:"size:64;index" json:"game_id"`
	Pregame   float64   `gorm:"not null" json:"pregame"`
	Postgame  float64   `gorm:"not null" json:"postgame"`
	CreatedAt time.Time `json:"created_at"`
}

func (EloHistory) TableName() string {
	return "elo_history"
}
