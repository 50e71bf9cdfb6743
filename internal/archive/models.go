package archive

import (
	"time"

	"gorm.io/datatypes"
)

type Game struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:12;uniqueIndex;not null"`
	Winner    string    `gorm:"size:16;not null"`
	CreatedAt time.Time `gorm:"not null"`
	EndedAt   time.Time `gorm:"not null"`
	Players   []Player
	Events    []Event
}

type Player struct {
	ID       uint   `gorm:"primaryKey"`
	GameID   uint   `gorm:"index;not null;uniqueIndex:idx_players_game_name"`
	Name     string `gorm:"size:64;not null;uniqueIndex:idx_players_game_name"`
	Role     string `gorm:"size:16;not null"`
	Alive    bool   `gorm:"not null"`
	Human    bool   `gorm:"not null;default:false"`
	Provider string `gorm:"size:32"`
	Model    string `gorm:"size:128"`
}

type Event struct {
	ID         uint           `gorm:"primaryKey"`
	GameID     uint           `gorm:"index;not null;uniqueIndex:idx_events_game_seq"`
	Seq        uint64         `gorm:"not null;uniqueIndex:idx_events_game_seq"`
	Kind       string         `gorm:"size:32;not null"`
	Visibility string         `gorm:"size:16;not null"`
	Actor      string         `gorm:"size:64"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null"`
}
