// Package archive stores finished game transcripts in Postgres.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kiliankoe/gptmafia/internal/game"
)

type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the archive tables.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return &Store{db: conn}, nil
}

// Migrate runs GORM auto-migrations for the archive tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db connection is nil")
	}
	if err := conn.AutoMigrate(&Game{}, &Player{}, &Event{}); err != nil {
		return err
	}
	log.Info().Msg("database migration complete")
	return nil
}

// Save writes a transcript once; saving the same session again is a no-op.
func (s *Store) Save(ctx context.Context, t game.Transcript) error {
	record, err := recordFor(t, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

// Archive is an OnFinish hook for the room manager.
func (s *Store) Archive(sess *game.Session) {
	t, err := sess.Transcript()
	if err != nil {
		log.Error().Err(err).Str("code", sess.Code).Msg("archive: transcript unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Save(ctx, t); err != nil {
		log.Error().Err(err).Str("code", sess.Code).Msg("archive failed")
		return
	}
	log.Info().Str("code", sess.Code).Int("events", len(t.Events)).Msg("game archived")
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordFor(t game.Transcript, endedAt time.Time) (Game, error) {
	g := Game{
		Code:      t.Code,
		Winner:    string(t.Winner),
		CreatedAt: t.CreatedAt,
		EndedAt:   endedAt,
		Players:   make([]Player, 0, len(t.Players)),
		Events:    make([]Event, 0, len(t.Events)),
	}
	for _, p := range t.Players {
		g.Players = append(g.Players, Player{
			Name:     p.Name,
			Role:     string(p.Role),
			Alive:    p.Alive,
			Human:    p.Human,
			Provider: p.Provider,
			Model:    p.Model,
		})
	}
	for _, e := range t.Events {
		payload, err := json.Marshal(e.Draft)
		if err != nil {
			return Game{}, err
		}
		g.Events = append(g.Events, Event{
			Seq:        e.Seq,
			Kind:       string(e.Kind),
			Visibility: string(e.Visibility),
			Actor:      e.Actor,
			Payload:    datatypes.JSON(payload),
			CreatedAt:  e.At,
		})
	}
	return g, nil
}
