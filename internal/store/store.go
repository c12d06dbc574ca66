// Package store archives finished match results. Archiving is best-effort:
// the room logs and moves on when a write fails, and a nil store disables
// it entirely. This is separate from the polling fallback's document store,
// which lives outside this service.
package store

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type MatchResult struct {
	ID         uint   `gorm:"primaryKey"`
	MatchID    string `gorm:"uniqueIndex;size:64"`
	GameType   string `gorm:"size:64"`
	WinnerID   string `gorm:"size:64"`
	Draw       bool
	EndReason  string `gorm:"size:32"`
	ScoresJSON string
	CreatedAt  time.Time
}

func (MatchResult) TableName() string { return "match_results" }

func (r *MatchResult) SetScores(scores map[string]int) {
	b, err := json.Marshal(scores)
	if err != nil {
		return
	}
	r.ScoresJSON = string(b)
}

type ResultStore interface {
	SaveResult(ctx context.Context, rec MatchResult) error
}

type GormStore struct {
	db *gorm.DB
}

func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&MatchResult{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveResult(ctx context.Context, rec MatchResult) error {
	return s.db.WithContext(ctx).Create(&rec).Error
}
