package results

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store is the postgres-backed Saver.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}
	if err := db.AutoMigrate(&Result{}); err != nil {
		return nil, fmt.Errorf("migrating results schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(res Result) error {
	if err := s.db.Create(&res).Error; err != nil {
		return fmt.Errorf("saving result for %s: %w", res.UserID, err)
	}
	return nil
}

// DiscardSaver drops results on the floor, logging once per record. Used when
// no DATABASE_URL is configured (local dev).
type DiscardSaver struct {
	Log *zap.Logger
}

func (d DiscardSaver) Save(res Result) error {
	d.Log.Info("no database configured, discarding result",
		zap.String("user", res.UserID),
		zap.String("room", res.RoomCode),
		zap.Int("rank", res.Rank))
	return nil
}
