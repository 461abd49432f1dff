package db

import (
	"agenthub/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Strategist{},
		&models.Strategy{},
		&models.Signal{},
		&models.StrategyStats{},
		&models.Follower{},
		&models.Activity{},
	)
}
