package db

import (
	"trader/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Trade{},
		&models.Position{},
		&models.DailySnapshot{},
		&models.RiskSetting{},
		&models.Exclusion{},
		&models.AgentLog{},
		&models.WatchlistItem{},
		&models.Research{},
		&models.SystemSetting{},
	)
}
