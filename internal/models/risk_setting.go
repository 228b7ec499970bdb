package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskSetting is an operator-editable soft value. Hard limits never live here.
type RiskSetting struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Key         string          `gorm:"type:varchar(80);not null;uniqueIndex" json:"key"`
	Value       decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"value"`
	Description string          `gorm:"type:text" json:"description"`
	UpdatedAt   time.Time       `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (RiskSetting) TableName() string {
	return "risk_config"
}
