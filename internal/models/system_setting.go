package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting holds runtime switches such as the trading pause and the
// executor mode override.
type SystemSetting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Key   string         `gorm:"type:varchar(120);not null;uniqueIndex" json:"key"`
	Value datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`

	Description string    `gorm:"type:text" json:"description"`
	UpdatedBy   string    `gorm:"type:varchar(50)" json:"updated_by"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime;index" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
