package models

import "time"

const (
	ExclusionSymbol  = "SYMBOL"
	ExclusionSector  = "SECTOR"
	ExclusionSICCode = "SIC_CODE"
)

type Exclusion struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      string    `gorm:"type:varchar(10);not null;index" json:"type"`
	Value     string    `gorm:"type:varchar(100);not null" json:"value"`
	Reason    string    `gorm:"type:text;not null" json:"reason"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Exclusion) TableName() string {
	return "exclusions"
}
