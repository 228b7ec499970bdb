package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WatchlistItem struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol           string          `gorm:"type:varchar(20);not null;uniqueIndex" json:"symbol"`
	Name             string          `gorm:"type:varchar(200)" json:"name"`
	Sector           string          `gorm:"type:varchar(100);index" json:"sector"`
	Score            decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0;index" json:"score"`
	LastResearchedAt *time.Time      `gorm:"type:timestamptz" json:"last_researched_at,omitempty"`
	AddedAt          time.Time       `gorm:"type:timestamptz;autoCreateTime" json:"added_at"`
	Active           bool            `gorm:"not null;default:true;index" json:"active"`
}

func (WatchlistItem) TableName() string {
	return "watchlist"
}

// Research rows are written by the research pipeline; this service only reads
// recent flags from them.
type Research struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol          string          `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Source          string          `gorm:"type:varchar(50);not null" json:"source"`
	Sentiment       decimal.Decimal `gorm:"type:numeric(8,4)" json:"sentiment"`
	SuggestedAction string          `gorm:"type:varchar(10)" json:"suggested_action"`
	Confidence      decimal.Decimal `gorm:"type:numeric(8,4)" json:"confidence"`
	CreatedAt       time.Time       `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (Research) TableName() string {
	return "research"
}
