package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LogLevelInfo     = "INFO"
	LogLevelWarn     = "WARN"
	LogLevelError    = "ERROR"
	LogLevelDecision = "DECISION"
	LogLevelAction   = "ACTION"
)

// AgentLog is the persisted operational event trail.
type AgentLog struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Level     string         `gorm:"type:varchar(10);not null;index" json:"level"`
	Phase     string         `gorm:"type:varchar(30);index" json:"phase"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Data      datatypes.JSON `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (AgentLog) TableName() string {
	return "agent_logs"
}
