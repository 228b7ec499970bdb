package broker

import (
	"context"

	"trader/internal/models"
)

// TradeStore is the persistence the order lifecycle needs.
type TradeStore interface {
	InsertTrade(ctx context.Context, item *models.Trade) error
	GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error)
	ListTradesByStatus(ctx context.Context, status string) ([]models.Trade, error)
	TransitionTrade(ctx context.Context, id uint64, from []string, status string, updates map[string]any) (bool, error)
}

// EventLog persists operational events to agent_logs.
type EventLog interface {
	InsertAgentLog(ctx context.Context, item *models.AgentLog) error
}
