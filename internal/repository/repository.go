package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/models"
)

type TradeRepository interface {
	InsertTrade(ctx context.Context, item *models.Trade) error
	GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)
	ListTradesByStatus(ctx context.Context, status string) ([]models.Trade, error)
	// TransitionTrade moves a trade to status only while its current status is
	// one of from. It reports whether a row changed.
	TransitionTrade(ctx context.Context, id uint64, from []string, status string, updates map[string]any) (bool, error)
	CountTradesSince(ctx context.Context, since time.Time, side string) (int64, error)
	LatestTradeSince(ctx context.Context, since time.Time) (*models.Trade, error)
	ListTradesSince(ctx context.Context, since time.Time) ([]models.Trade, error)
}

type PositionRepository interface {
	ListPositions(ctx context.Context) ([]models.Position, error)
	GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error)
	// UpsertHolding inserts a new position or refreshes quantity and average cost
	// of an existing one. Price and stop fields of existing rows are preserved.
	UpsertHolding(ctx context.Context, item *models.Position) error
	UpdatePositionMarks(ctx context.Context, id uint64, price, marketValue, unrealized decimal.Decimal) error
	UpdatePositionLevels(ctx context.Context, symbol string, stopLoss, target decimal.NullDecimal) error
	DeletePosition(ctx context.Context, id uint64) error
}

type SnapshotRepository interface {
	// InsertDailySnapshot does nothing when a row for the date already exists.
	InsertDailySnapshot(ctx context.Context, item *models.DailySnapshot) (bool, error)
	LatestDailySnapshot(ctx context.Context) (*models.DailySnapshot, error)
	FirstDailySnapshot(ctx context.Context) (*models.DailySnapshot, error)
	OldestDailySnapshotSince(ctx context.Context, date string) (*models.DailySnapshot, error)
	ListDailySnapshots(ctx context.Context, params ListDailySnapshotsParams) ([]models.DailySnapshot, error)
}

type SettingsRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)

	UpsertRiskSetting(ctx context.Context, item *models.RiskSetting) error
	GetRiskSetting(ctx context.Context, key string) (*models.RiskSetting, error)
	ListRiskSettings(ctx context.Context) ([]models.RiskSetting, error)
}

type ExclusionRepository interface {
	ListExclusions(ctx context.Context) ([]models.Exclusion, error)
	InsertExclusion(ctx context.Context, item *models.Exclusion) error
	DeleteExclusion(ctx context.Context, id uint64) error
}

type AgentLogRepository interface {
	InsertAgentLog(ctx context.Context, item *models.AgentLog) error
	ListAgentLogs(ctx context.Context, params ListAgentLogsParams) ([]models.AgentLog, error)
}

type WatchlistRepository interface {
	ListActiveWatchlist(ctx context.Context, limit int) ([]models.WatchlistItem, error)
	SectorsBySymbol(ctx context.Context, symbols []string) (map[string]string, error)
	ListRecentResearch(ctx context.Context, since time.Time, limit int) ([]models.Research, error)
}

type Repository interface {
	TradeRepository
	PositionRepository
	SnapshotRepository
	SettingsRepository
	ExclusionRepository
	AgentLogRepository
	WatchlistRepository
}

type ListTradesParams struct {
	Limit   int
	Offset  int
	Status  *string
	Symbol  *string
	Side    *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListDailySnapshotsParams struct {
	Limit  int
	Offset int
	Since  *string
	Until  *string
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}

type ListAgentLogsParams struct {
	Limit  int
	Offset int
	Level  *string
	Phase  *string
	Since  *time.Time
}
