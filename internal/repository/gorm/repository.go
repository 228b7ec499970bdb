package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trader/internal/models"
	"trader/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Symbol = strings.ToUpper(strings.TrimSpace(item.Symbol))
	if item.Status == "" {
		item.Status = models.TradeStatusPending
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).Model(&models.Trade{}).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyTradeFilters(s.db.WithContext(ctx).Model(&models.Trade{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Trade
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := applyTradeFilters(s.db.WithContext(ctx).Model(&models.Trade{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyTradeFilters(query *gorm.DB, params repository.ListTradesParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.ToUpper(strings.TrimSpace(*params.Status)))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.ToUpper(strings.TrimSpace(*params.Symbol)))
	}
	if params.Side != nil && strings.TrimSpace(*params.Side) != "" {
		query = query.Where("side = ?", strings.ToUpper(strings.TrimSpace(*params.Side)))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", params.Since.UTC())
	}
	return query
}

func (s *Store) ListTradesByStatus(ctx context.Context, status string) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, nil
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("status = ?", status).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) TransitionTrade(ctx context.Context, id uint64, from []string, status string, updates map[string]any) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	from = cleanStrings(from)
	if id == 0 || strings.TrimSpace(status) == "" || len(from) == 0 {
		return false, nil
	}
	next := map[string]any{
		"status":     strings.TrimSpace(status),
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		next[k] = v
	}
	res := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) CountTradesSince(ctx context.Context, since time.Time, side string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Trade{}).Where("created_at >= ?", since.UTC())
	if side = strings.ToUpper(strings.TrimSpace(side)); side != "" {
		query = query.Where("side = ?", side)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) LatestTradeSince(ctx context.Context, since time.Time) (*models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("created_at >= ?", since.UTC()).
		Order("created_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTradesSince(ctx context.Context, since time.Time) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("created_at >= ?", since.UTC()).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Positions --------------------------------------------------------------

func (s *Store) ListPositions(ctx context.Context) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	if err := s.db.WithContext(ctx).Model(&models.Position{}).
		Order("symbol asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).Model(&models.Position{}).Where("symbol = ?", symbol).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertHolding(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Symbol = strings.ToUpper(strings.TrimSpace(item.Symbol))
	if item.Symbol == "" || item.Quantity == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quantity",
			"avg_cost",
			"synced_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) UpdatePositionMarks(ctx context.Context, id uint64, price, marketValue, unrealized decimal.Decimal) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Position{}).Where("id = ?", id).Updates(map[string]any{
		"current_price":  price,
		"market_value":   marketValue,
		"unrealized_pnl": unrealized,
		"updated_at":     time.Now().UTC(),
	}).Error
}

func (s *Store) UpdatePositionLevels(ctx context.Context, symbol string, stopLoss, target decimal.NullDecimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Position{}).Where("symbol = ?", symbol).Updates(map[string]any{
		"stop_loss_price": stopLoss,
		"target_price":    target,
		"updated_at":      time.Now().UTC(),
	}).Error
}

func (s *Store) DeletePosition(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Position{}).Error
}

// --- Daily snapshots --------------------------------------------------------

func (s *Store) InsertDailySnapshot(ctx context.Context, item *models.DailySnapshot) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	if strings.TrimSpace(item.Date) == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) LatestDailySnapshot(ctx context.Context) (*models.DailySnapshot, error) {
	return s.firstSnapshot(ctx, "date desc", "")
}

func (s *Store) FirstDailySnapshot(ctx context.Context) (*models.DailySnapshot, error) {
	return s.firstSnapshot(ctx, "date asc", "")
}

func (s *Store) OldestDailySnapshotSince(ctx context.Context, date string) (*models.DailySnapshot, error) {
	return s.firstSnapshot(ctx, "date asc", date)
}

func (s *Store) firstSnapshot(ctx context.Context, order, since string) (*models.DailySnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailySnapshot{})
	if since = strings.TrimSpace(since); since != "" {
		query = query.Where("date >= ?", since)
	}
	var item models.DailySnapshot
	err := query.Order(order).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListDailySnapshots(ctx context.Context, params repository.ListDailySnapshotsParams) ([]models.DailySnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailySnapshot{})
	if params.Since != nil && strings.TrimSpace(*params.Since) != "" {
		query = query.Where("date >= ?", strings.TrimSpace(*params.Since))
	}
	if params.Until != nil && strings.TrimSpace(*params.Until) != "" {
		query = query.Where("date <= ?", strings.TrimSpace(*params.Until))
	}
	limit := normalizeLimit(params.Limit, 60)
	offset := normalizeOffset(params.Offset)
	var items []models.DailySnapshot
	if err := query.Order("date desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Settings ---------------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_by",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertRiskSetting(ctx context.Context, item *models.RiskSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetRiskSetting(ctx context.Context, key string) (*models.RiskSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.RiskSetting
	err := s.db.WithContext(ctx).Model(&models.RiskSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRiskSettings(ctx context.Context) ([]models.RiskSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.RiskSetting
	if err := s.db.WithContext(ctx).Model(&models.RiskSetting{}).Order("key asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Exclusions -------------------------------------------------------------

func (s *Store) ListExclusions(ctx context.Context) ([]models.Exclusion, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Exclusion
	if err := s.db.WithContext(ctx).Model(&models.Exclusion{}).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertExclusion(ctx context.Context, item *models.Exclusion) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) DeleteExclusion(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Exclusion{}).Error
}

// --- Agent logs -------------------------------------------------------------

func (s *Store) InsertAgentLog(ctx context.Context, item *models.AgentLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListAgentLogs(ctx context.Context, params repository.ListAgentLogsParams) ([]models.AgentLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.AgentLog{})
	if params.Level != nil && strings.TrimSpace(*params.Level) != "" {
		query = query.Where("level = ?", strings.ToUpper(strings.TrimSpace(*params.Level)))
	}
	if params.Phase != nil && strings.TrimSpace(*params.Phase) != "" {
		query = query.Where("phase = ?", strings.TrimSpace(*params.Phase))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", params.Since.UTC())
	}
	var items []models.AgentLog
	if err := query.Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Watchlist & research ---------------------------------------------------

func (s *Store) ListActiveWatchlist(ctx context.Context, limit int) ([]models.WatchlistItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.WatchlistItem
	if err := s.db.WithContext(ctx).Model(&models.WatchlistItem{}).
		Where("active = ?", true).
		Order("score desc").
		Limit(normalizeLimit(limit, 20)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SectorsBySymbol(ctx context.Context, symbols []string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	symbols = cleanStrings(symbols)
	if len(symbols) == 0 {
		return map[string]string{}, nil
	}
	var rows []models.WatchlistItem
	if err := s.db.WithContext(ctx).Model(&models.WatchlistItem{}).
		Select("symbol", "sector").
		Where("symbol IN ?", symbols).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		if sector := strings.TrimSpace(r.Sector); sector != "" {
			out[r.Symbol] = sector
		}
	}
	return out, nil
}

func (s *Store) ListRecentResearch(ctx context.Context, since time.Time, limit int) ([]models.Research, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Research
	if err := s.db.WithContext(ctx).Model(&models.Research{}).
		Where("created_at >= ?", since.UTC()).
		Order("created_at desc").
		Limit(normalizeLimit(limit, 20)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

var _ repository.Repository = (*Store)(nil)
