package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"trader/internal/models"
)

var (
	// ErrHardLimitKey is returned when a soft-settings write names a hard limit.
	ErrHardLimitKey      = errors.New("hard limit is not configurable")
	ErrUnknownSettingKey = errors.New("unknown risk setting")
)

type SettingsStore interface {
	UpsertRiskSetting(ctx context.Context, item *models.RiskSetting) error
	GetRiskSetting(ctx context.Context, key string) (*models.RiskSetting, error)
	ListRiskSettings(ctx context.Context) ([]models.RiskSetting, error)
}

type softDefault struct {
	value       decimal.Decimal
	description string
}

// Soft keys tune research scoring and watchlist sizing. None of them feed the
// risk gate.
var softDefaults = map[string]softDefault{
	"score_weight_momentum":  {decimal.RequireFromString("0.3"), "Weight of price momentum in candidate scoring"},
	"score_weight_value":     {decimal.RequireFromString("0.2"), "Weight of valuation in candidate scoring"},
	"score_weight_sentiment": {decimal.RequireFromString("0.3"), "Weight of news sentiment in candidate scoring"},
	"score_weight_liquidity": {decimal.RequireFromString("0.2"), "Weight of liquidity in candidate scoring"},
	"watchlist_max_size":     {decimal.NewFromInt(30), "Maximum active watchlist entries"},
	"watchlist_min_score":    {decimal.NewFromInt(50), "Minimum score to stay on the watchlist"},
}

func SoftKeys() []string {
	keys := make([]string, 0, len(softDefaults))
	for k := range softDefaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Settings struct {
	Repo SettingsStore
}

func (s *Settings) EnsureDefaults(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	for _, key := range SoftKeys() {
		existing, err := s.Repo.GetRiskSetting(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		d := softDefaults[key]
		if err := s.Repo.UpsertRiskSetting(ctx, &models.RiskSetting{Key: key, Value: d.value, Description: d.description}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Settings) List(ctx context.Context) ([]models.RiskSetting, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListRiskSettings(ctx)
}

// Get returns the stored value, or the default when no row exists.
func (s *Settings) Get(ctx context.Context, key string) (decimal.Decimal, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	d, ok := softDefaults[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSettingKey, key)
	}
	if s == nil || s.Repo == nil {
		return d.value, nil
	}
	item, err := s.Repo.GetRiskSetting(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	if item == nil {
		return d.value, nil
	}
	return item.Value, nil
}

func (s *Settings) Set(ctx context.Context, key string, value decimal.Decimal) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if IsHardLimitKey(key) {
		return fmt.Errorf("%w: %s", ErrHardLimitKey, key)
	}
	d, ok := softDefaults[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSettingKey, key)
	}
	if value.IsNegative() {
		return fmt.Errorf("%s must not be negative", key)
	}
	if s == nil || s.Repo == nil {
		return nil
	}
	return s.Repo.UpsertRiskSetting(ctx, &models.RiskSetting{Key: key, Value: value, Description: d.description})
}
