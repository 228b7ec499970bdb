package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"trader/internal/models"
)

const (
	// SwitchTradingPaused rejects every BUY and idles the orchestrator tick.
	SwitchTradingPaused = "trading.paused"

	FeatureGuardian       = "feature.guardian"
	FeatureOrderReconcile = "feature.order_reconcile"
	FeatureOrchestrator   = "feature.orchestrator"
	FeatureDailySnapshot  = "feature.daily_snapshot"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		SwitchTradingPaused:   false,
		FeatureGuardian:       true,
		FeatureOrderReconcile: true,
		FeatureOrchestrator:   true,
		FeatureDailySnapshot:  true,
	}
}

type SettingsStore interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
}

type SystemSettingsService struct {
	Repo SettingsStore
}

// EnsureDefaultSwitches writes missing switches. Existing values are kept.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool, by string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedBy:   by,
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// IsPaused fails closed: a switch that cannot be read counts as paused. A
// missing row means not paused.
func (s *SystemSettingsService) IsPaused(ctx context.Context) bool {
	if s == nil || s.Repo == nil {
		return false
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, SwitchTradingPaused)
	if err != nil {
		return true
	}
	if item == nil || len(item.Value) == 0 {
		return false
	}
	var paused bool
	if err := json.Unmarshal(item.Value, &paused); err != nil {
		return true
	}
	return paused
}

func (s *SystemSettingsService) SetPaused(ctx context.Context, paused bool, by string) error {
	return s.SetEnabled(ctx, SwitchTradingPaused, paused, by)
}
