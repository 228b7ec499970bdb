package risk

import (
	"context"
	"errors"
	"testing"
)

func TestSettingsRejectsHardKeys(t *testing.T) {
	s := &Settings{Repo: &memStore{}}
	ctx := context.Background()

	for _, key := range []string{"max_position_gbp", "DAILY_LOSS_LIMIT_PCT", "min_trade_interval_min"} {
		if err := s.Set(ctx, key, d("1")); !errors.Is(err, ErrHardLimitKey) {
			t.Fatalf("key=%s got err=%v want ErrHardLimitKey", key, err)
		}
	}
	if err := s.Set(ctx, "made_up", d("1")); !errors.Is(err, ErrUnknownSettingKey) {
		t.Fatalf("got err=%v want ErrUnknownSettingKey", err)
	}
}

func TestSettingsDefaultsAndOverride(t *testing.T) {
	store := &memStore{}
	s := &Settings{Repo: store}
	ctx := context.Background()

	if err := s.EnsureDefaults(ctx); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	if len(store.settings) != len(SoftKeys()) {
		t.Fatalf("got=%d want=%d rows", len(store.settings), len(SoftKeys()))
	}
	if err := s.Set(ctx, "watchlist_max_size", d("40")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.EnsureDefaults(ctx); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	got, err := s.Get(ctx, "watchlist_max_size")
	if err != nil || !got.Equal(d("40")) {
		t.Fatalf("got=%s err=%v want=40", got, err)
	}
}
