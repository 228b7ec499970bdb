package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"trader/internal/models"
)

var ErrInvalidExclusion = errors.New("invalid exclusion")

type ExclusionStore interface {
	ListExclusions(ctx context.Context) ([]models.Exclusion, error)
	InsertExclusion(ctx context.Context, item *models.Exclusion) error
	DeleteExclusion(ctx context.Context, id uint64) error
}

// ExclusionSet is an immutable deny-list snapshot.
type ExclusionSet struct {
	symbols map[string]string
	sectors map[string]string
	sic     map[string]string
}

func NewExclusionSet(items []models.Exclusion) *ExclusionSet {
	s := &ExclusionSet{
		symbols: map[string]string{},
		sectors: map[string]string{},
		sic:     map[string]string{},
	}
	for _, it := range items {
		v := strings.TrimSpace(it.Value)
		if v == "" {
			continue
		}
		switch it.Type {
		case models.ExclusionSymbol:
			s.symbols[strings.ToUpper(v)] = it.Reason
		case models.ExclusionSector:
			s.sectors[strings.ToLower(v)] = it.Reason
		case models.ExclusionSICCode:
			s.sic[v] = it.Reason
		}
	}
	return s
}

func (s *ExclusionSet) Symbol(symbol string) (string, bool) {
	if s == nil {
		return "", false
	}
	r, ok := s.symbols[strings.ToUpper(strings.TrimSpace(symbol))]
	return r, ok
}

func (s *ExclusionSet) Sector(sector string) (string, bool) {
	if s == nil || strings.TrimSpace(sector) == "" {
		return "", false
	}
	r, ok := s.sectors[strings.ToLower(strings.TrimSpace(sector))]
	return r, ok
}

// SICCode matches exactly.
func (s *ExclusionSet) SICCode(code string) (string, bool) {
	if s == nil {
		return "", false
	}
	r, ok := s.sic[code]
	return r, ok
}

func (s *ExclusionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.symbols) + len(s.sectors) + len(s.sic)
}

// Exclusions caches the deny list. Every write through it clears the cache.
type Exclusions struct {
	Repo   ExclusionStore
	Logger *zap.Logger

	mu  sync.Mutex
	set *ExclusionSet
}

func (e *Exclusions) Load(ctx context.Context) (*ExclusionSet, error) {
	if e == nil || e.Repo == nil {
		return NewExclusionSet(nil), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set != nil {
		return e.set, nil
	}
	items, err := e.Repo.ListExclusions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exclusions: %w", err)
	}
	e.set = NewExclusionSet(items)
	return e.set, nil
}

func (e *Exclusions) Invalidate() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.set = nil
	e.mu.Unlock()
}

func (e *Exclusions) List(ctx context.Context) ([]models.Exclusion, error) {
	if e == nil || e.Repo == nil {
		return nil, nil
	}
	return e.Repo.ListExclusions(ctx)
}

func (e *Exclusions) Add(ctx context.Context, item *models.Exclusion) error {
	if e == nil || e.Repo == nil || item == nil {
		return nil
	}
	item.Type = strings.ToUpper(strings.TrimSpace(item.Type))
	item.Value = strings.TrimSpace(item.Value)
	item.Reason = strings.TrimSpace(item.Reason)
	switch item.Type {
	case models.ExclusionSymbol, models.ExclusionSector, models.ExclusionSICCode:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidExclusion, item.Type)
	}
	if item.Value == "" || item.Reason == "" {
		return fmt.Errorf("%w: value and reason are required", ErrInvalidExclusion)
	}
	defer e.Invalidate()
	return e.Repo.InsertExclusion(ctx, item)
}

func (e *Exclusions) Remove(ctx context.Context, id uint64) error {
	if e == nil || e.Repo == nil {
		return nil
	}
	defer e.Invalidate()
	return e.Repo.DeleteExclusion(ctx, id)
}

// DefaultExclusions is the ethical screen applied to a fresh database.
func DefaultExclusions() []models.Exclusion {
	return []models.Exclusion{
		{Type: models.ExclusionSICCode, Value: "3484", Reason: "Small arms manufacturing"},
		{Type: models.ExclusionSICCode, Value: "3489", Reason: "Ordnance and accessories"},
		{Type: models.ExclusionSICCode, Value: "3761", Reason: "Guided missiles and space vehicles"},
		{Type: models.ExclusionSICCode, Value: "3764", Reason: "Guided missile propulsion units"},
		{Type: models.ExclusionSICCode, Value: "3769", Reason: "Guided missile parts"},
		{Type: models.ExclusionSector, Value: "Tobacco", Reason: "Tobacco products"},
		{Type: models.ExclusionSector, Value: "Gambling", Reason: "Gambling and betting"},
		{Type: models.ExclusionSector, Value: "Weapons", Reason: "Weapons manufacturing"},
		{Type: models.ExclusionSector, Value: "Defense", Reason: "Defense contractors"},
		{Type: models.ExclusionSymbol, Value: "BAT", Reason: "British American Tobacco"},
		{Type: models.ExclusionSymbol, Value: "IMB", Reason: "Imperial Brands (tobacco)"},
		{Type: models.ExclusionSymbol, Value: "BAE", Reason: "BAE Systems (defense)"},
	}
}

// SeedDefaults inserts DefaultExclusions when the table is empty.
func (e *Exclusions) SeedDefaults(ctx context.Context) (int, error) {
	if e == nil || e.Repo == nil {
		return 0, nil
	}
	existing, err := e.Repo.ListExclusions(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	n := 0
	for _, item := range DefaultExclusions() {
		item := item
		if err := e.Repo.InsertExclusion(ctx, &item); err != nil {
			return n, err
		}
		n++
	}
	e.Invalidate()
	if e.Logger != nil && n > 0 {
		e.Logger.Info("risk: seeded exclusions", zap.Int("count", n))
	}
	return n, nil
}
