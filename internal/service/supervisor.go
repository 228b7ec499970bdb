package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trader/internal/clock"
)

type Alerter interface {
	SendCriticalAlert(ctx context.Context, subject, body string)
}

// Supervisor counts loop failures in a sliding window. When the window
// overflows it alerts once and cancels the root context.
type Supervisor struct {
	MaxFailures int
	Window      time.Duration
	Alerter     Alerter
	Clock       clock.Clock
	Logger      *zap.Logger
	Cancel      context.CancelFunc

	mu       sync.Mutex
	failures []time.Time
	tripped  bool
}

func (s *Supervisor) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// Report records one failure. It reports whether the supervisor tripped.
func (s *Supervisor) Report(component string, err error) bool {
	if s == nil || err == nil {
		return false
	}
	maxFailures := s.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 20
	}
	window := s.Window
	if window <= 0 {
		window = time.Minute
	}

	s.mu.Lock()
	now := s.now()
	cutoff := now.Add(-window)
	kept := s.failures[:0]
	for _, at := range s.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	s.failures = append(kept, now)
	count := len(s.failures)
	trip := !s.tripped && count >= maxFailures
	if trip {
		s.tripped = true
	}
	s.mu.Unlock()

	if s.Logger != nil {
		s.Logger.Warn("supervisor: failure reported",
			zap.String("component", component),
			zap.Int("window_failures", count),
			zap.Error(err),
		)
	}
	if !trip {
		return false
	}

	body := fmt.Sprintf("%d failures within %s (last from %s: %v). Shutting down.", count, window, component, err)
	if s.Logger != nil {
		s.Logger.Error("supervisor: failure storm, shutting down", zap.Int("failures", count))
	}
	if s.Alerter != nil {
		s.Alerter.SendCriticalAlert(context.Background(), "Failure storm", body)
	}
	if s.Cancel != nil {
		s.Cancel()
	}
	return true
}

func (s *Supervisor) Tripped() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripped
}
