package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"trader/internal/broker"
	"trader/internal/clock"
	"trader/internal/config"
	"trader/internal/guardian"
	"trader/internal/models"
)

// PlanInput is the read-only view handed to the planning layer. The planner
// answers by calling the trade API, never through the return value.
type PlanInput struct {
	TickID        string                  `json:"tick_id"`
	At            time.Time               `json:"at"`
	Phase         clock.Phase             `json:"phase"`
	State         State                   `json:"state"`
	Account       *broker.AccountSnapshot `json:"account,omitempty"`
	Positions     []models.Position       `json:"positions"`
	PendingOrders []models.Trade          `json:"pending_orders"`
	Watchlist     []WatchQuote            `json:"watchlist"`
	Alerts        []guardian.PriceAlert   `json:"alerts"`
	Research      []ResearchFlag          `json:"research"`
	Reasons       []string                `json:"reasons"`
}

type Planner interface {
	Plan(ctx context.Context, in PlanInput) error
}

// LogPlanner only records the hand-off. Used when no planner endpoint is set.
type LogPlanner struct {
	Logger *zap.Logger
}

func (p LogPlanner) Plan(_ context.Context, in PlanInput) error {
	if p.Logger == nil {
		return nil
	}
	p.Logger.Debug("planner hand-off",
		zap.String("tick_id", in.TickID),
		zap.String("phase", string(in.Phase)),
		zap.Int("positions", len(in.Positions)),
		zap.Int("pending", len(in.PendingOrders)),
		zap.Int("alerts", len(in.Alerts)),
		zap.Strings("reasons", in.Reasons),
	)
	return nil
}

// WebhookPlanner posts PlanInput as JSON to the planning service.
type WebhookPlanner struct {
	HTTP    *http.Client
	URL     string
	Timeout time.Duration
}

// NewPlanner picks the webhook planner when a url is configured.
func NewPlanner(cfg config.PlannerConfig, logger *zap.Logger) Planner {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return LogPlanner{Logger: logger}
	}
	return &WebhookPlanner{
		HTTP:    &http.Client{},
		URL:     strings.TrimSpace(cfg.WebhookURL),
		Timeout: cfg.Timeout,
	}
}

func (p *WebhookPlanner) Plan(ctx context.Context, in PlanInput) error {
	if p == nil || p.URL == "" {
		return fmt.Errorf("planner url is empty")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tick-Id", in.TickID)

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("planner http %d", resp.StatusCode)
	}
	return nil
}
