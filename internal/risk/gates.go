package risk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trader/internal/broker"
	"trader/internal/clock"
	"trader/internal/metrics"
	"trader/internal/models"
)

type GateInput struct {
	Side         string
	Quantity     int64
	Confidence   float64
	Phase        clock.Phase
	Paper        bool
	Paused       bool
	HeldQuantity int64
	RiskApproved bool
	RiskReasons  []string
}

// CheckTradeGates returns the first failing gate, or "" when the trade may
// proceed.
func CheckTradeGates(in GateInput) string {
	switch in.Side {
	case models.SideSell:
		if ISANoShorting && in.Quantity > in.HeldQuantity {
			return fmt.Sprintf("Cannot sell %d: only %d held (no shorting)", in.Quantity, in.HeldQuantity)
		}
	case models.SideBuy:
		if in.Paused {
			return "Trading is paused"
		}
		minConf := MinConfidence(in.Paper)
		if in.Confidence < minConf {
			return fmt.Sprintf("Confidence %s below minimum %s", formatFloat(in.Confidence), formatFloat(minConf))
		}
		if in.Phase == clock.PhaseWindDown || in.Phase == clock.PhasePostMarket {
			return fmt.Sprintf("BUY orders rejected during %s", in.Phase)
		}
		if !in.RiskApproved {
			return "Risk check failed: " + strings.Join(in.RiskReasons, "; ")
		}
	}
	return ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type PauseSource interface {
	IsPaused(ctx context.Context) bool
}

type HoldingSource interface {
	GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error)
}

// Gates runs the trade gates and, for BUYs, the risk gate in front of order
// submission.
type Gates struct {
	Risk      *Manager
	Positions HoldingSource
	Pause     PauseSource
	Clock     clock.Clock
	Logger    *zap.Logger
	Paper     bool
}

type GateResult struct {
	Allowed bool      `json:"allowed"`
	Reason  string    `json:"reason,omitempty"`
	Risk    *Decision `json:"risk,omitempty"`
}

// Evaluate expects a normalized request.
func (g *Gates) Evaluate(ctx context.Context, req broker.TradeRequest) (GateResult, error) {
	in := GateInput{
		Side:     req.Side,
		Quantity: req.Quantity,
		Paper:    g.Paper,
		Phase:    clock.PhaseAt(g.now()),
	}
	if req.Confidence != nil {
		in.Confidence = *req.Confidence
	}
	if g.Pause != nil {
		in.Paused = g.Pause.IsPaused(ctx)
	}

	var decision *Decision
	switch req.Side {
	case models.SideSell:
		if g.Positions != nil {
			pos, err := g.Positions.GetPositionBySymbol(ctx, req.Symbol)
			if err != nil {
				return GateResult{}, fmt.Errorf("load position: %w", err)
			}
			if pos != nil {
				in.HeldQuantity = pos.Quantity
			}
		}
	case models.SideBuy:
		in.RiskApproved = true
		if g.Risk != nil {
			p := Proposal{Symbol: req.Symbol, Side: req.Side, Quantity: req.Quantity}
			if req.LimitPrice.Valid {
				p.Price = req.LimitPrice.Decimal
			}
			d, err := g.Risk.Check(ctx, p)
			if err != nil && g.Logger != nil {
				g.Logger.Warn("gates: risk check degraded", zap.Error(err))
			}
			decision = &d
			in.RiskApproved = d.Approved
			in.RiskReasons = d.Reasons
		}
	}

	reason := CheckTradeGates(in)
	if reason != "" {
		metrics.RiskRejections.WithLabelValues("gates").Inc()
		if g.Logger != nil {
			g.Logger.Info("gates: trade rejected",
				zap.String("symbol", req.Symbol),
				zap.String("side", req.Side),
				zap.String("reason", reason),
			)
		}
		return GateResult{Allowed: false, Reason: reason, Risk: decision}, nil
	}
	return GateResult{Allowed: true, Risk: decision}, nil
}

func (g *Gates) now() time.Time {
	if g.Clock == nil {
		return clock.Real{}.Now()
	}
	return g.Clock.Now()
}
