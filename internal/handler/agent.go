package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trader/internal/broker"
	"trader/internal/clock"
	"trader/internal/models"
	"trader/internal/orchestrator"
	"trader/internal/paas"
	"trader/internal/repository"
	"trader/internal/service"
)

type AgentStore interface {
	InsertAgentLog(ctx context.Context, item *models.AgentLog) error
	ListAgentLogs(ctx context.Context, params repository.ListAgentLogsParams) ([]models.AgentLog, error)
	ListDailySnapshots(ctx context.Context, params repository.ListDailySnapshotsParams) ([]models.DailySnapshot, error)
}

// StateSource is satisfied by *orchestrator.Orchestrator.
type StateSource interface {
	State() orchestrator.State
}

// AlertCounter is satisfied by *guardian.AlertQueue.
type AlertCounter interface {
	Len() int
}

type AgentHandler struct {
	Repo    AgentStore
	Flags   *service.SystemSettingsService
	State   StateSource
	Gateway broker.ConnectionStatus
	Alerts  AlertCounter
	Clock   clock.Clock
	Paper   bool
	Logger  *zap.Logger
}

func (h *AgentHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/agent")
	g.GET("/state", h.state)
	g.POST("/pause", h.pause)
	g.POST("/resume", h.resume)
	g.GET("/logs", h.logs)

	r.GET("/api/v1/snapshots", h.snapshots)
}

type agentStateResponse struct {
	State            orchestrator.State `json:"state"`
	Phase            clock.Phase        `json:"phase"`
	Paused           bool               `json:"paused"`
	Paper            bool               `json:"paper"`
	GatewayConnected bool               `json:"gateway_connected"`
	PendingAlerts    int                `json:"pending_alerts"`
	At               time.Time          `json:"at"`
}

func (h *AgentHandler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock.Now()
}

// @Summary Agent state
// @Tags agent
// @Success 200 {object} apiResponse
// @Router /api/v1/agent/state [get]
func (h *AgentHandler) state(c *gin.Context) {
	now := h.now()
	out := agentStateResponse{
		State:  orchestrator.StateIdle,
		Phase:  clock.PhaseAt(now),
		Paused: h.Flags.IsPaused(c.Request.Context()),
		Paper:  h.Paper,
		At:     now.UTC(),
	}
	if h.State != nil {
		out.State = h.State.State()
	}
	if h.Gateway != nil {
		out.GatewayConnected = h.Gateway.IsConnected()
	}
	if h.Alerts != nil {
		out.PendingAlerts = h.Alerts.Len()
	}
	Ok(c, out, nil)
}

// @Summary Pause trading
// @Description Rejects every BUY and idles the orchestrator. Stop-losses keep running.
// @Tags agent
// @Success 200 {object} apiResponse
// @Router /api/v1/agent/pause [post]
func (h *AgentHandler) pause(c *gin.Context) {
	h.setPaused(c, true)
}

// @Summary Resume trading
// @Tags agent
// @Success 200 {object} apiResponse
// @Router /api/v1/agent/resume [post]
func (h *AgentHandler) resume(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *AgentHandler) setPaused(c *gin.Context, paused bool) {
	if h.Flags == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	ctx := c.Request.Context()
	by := actor(c)
	if err := h.Flags.SetPaused(ctx, paused, by); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	msg := "Trading resumed by " + by
	if paused {
		msg = "Trading paused by " + by
	}
	if h.Logger != nil {
		h.Logger.Warn("trading pause state changed", zap.Bool("paused", paused), zap.String("by", by))
	}
	if h.Repo != nil {
		if err := h.Repo.InsertAgentLog(ctx, &models.AgentLog{Level: models.LogLevelWarn, Phase: "control", Message: msg}); err != nil && h.Logger != nil {
			h.Logger.Warn("agent log write failed", zap.Error(err))
		}
	}
	paas.LogBestEffort(ctx, "trader_pause_changed", "warn", map[string]any{"paused": paused, "by": by})
	Ok(c, map[string]any{"paused": h.Flags.IsPaused(ctx)}, nil)
}

// @Summary Agent event log
// @Tags agent
// @Param level query string false "INFO|WARN|ERROR|DECISION|ACTION"
// @Param phase query string false "phase"
// @Param since query string false "RFC3339 or 2006-01-02"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/agent/logs [get]
func (h *AgentHandler) logs(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListAgentLogs(c.Request.Context(), repository.ListAgentLogsParams{
		Limit:  limit,
		Offset: offset,
		Level:  upperQueryPtr(c, "level"),
		Phase:  stringQueryPtr(c, "phase"),
		Since:  timeQueryPtr(c, "since"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset})
}

// @Summary Daily snapshots
// @Tags agent
// @Param since query string false "2006-01-02"
// @Param until query string false "2006-01-02"
// @Param limit query int false "limit"
// @Success 200 {object} apiResponse
// @Router /api/v1/snapshots [get]
func (h *AgentHandler) snapshots(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 30)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListDailySnapshots(c.Request.Context(), repository.ListDailySnapshotsParams{
		Limit:  limit,
		Offset: offset,
		Since:  stringQueryPtr(c, "since"),
		Until:  stringQueryPtr(c, "until"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset})
}
