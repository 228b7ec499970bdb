package paas

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trader/internal/config"
)

func openPath(p string) bool {
	return p == "/healthz" || p == "/readyz" || p == "/metrics"
}

func protectedPath(p string) bool {
	return strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/swagger") || p == "/docs"
}

// RequireBearerMiddleware checks for a bearer token on /api, /swagger and
// /docs. The token itself is validated upstream by the platform gateway.
func RequireBearerMiddleware(cfg config.PaaSConfig) gin.HandlerFunc {
	if cfg.AuthDisabled {
		return func(c *gin.Context) { c.Next() }
	}
	requireGatewayHeader := cfg.RequireGateway

	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if openPath(p) || !protectedPath(p) {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing bearer token"})
			return
		}
		if requireGatewayHeader && strings.TrimSpace(c.GetHeader("X-Easyweb3-Project")) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing X-Easyweb3-Project"})
			return
		}
		c.Next()
	}
}

// auditAction names a write by the API area it touched.
func auditAction(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if rest == path {
		return "trader_http_write"
	}
	area, _, _ := strings.Cut(rest, "/")
	if area == "" {
		return "trader_http_write"
	}
	return "trader_" + area + "_write"
}

// PaaSWriteAuditMiddleware forwards every non-GET /api call to the platform
// log. Trades, risk edits and pause/resume all land there with their actor.
func PaaSWriteAuditMiddleware(p *Client, logger *zap.Logger) gin.HandlerFunc {
	if p == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		method := strings.ToUpper(c.Request.Method)
		if !strings.HasPrefix(path, "/api/") {
			return
		}
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		status := c.Writer.Status()
		actor := strings.TrimSpace(c.GetHeader("X-Easyweb3-User"))
		if actor == "" {
			actor = strings.TrimSpace(c.GetHeader("X-Actor"))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := p.CreateLog(ctx, CreateLogRequest{
			Action: auditAction(path),
			Level:  levelFromStatus(status),
			Details: map[string]any{
				"method":   method,
				"path":     path,
				"status":   status,
				"duration": time.Since(start).String(),
				"actor":    actor,
				"project":  strings.TrimSpace(c.GetHeader("X-Easyweb3-Project")),
			},
		})
		if err != nil && logger != nil {
			logger.Debug("paas audit log failed", zap.Error(err))
		}
	}
}

func levelFromStatus(status int) string {
	switch {
	case status >= 500:
		return "error"
	case status >= 400:
		return "warn"
	default:
		return "info"
	}
}
