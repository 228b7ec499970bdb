package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Trader Service

Unattended LSE equity trading core: gateway session, order lifecycle,
risk gate and position guardian. Intended to be reached through the
easyweb3 PaaS Gateway.

## Access via PaaS

Base path (through gateway):
- /api/v1/services/trader/

## Auth

All /api/* routes require a Bearer token (validated by the PaaS gateway).
Health endpoints and /metrics are public.

## Notable Routes (upstream)

- GET /healthz
- GET /readyz
- GET /metrics
- GET /swagger/index.html
- GET /api/v1/trades
- POST /api/v1/trades
- POST /api/v1/trades/:id/cancel
- GET /api/v1/positions
- POST /api/v1/risk/check
- GET /api/v1/risk/limits
- GET /api/v1/risk/settings
- GET /api/v1/risk/exclusions
- GET /api/v1/agent/state
- POST /api/v1/agent/pause
- POST /api/v1/agent/resume
- GET /api/v1/agent/logs
- GET /api/v1/snapshots
`)
	})
}
