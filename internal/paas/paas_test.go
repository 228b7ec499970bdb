package paas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"trader/internal/config"
)

type platformStub struct {
	mu     sync.Mutex
	logins int
	logs   []CreateLogRequest
	auth   []string
}

func (p *platformStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.logins++
		p.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "tok-1",
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/api/v1/logs", func(w http.ResponseWriter, r *http.Request) {
		var req CreateLogRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		p.mu.Lock()
		p.logs = append(p.logs, req)
		p.auth = append(p.auth, r.Header.Get("Authorization"))
		p.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func TestNewDisabledWithoutConfig(t *testing.T) {
	if c := New(context.Background(), config.PaaSConfig{}, nil); c != nil {
		t.Fatalf("got=%v want=nil", c)
	}
}

func TestAlertLogsAfterLogin(t *testing.T) {
	stub := &platformStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(context.Background(), config.PaaSConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	if c == nil {
		t.Fatalf("expected client")
	}
	if err := c.Alert(context.Background(), "Gateway down", "no session"); err != nil {
		t.Fatalf("alert: %v", err)
	}
	if stub.logins != 1 {
		t.Fatalf("logins got=%d want=1", stub.logins)
	}
	if len(stub.logs) != 1 {
		t.Fatalf("logs got=%d want=1", len(stub.logs))
	}
	got := stub.logs[0]
	if got.Agent != DefaultAgent || got.Action != "critical_alert" || got.Level != "error" {
		t.Fatalf("got=%+v", got)
	}
	if got.Details["subject"] != "Gateway down" {
		t.Fatalf("subject got=%v", got.Details["subject"])
	}
	if stub.auth[0] != "Bearer tok-1" {
		t.Fatalf("auth got=%q", stub.auth[0])
	}
}

func TestLogBestEffortWithoutClient(t *testing.T) {
	// No client attached: must simply return.
	LogBestEffort(context.Background(), "x", "info", nil)
}

func TestRequireBearerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		cfg    config.PaaSConfig
		path   string
		header map[string]string
		want   int
	}{
		{"health open", config.PaaSConfig{}, "/healthz", nil, http.StatusOK},
		{"metrics open", config.PaaSConfig{}, "/metrics", nil, http.StatusOK},
		{"api needs bearer", config.PaaSConfig{}, "/api/v1/positions", nil, http.StatusUnauthorized},
		{"api with bearer", config.PaaSConfig{}, "/api/v1/positions", map[string]string{"Authorization": "Bearer x"}, http.StatusOK},
		{"gateway header required", config.PaaSConfig{RequireGateway: true}, "/api/v1/positions", map[string]string{"Authorization": "Bearer x"}, http.StatusUnauthorized},
		{"gateway header present", config.PaaSConfig{RequireGateway: true}, "/api/v1/positions", map[string]string{"Authorization": "Bearer x", "X-Easyweb3-Project": "p"}, http.StatusOK},
		{"auth disabled", config.PaaSConfig{AuthDisabled: true}, "/api/v1/positions", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequireBearerMiddleware(tc.cfg))
			r.GET("/*any", func(c *gin.Context) { c.Status(http.StatusOK) })
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status got=%d want=%d", w.Code, tc.want)
			}
		})
	}
}

func TestWriteAuditMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &platformStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()
	c := New(context.Background(), config.PaaSConfig{BaseURL: srv.URL, APIKey: "k"}, nil)

	r := gin.New()
	r.Use(PaaSWriteAuditMiddleware(c, nil))
	r.POST("/api/v1/agent/pause", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/agent/state", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/pause", nil)
	req.Header.Set("X-Actor", "ops")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/agent/state", nil))

	if len(stub.logs) != 1 {
		t.Fatalf("logs got=%d want=1", len(stub.logs))
	}
	got := stub.logs[0]
	if got.Action != "trader_agent_write" || got.Level != "info" || got.Details["actor"] != "ops" {
		t.Fatalf("got=%+v", got)
	}
}

func TestAuditAction(t *testing.T) {
	cases := map[string]string{
		"/api/v1/trades":          "trader_trades_write",
		"/api/v1/trades/3/cancel": "trader_trades_write",
		"/api/v1/risk/exclusions": "trader_risk_write",
		"/api/other":              "trader_http_write",
	}
	for path, want := range cases {
		if got := auditAction(path); got != want {
			t.Fatalf("%s got=%q want=%q", path, got, want)
		}
	}
}
