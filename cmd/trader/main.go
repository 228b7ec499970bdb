package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trader/internal/alert"
	"trader/internal/broker"
	"trader/internal/cache"
	"trader/internal/client/fmp"
	"trader/internal/client/gateway"
	"trader/internal/clock"
	"trader/internal/config"
	cronrunner "trader/internal/cron"
	"trader/internal/db"
	"trader/internal/guardian"
	"trader/internal/handler"
	"trader/internal/logger"
	"trader/internal/metrics"
	"trader/internal/orchestrator"
	"trader/internal/paas"
	gormrepository "trader/internal/repository/gorm"
	"trader/internal/risk"
	"trader/internal/service"

	_ "trader/docs"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("TRADER_ENV_FILE")); err != nil {
		panic(err)
	}

	cfgPath := os.Getenv("TRADER_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TRADER_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	mode := "live"
	if cfg.App.PaperTrading {
		mode = "paper"
	}
	logger.Info("trader starting", zap.String("mode", mode), zap.String("env", cfg.App.Env))

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// The supervisor cancels this one on a failure storm.
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(ctx); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}
	riskSettings := &risk.Settings{Repo: store}
	if err := riskSettings.EnsureDefaults(ctx); err != nil {
		logger.Warn("init risk settings failed", zap.Error(err))
	}
	exclusions := &risk.Exclusions{Repo: store, Logger: logger}
	if n, err := exclusions.SeedDefaults(ctx); err != nil {
		logger.Warn("seed exclusions failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("seeded default exclusions", zap.Int("count", n))
	}

	paasClient := paas.New(ctx, cfg.PaaS, logger)
	notifier := alert.NewNotifier(cfg.Alert, paasClient, logger)
	defer notifier.Wait()

	supervisor := &service.Supervisor{
		MaxFailures: cfg.Supervisor.MaxFailures,
		Window:      cfg.Supervisor.Window,
		Alerter:     notifier,
		Clock:       clock.Real{},
		Logger:      logger,
		Cancel:      shutdown,
	}

	gw := gateway.NewClient(nil, gateway.Options{
		BaseURL:   cfg.Gateway.BaseURL,
		WSURL:     cfg.Gateway.WSURL,
		AccountID: cfg.Gateway.AccountID,
		Timeout:   cfg.Gateway.RequestTimeout,
	})
	conn := broker.NewConnectionManager(gw, cfg.Gateway, notifier, clock.Real{}, logger.Named("connection"))
	if err := conn.Connect(ctx); err != nil {
		notifier.SendCriticalAlert(ctx, "Gateway connect failed", err.Error())
		notifier.Wait()
		logger.Fatal("gateway connect failed", zap.Error(err))
	}

	tracker := broker.NewOrderTracker(gw, store, clock.Real{}, logger.Named("tracker"), cfg.Gateway.ResubscribeDelay)
	orders := &broker.OrderService{
		Gateway: gw,
		Store:   store,
		Tracker: tracker,
		Conn:    conn,
		Clock:   clock.Real{},
		Logger:  logger.Named("orders"),
		Timeout: cfg.Gateway.RequestTimeout,
		Mode:    mode,
	}
	account := &broker.AccountService{Gateway: gw, Logger: logger, Timeout: cfg.Gateway.RequestTimeout}
	market := &broker.MarketData{Gateway: gw, Logger: logger, Timeout: cfg.Gateway.RequestTimeout}
	if strings.TrimSpace(cfg.FMP.APIKey) != "" {
		market.Fallback = fmp.NewClient(nil, cfg.FMP.BaseURL, cfg.FMP.APIKey, cfg.FMP.Timeout)
	}
	reconciler := &broker.Reconciler{
		Gateway: gw,
		Store:   store,
		Events:  store,
		Tracker: tracker,
		Clock:   clock.Real{},
		Logger:  logger.Named("reconciler"),
		Timeout: cfg.Gateway.RequestTimeout,
	}

	riskMgr := &risk.Manager{
		Repo:       store,
		Account:    account,
		Quotes:     market,
		Liquidity:  &risk.Liquidity{Bars: market, Cache: cache.New(cfg.Redis), Logger: logger},
		Exclusions: exclusions,
		Clock:      clock.Real{},
		Logger:     logger.Named("risk"),
		Paper:      cfg.App.PaperTrading,
	}
	gates := &risk.Gates{
		Risk:      riskMgr,
		Positions: store,
		Pause:     settingsSvc,
		Clock:     clock.Real{},
		Logger:    logger,
		Paper:     cfg.App.PaperTrading,
	}

	alerts := &guardian.AlertQueue{}
	guard := &guardian.Guardian{
		Repo:              store,
		Quotes:            market,
		Orders:            orders,
		Cleanup:           reconciler,
		Alerts:            alerts,
		Flags:             settingsSvc,
		Failures:          supervisor,
		Clock:             clock.Real{},
		Logger:            logger.Named("guardian"),
		Interval:          cfg.Guardian.Interval,
		AlertThresholdPct: decimal.NewFromFloat(cfg.Guardian.AlertThresholdPct),
		WatchlistLimit:    cfg.Guardian.WatchlistLimit,
	}

	orch := &orchestrator.Orchestrator{
		Repo:    store,
		Account: account,
		Quotes:  market,
		Alerts:  alerts,
		Planner: orchestrator.NewPlanner(cfg.Planner, logger.Named("planner")),
		Cleanup: reconciler,
		Flags:   settingsSvc,
		Clock:   clock.Real{},
		Logger:  logger.Named("orchestrator"),
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(paas.RequireBearerMiddleware(cfg.PaaS))
	engine.Use(paas.InjectClientMiddleware(paasClient))
	engine.Use(paas.PaaSWriteAuditMiddleware(paasClient, logger))

	healthHandler := &handler.HealthHandler{DB: dbConn, Gateway: conn}
	healthHandler.Register(engine)
	paas.RegisterDocs(engine)
	engine.GET("/metrics", metrics.Handler())

	tradeHandler := &handler.TradeHandler{Repo: store, Gates: gates, Orders: orders, Logger: logger}
	tradeHandler.Register(engine)
	positionHandler := &handler.PositionHandler{Repo: store}
	positionHandler.Register(engine)
	riskHandler := &handler.RiskHandler{
		Risk:       riskMgr,
		Settings:   riskSettings,
		Exclusions: exclusions,
		Paper:      cfg.App.PaperTrading,
	}
	riskHandler.Register(engine)
	agentHandler := &handler.AgentHandler{
		Repo:    store,
		Flags:   settingsSvc,
		State:   orch,
		Gateway: conn,
		Alerts:  alerts,
		Clock:   clock.Real{},
		Paper:   cfg.App.PaperTrading,
		Logger:  logger,
	}
	agentHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	baseCtx := ctx
	if paasClient != nil {
		baseCtx = paas.WithClient(ctx, paasClient)
	}

	cronRunner := cronrunner.New(logger.Named("cron"), baseCtx, cfg.Cron.Timezone)
	cronRunner.SetFailureReporter(supervisor)
	if cfg.Cron.Enabled {
		err := orchestrator.Schedule(cronRunner, cfg.Cron,
			orchestrator.OrchestratorTickJob{Orchestrator: orch},
			orchestrator.OrderReconcileJob{Reconciler: reconciler, Flags: settingsSvc, Logger: logger},
			orchestrator.FinalCleanupJob{Reconciler: reconciler, Logger: logger},
			orchestrator.SnapshotJob{Orchestrator: orch, Flags: settingsSvc},
		)
		if err != nil {
			logger.Fatal("cron register failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	g, gctx := errgroup.WithContext(baseCtx)
	g.Go(func() error {
		return untilCanceled(conn.Run(gctx))
	})
	g.Go(func() error {
		return untilCanceled(tracker.Run(gctx))
	})
	if cfg.Guardian.Enabled && settingsSvc.IsEnabled(gctx, service.FeatureGuardian, true) {
		g.Go(func() error {
			return untilCanceled(guard.Run(gctx))
		})
	} else {
		logger.Warn("position guardian disabled")
	}
	g.Go(func() error {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("trader stopped with error", zap.Error(err))
	}
	if supervisor.Tripped() {
		logger.Warn("shutdown requested by supervisor")
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Disconnect(disconnectCtx); err != nil {
		logger.Warn("gateway disconnect failed", zap.Error(err))
	}
	logger.Info("trader stopped")
}

func untilCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization,Content-Type,X-Actor,X-Easyweb3-User")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
