package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cron       CronConfig       `mapstructure:"cron"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	FMP        FMPConfig        `mapstructure:"fmp"`
	Guardian   GuardianConfig   `mapstructure:"guardian"`
	Alert      AlertConfig      `mapstructure:"alert"`
	Planner    PlannerConfig    `mapstructure:"planner"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	PaaS       PaaSConfig       `mapstructure:"paas"`
}

type AppConfig struct {
	Env          string `mapstructure:"env"`
	PaperTrading bool   `mapstructure:"paper_trading"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// RedisConfig with an empty Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CronConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Timezone         string `mapstructure:"timezone"`
	OrchestratorTick string `mapstructure:"orchestrator_tick"`
	OrderReconcile   string `mapstructure:"order_reconcile"`
	FinalCleanup     string `mapstructure:"final_cleanup"`
	Snapshot         string `mapstructure:"snapshot"`
}

type GatewayConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	WSURL            string        `mapstructure:"ws_url"`
	AccountID        string        `mapstructure:"account_id"`
	ClientID         int           `mapstructure:"client_id"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	Connect          ConnectConfig `mapstructure:"connect"`
	Debounce         time.Duration `mapstructure:"debounce"`
	AlertCooldown    time.Duration `mapstructure:"alert_cooldown"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ResubscribeDelay time.Duration `mapstructure:"resubscribe_delay"`
}

type ConnectConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Multiplier     float64       `mapstructure:"multiplier"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

type FMPConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GuardianConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	AlertThresholdPct float64       `mapstructure:"alert_threshold_pct"`
	WatchlistLimit    int           `mapstructure:"watchlist_limit"`
}

type AlertConfig struct {
	WebhookURL       string `mapstructure:"webhook_url"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
	SubjectPrefix    string `mapstructure:"subject_prefix"`
}

type PlannerConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SupervisorConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Window      time.Duration `mapstructure:"window"`
}

// PaaSConfig is the easyweb3 platform link. An empty base url or api key
// disables platform logs.
type PaaSConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Agent          string `mapstructure:"agent"`
	AuthDisabled   bool   `mapstructure:"auth_disabled"`
	RequireGateway bool   `mapstructure:"require_gateway"`
}

// LoadDotEnv reads an optional .env file into the process environment.
// Variables already set are left alone.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.paper_trading", true)
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Cron specs use six fields (seconds first) and run in exchange time.
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.timezone", "Europe/London")
	v.SetDefault("cron.orchestrator_tick", "0 */10 7-16 * * 1-5")
	v.SetDefault("cron.order_reconcile", "0 */5 8-16 * * 1-5")
	v.SetDefault("cron.final_cleanup", "0 35 16 * * 1-5")
	v.SetDefault("cron.snapshot", "0 40 16 * * 1-5")

	v.SetDefault("gateway.base_url", "http://127.0.0.1:8787")
	v.SetDefault("gateway.ws_url", "")
	v.SetDefault("gateway.account_id", "")
	v.SetDefault("gateway.client_id", 1)
	v.SetDefault("gateway.request_timeout", "10s")
	v.SetDefault("gateway.connect.max_attempts", 5)
	v.SetDefault("gateway.connect.base_delay", "3s")
	v.SetDefault("gateway.connect.max_delay", "30s")
	v.SetDefault("gateway.connect.multiplier", 2.0)
	v.SetDefault("gateway.connect.attempt_timeout", "15s")
	v.SetDefault("gateway.debounce", "15s")
	v.SetDefault("gateway.alert_cooldown", "30m")
	v.SetDefault("gateway.probe_timeout", "10s")
	v.SetDefault("gateway.resubscribe_delay", "5s")

	v.SetDefault("fmp.base_url", "https://financialmodelingprep.com")
	v.SetDefault("fmp.api_key", "")
	v.SetDefault("fmp.timeout", "10s")

	v.SetDefault("guardian.enabled", true)
	v.SetDefault("guardian.interval", "60s")
	v.SetDefault("guardian.alert_threshold_pct", 3.0)
	v.SetDefault("guardian.watchlist_limit", 10)

	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.telegram_bot_token", "")
	v.SetDefault("alert.telegram_chat_id", "")
	v.SetDefault("alert.subject_prefix", "[TRADER ALERT]")

	v.SetDefault("planner.webhook_url", "")
	v.SetDefault("planner.timeout", "5s")

	v.SetDefault("supervisor.max_failures", 20)
	v.SetDefault("supervisor.window", "60s")

	v.SetDefault("paas.base_url", "")
	v.SetDefault("paas.api_key", "")
	v.SetDefault("paas.agent", "trader-service")
	v.SetDefault("paas.auth_disabled", false)
	v.SetDefault("paas.require_gateway", false)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
