package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trader/internal/client/gateway"
	"trader/internal/clock"
	"trader/internal/config"
	"trader/internal/metrics"
)

type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ConnectionManager owns the gateway session: bounded connect retry, the
// connection-state monitor, reconnect debounce and disconnect alerting.
type ConnectionManager struct {
	Gateway  Gateway
	Alerter  Alerter
	Clock    clock.Clock
	Logger   *zap.Logger
	ClientID int

	Retry         config.ConnectConfig
	Debounce      time.Duration
	AlertCooldown time.Duration
	ProbeTimeout  time.Duration
	PollInterval  time.Duration

	// Sleep is swapped in tests to skip real backoff waits.
	Sleep func(ctx context.Context, d time.Duration) error

	state atomic.Int32
	once  sync.Once

	mu          sync.Mutex
	debounce    *Debouncer
	dropped     bool
	alerted     bool
	lastAlertAt time.Time
	probes      int
}

func NewConnectionManager(gw Gateway, cfg config.GatewayConfig, alerter Alerter, clk clock.Clock, logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		Gateway:       gw,
		Alerter:       alerter,
		Clock:         clk,
		Logger:        logger,
		ClientID:      cfg.ClientID,
		Retry:         cfg.Connect,
		Debounce:      cfg.Debounce,
		AlertCooldown: cfg.AlertCooldown,
		ProbeTimeout:  cfg.ProbeTimeout,
	}
}

func (m *ConnectionManager) init() {
	m.once.Do(m.setDefaults)
}

func (m *ConnectionManager) setDefaults() {
	m.debounce = NewDebouncer(m.Debounce)
	if m.Clock == nil {
		m.Clock = clock.Real{}
	}
	if m.Alerter == nil {
		m.Alerter = nopAlerter{}
	}
	if m.Logger == nil {
		m.Logger = zap.NewNop()
	}
	if m.Sleep == nil {
		m.Sleep = sleepCtx
	}
	if m.AlertCooldown <= 0 {
		m.AlertCooldown = 30 * time.Minute
	}
	if m.ProbeTimeout <= 0 {
		m.ProbeTimeout = 10 * time.Second
	}
	if m.PollInterval <= 0 {
		m.PollInterval = 500 * time.Millisecond
	}
}

func (m *ConnectionManager) State() ConnState {
	return ConnState(m.state.Load())
}

func (m *ConnectionManager) IsConnected() bool {
	return m != nil && m.State() == Connected
}

func (m *ConnectionManager) setState(s ConnState) {
	m.state.Store(int32(s))
	if s == Connected {
		metrics.GatewayConnected.Set(1)
	} else {
		metrics.GatewayConnected.Set(0)
	}
}

// Connect establishes the session with exponential backoff. Exhausting the
// attempts is fatal to boot and returns ErrConnectExhausted.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	if m == nil || m.Gateway == nil {
		return fmt.Errorf("connection manager not configured")
	}
	m.init()
	cc := normalizeConnect(m.Retry)
	m.setState(Connecting)

	var lastErr error
	for attempt := 1; attempt <= cc.MaxAttempts; attempt++ {
		_, err := withTimeout(ctx, "connect", cc.AttemptTimeout, func(c context.Context) (struct{}, error) {
			return struct{}{}, m.Gateway.Connect(c, m.ClientID)
		})
		if err == nil {
			m.setState(Connected)
			m.Logger.Info("gateway connected", zap.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			m.setState(Disconnected)
			return ctx.Err()
		}
		if attempt == cc.MaxAttempts {
			break
		}
		delay := backoffDelay(cc, attempt)
		m.Logger.Warn("gateway connect: retrying after error",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cc.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := m.Sleep(ctx, delay); err != nil {
			m.setState(Disconnected)
			return err
		}
	}
	m.setState(Disconnected)
	return fmt.Errorf("%w after %d attempts: %w", ErrConnectExhausted, cc.MaxAttempts, lastErr)
}

func (m *ConnectionManager) Disconnect(ctx context.Context) error {
	if m == nil || m.Gateway == nil {
		return nil
	}
	m.init()
	m.mu.Lock()
	m.debounce.Cancel()
	m.mu.Unlock()
	m.setState(Disconnected)
	_, err := withTimeout(ctx, "disconnect", m.ProbeTimeout, func(c context.Context) (struct{}, error) {
		return struct{}{}, m.Gateway.Disconnect(c)
	})
	if err != nil {
		return err
	}
	m.Logger.Info("gateway disconnected")
	return nil
}

// WaitForConnection polls until the session is up or timeout elapses. It
// reports false on timeout and never returns an error.
func (m *ConnectionManager) WaitForConnection(ctx context.Context, timeout time.Duration) bool {
	if m == nil {
		return false
	}
	m.init()
	if m.IsConnected() {
		return true
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(m.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return m.IsConnected()
		case <-tick.C:
			if m.IsConnected() {
				return true
			}
		}
	}
}

// Run monitors the gateway connection-state stream until ctx ends. A broken
// stream is reported as a disconnect and resubscribed with backoff.
func (m *ConnectionManager) Run(ctx context.Context) error {
	if m == nil || m.Gateway == nil {
		return nil
	}
	m.init()
	states := make(chan gateway.ConnectionState, 16)
	go m.watch(ctx, states)

	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		m.mu.Lock()
		deadline, armed := m.debounce.Deadline()
		m.mu.Unlock()
		if armed {
			wait := deadline.Sub(m.Clock.Now())
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case st := <-states:
			m.HandleState(ctx, st)
		case <-timerC:
			m.CheckDebounce(ctx)
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (m *ConnectionManager) watch(ctx context.Context, out chan<- gateway.ConnectionState) {
	backoff := time.Second
	for ctx.Err() == nil {
		err := m.Gateway.Subscribe(ctx, gateway.TopicConnection, func(env gateway.Envelope) {
			if env.Type != gateway.TopicConnection {
				return
			}
			backoff = time.Second
			select {
			case out <- gateway.ParseConnectionState(env.State):
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, gateway.ErrStreamCompleted) {
			m.Logger.Warn("connection stream failed", zap.Error(err))
		}
		select {
		case out <- gateway.StateDisconnected:
		case <-ctx.Done():
			return
		}
		if err := m.Sleep(ctx, backoff); err != nil {
			return
		}
		backoff = nextBackoff(backoff, 30*time.Second)
	}
}

// HandleState applies one connection-state observation.
func (m *ConnectionManager) HandleState(ctx context.Context, st gateway.ConnectionState) {
	m.init()
	now := m.Clock.Now()
	was := m.State()

	switch st {
	case gateway.StateDisconnected:
		if was != Connected {
			m.Logger.Debug("gateway still disconnected")
			return
		}
		m.setState(Disconnected)
		m.mu.Lock()
		m.debounce.Cancel()
		m.dropped = true
		send := !m.alerted && (m.lastAlertAt.IsZero() || now.Sub(m.lastAlertAt) >= m.AlertCooldown)
		if send {
			m.alerted = true
			m.lastAlertAt = now
		}
		m.mu.Unlock()
		if !send {
			m.Logger.Warn("gateway disconnected (alert suppressed)")
			return
		}
		m.Logger.Error("gateway disconnected")
		metrics.GatewayAlerts.Inc()
		m.Alerter.SendCriticalAlert(ctx, "Gateway disconnected",
			fmt.Sprintf("The gateway session dropped at %s. Orders cannot be placed until it reconnects.", now.UTC().Format(time.RFC3339)))
	case gateway.StateConnected:
		m.setState(Connected)
		m.mu.Lock()
		dropped := m.dropped
		if dropped {
			m.debounce.Seen(now)
		}
		m.mu.Unlock()
		if dropped {
			m.Logger.Info("gateway reconnected, waiting for stability", zap.Duration("debounce", m.debounce.period))
		}
	case gateway.StateConnecting:
		if was != Connected {
			m.setState(Connecting)
		}
	}
}

// CheckDebounce runs the post-reconnect work once the session has been stable
// for the debounce period: clear the alert flag and probe the gateway.
func (m *ConnectionManager) CheckDebounce(ctx context.Context) bool {
	m.init()
	m.mu.Lock()
	fired := m.debounce.Fire(m.Clock.Now())
	if fired {
		m.alerted = false
		m.dropped = false
		m.probes++
	}
	m.mu.Unlock()
	if !fired {
		return false
	}
	_, err := withTimeout(ctx, "health probe", m.ProbeTimeout, m.Gateway.ServerTime)
	if err != nil {
		m.Logger.Warn("gateway health probe failed after reconnect", zap.Error(err))
		return true
	}
	m.Logger.Info("gateway connection stable")
	return true
}

func normalizeConnect(cc config.ConnectConfig) config.ConnectConfig {
	if cc.MaxAttempts <= 0 {
		cc.MaxAttempts = 5
	}
	if cc.BaseDelay <= 0 {
		cc.BaseDelay = 3 * time.Second
	}
	if cc.MaxDelay <= 0 {
		cc.MaxDelay = 30 * time.Second
	}
	if cc.Multiplier < 1 {
		cc.Multiplier = 2
	}
	if cc.AttemptTimeout <= 0 {
		cc.AttemptTimeout = 15 * time.Second
	}
	return cc
}

// backoffDelay is base * multiplier^(attempt-1), capped at MaxDelay.
func backoffDelay(cc config.ConnectConfig, attempt int) time.Duration {
	d := float64(cc.BaseDelay) * math.Pow(cc.Multiplier, float64(attempt-1))
	if d > float64(cc.MaxDelay) {
		return cc.MaxDelay
	}
	return time.Duration(d)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
