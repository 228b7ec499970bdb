package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"trader/internal/client/gateway"
	"trader/internal/clock"
	"trader/internal/config"
)

func TestDebouncerStateMachine(t *testing.T) {
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	d := NewDebouncer(15 * time.Second)
	if d.Armed() || d.Fire(base) {
		t.Fatalf("new debouncer must be idle")
	}
	d.Seen(base)
	if d.Fire(base.Add(14 * time.Second)) {
		t.Fatalf("fired before deadline")
	}
	d.Seen(base.Add(10 * time.Second)) // restart
	if d.Fire(base.Add(15 * time.Second)) {
		t.Fatalf("restart must push the deadline")
	}
	if !d.Fire(base.Add(25 * time.Second)) {
		t.Fatalf("expected fire at new deadline")
	}
	if d.Armed() || d.Fire(base.Add(time.Hour)) {
		t.Fatalf("fire must return to idle")
	}
	d.Seen(base)
	d.Cancel()
	if d.Fire(base.Add(time.Hour)) {
		t.Fatalf("cancelled debouncer fired")
	}
}

func newTestManager(gw *fakeGateway, clk clock.Clock, alerter Alerter) *ConnectionManager {
	m := NewConnectionManager(gw, config.GatewayConfig{
		Connect: config.ConnectConfig{
			MaxAttempts:    5,
			BaseDelay:      3 * time.Second,
			MaxDelay:       30 * time.Second,
			Multiplier:     2,
			AttemptTimeout: time.Second,
		},
		Debounce:      15 * time.Second,
		AlertCooldown: 30 * time.Minute,
		ProbeTimeout:  time.Second,
	}, alerter, clk, nil)
	return m
}

func TestConnectRetriesWithBackoff(t *testing.T) {
	gw := newFakeGateway()
	boom := errors.New("refused")
	gw.connectErrs = []error{boom, boom, boom}
	m := newTestManager(gw, clock.Real{}, nil)
	var delays []time.Duration
	m.Sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !m.IsConnected() {
		t.Fatalf("expected connected")
	}
	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays got=%v want=%v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay[%d] got=%s want=%s", i, delays[i], want[i])
		}
	}
}

func TestConnectExhaustedIsFatal(t *testing.T) {
	gw := newFakeGateway()
	boom := errors.New("refused")
	gw.connectErrs = []error{boom, boom, boom, boom, boom, boom}
	m := newTestManager(gw, clock.Real{}, nil)
	m.Sleep = func(context.Context, time.Duration) error { return nil }
	err := m.Connect(context.Background())
	if !errors.Is(err, ErrConnectExhausted) {
		t.Fatalf("got=%v want ErrConnectExhausted", err)
	}
	if gw.connects != 5 {
		t.Fatalf("attempts got=%d want=5", gw.connects)
	}
	if m.IsConnected() {
		t.Fatalf("must not report connected")
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	cc := normalizeConnect(config.ConnectConfig{})
	if got := backoffDelay(cc, 5); got != 30*time.Second {
		t.Fatalf("attempt 5 got=%s want=30s", got)
	}
	if got := backoffDelay(cc, 1); got != 3*time.Second {
		t.Fatalf("attempt 1 got=%s want=3s", got)
	}
}

func TestFlappingProducesOneAlertAndOneProbe(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	clk := clock.NewFake(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))
	alerts := &countingAlerter{}
	m := newTestManager(gw, clk, alerts)
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for i := 0; i < 3; i++ {
		m.HandleState(ctx, gateway.StateDisconnected)
		clk.Advance(2 * time.Second)
		m.HandleState(ctx, gateway.StateConnected)
		clk.Advance(3 * time.Second)
		if m.CheckDebounce(ctx) {
			t.Fatalf("cycle %d: debounce fired inside the window", i)
		}
	}
	if got := alerts.count(); got != 1 {
		t.Fatalf("alerts got=%d want=1", got)
	}
	if got := gw.probeCount(); got != 0 {
		t.Fatalf("probes got=%d want=0 before stability", got)
	}

	clk.Advance(15 * time.Second)
	if !m.CheckDebounce(ctx) {
		t.Fatalf("expected debounce to fire after stability")
	}
	if m.CheckDebounce(ctx) {
		t.Fatalf("debounce fired twice")
	}
	if got := gw.probeCount(); got != 1 {
		t.Fatalf("probes got=%d want=1", got)
	}
}

func TestDisconnectAlertCooldown(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	clk := clock.NewFake(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))
	alerts := &countingAlerter{}
	m := newTestManager(gw, clk, alerts)
	_ = m.Connect(ctx)

	drop := func() {
		m.HandleState(ctx, gateway.StateDisconnected)
		m.HandleState(ctx, gateway.StateConnected)
		clk.Advance(16 * time.Second)
		m.CheckDebounce(ctx)
	}
	drop()
	clk.Advance(10 * time.Minute)
	drop() // inside the 30 minute cooldown
	if got := alerts.count(); got != 1 {
		t.Fatalf("alerts got=%d want=1 inside cooldown", got)
	}
	clk.Advance(31 * time.Minute)
	drop()
	if got := alerts.count(); got != 2 {
		t.Fatalf("alerts got=%d want=2 after cooldown", got)
	}
}

func TestWaitForConnectionTimesOut(t *testing.T) {
	m := newTestManager(newFakeGateway(), clock.Real{}, nil)
	m.PollInterval = 5 * time.Millisecond
	if m.WaitForConnection(context.Background(), 30*time.Millisecond) {
		t.Fatalf("expected false on timeout")
	}
	m.HandleState(context.Background(), gateway.StateConnected)
	if !m.WaitForConnection(context.Background(), 30*time.Millisecond) {
		t.Fatalf("expected true once connected")
	}
}

func TestRunTreatsBrokenStreamAsDropAndSettlesOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &scriptedStream{
		fakeGateway: newFakeGateway(),
		fails: map[string][]error{
			gateway.TopicConnection: {gateway.ErrStreamCompleted},
		},
	}
	alerts := &countingAlerter{}
	m := NewConnectionManager(gw, config.GatewayConfig{
		Debounce:     30 * time.Millisecond,
		ProbeTimeout: time.Second,
	}, alerts, clock.Real{}, nil)
	m.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitUntil(t, "disconnect alert", func() bool { return alerts.count() == 1 })
	if m.IsConnected() {
		t.Fatalf("broken stream must count as a disconnect")
	}

	stream := gw.streams[gateway.TopicConnection]
	stream <- gateway.Envelope{Type: gateway.TopicConnection, State: "connected"}
	stream <- gateway.Envelope{Type: gateway.TopicConnection, State: "disconnected"}
	stream <- gateway.Envelope{Type: gateway.TopicConnection, State: "connected"}

	waitUntil(t, "post-reconnect health check", func() bool { return gw.probeCount() >= 1 })
	time.Sleep(100 * time.Millisecond)
	if got := gw.probeCount(); got != 1 {
		t.Fatalf("health checks got=%d want=1", got)
	}
	if got := alerts.count(); got != 1 {
		t.Fatalf("alerts got=%d want=1", got)
	}
	if !m.IsConnected() {
		t.Fatalf("state got=%s want=connected", m.State())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run got=%v want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}
