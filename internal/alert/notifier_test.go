package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"trader/internal/clock"
)

type recordingPlatform struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPlatform) Alert(_ context.Context, subject, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func TestSendCriticalAlertAllChannels(t *testing.T) {
	var (
		mu       sync.Mutex
		webhook  WebhookPayload
		telegram telegramSendMessageRequest
		tgPath   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if strings.HasPrefix(r.URL.Path, "/bot") {
			tgPath = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&telegram)
		} else {
			_ = json.NewDecoder(r.Body).Decode(&webhook)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	platform := &recordingPlatform{}
	n := &Notifier{
		Webhook:  &WebhookSender{URL: srv.URL + "/hook"},
		Telegram: &TelegramSender{BaseURL: srv.URL, BotToken: "tok", ChatID: "42"},
		Platform: platform,
		Clock:    clock.NewFake(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)),
	}
	n.SendCriticalAlert(context.Background(), "IBKR disconnected", "lost session")
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	if webhook.Subject != "[TRADER ALERT] IBKR disconnected" || webhook.Message != "lost session" {
		t.Fatalf("got webhook=%+v", webhook)
	}
	if tgPath != "/bottok/sendMessage" || telegram.ChatID != "42" || !strings.HasPrefix(telegram.Text, "[TRADER ALERT] IBKR disconnected") {
		t.Fatalf("got path=%q telegram=%+v", tgPath, telegram)
	}
	if len(platform.subjects) != 1 {
		t.Fatalf("got=%d platform alerts want=1", len(platform.subjects))
	}
}

func TestSendJoinsChannelErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	platform := &recordingPlatform{}
	n := &Notifier{Webhook: &WebhookSender{URL: srv.URL}, Platform: platform}
	err := n.Send(context.Background(), "x", "y")
	if err == nil || !strings.Contains(err.Error(), "webhook http 502") {
		t.Fatalf("got err=%v want webhook failure", err)
	}
	if len(platform.subjects) != 1 {
		t.Fatalf("a failing channel must not stop the others")
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.SendCriticalAlert(context.Background(), "x", "y")
	n.Wait()
}
