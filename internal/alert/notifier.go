// Package alert delivers operator alerts. Delivery is fire-and-forget: a
// failed alert is logged and never escalated.
package alert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"trader/internal/clock"
	"trader/internal/config"
	"trader/internal/paas"
)

const defaultPrefix = "[TRADER ALERT]"

// PlatformLog is satisfied by *paas.Client.
type PlatformLog interface {
	Alert(ctx context.Context, subject, body string) error
}

type Notifier struct {
	Webhook  *WebhookSender
	Telegram *TelegramSender
	Platform PlatformLog
	Prefix   string
	Timeout  time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger

	wg sync.WaitGroup
}

// NewNotifier enables every channel that has configuration.
func NewNotifier(cfg config.AlertConfig, platform *paas.Client, logger *zap.Logger) *Notifier {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	n := &Notifier{Prefix: cfg.SubjectPrefix, Logger: logger}
	if u := strings.TrimSpace(cfg.WebhookURL); u != "" {
		n.Webhook = &WebhookSender{HTTP: httpClient, URL: u}
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		n.Telegram = &TelegramSender{HTTP: httpClient, BotToken: cfg.TelegramBotToken, ChatID: cfg.TelegramChatID}
	}
	if platform != nil {
		n.Platform = platform
	}
	return n
}

func (n *Notifier) subject(s string) string {
	prefix := n.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + " " + s
}

func (n *Notifier) now() time.Time {
	if n.Clock == nil {
		return time.Now().UTC()
	}
	return n.Clock.Now().UTC()
}

// SendCriticalAlert returns immediately; delivery runs in its own goroutine
// with a time box.
func (n *Notifier) SendCriticalAlert(_ context.Context, subject, body string) {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		timeout := n.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.Send(ctx, subject, body); err != nil && n.Logger != nil {
			n.Logger.Error("critical alert delivery failed", zap.String("subject", subject), zap.Error(err))
		}
	}()
}

// Send delivers to every configured channel and joins their errors.
func (n *Notifier) Send(ctx context.Context, subject, body string) error {
	full := n.subject(subject)
	at := n.now()
	text := fmt.Sprintf("%s\n\n%s\n\n%s", full, body, at.Format(time.RFC3339))

	if n.Logger != nil {
		n.Logger.Warn("critical alert", zap.String("subject", full), zap.String("body", body))
	}

	var errs []error
	if n.Webhook != nil {
		err := n.Webhook.Send(ctx, WebhookPayload{
			Service: paas.DefaultAgent,
			Event:   "critical_alert",
			Subject: full,
			Message: body,
			At:      at,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}
	if n.Telegram != nil {
		if err := n.Telegram.Send(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		}
	}
	if n.Platform != nil {
		if err := n.Platform.Alert(ctx, full, body); err != nil {
			errs = append(errs, fmt.Errorf("platform: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until in-flight deliveries finish. Used at shutdown.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
