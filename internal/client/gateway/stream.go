package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

// ErrStreamCompleted is returned when the bridge closes a subscription
// normally. Callers treat it like any other reason to resubscribe.
var ErrStreamCompleted = errors.New("gateway stream completed")

const (
	streamReadLimit    = 4 << 20
	streamPingInterval = 20 * time.Second
	streamPingTimeout  = 5 * time.Second
)

// Subscribe opens one websocket subscription for topic and calls fn for every
// envelope until the context ends or the stream fails. It never reconnects;
// the caller owns the retry policy.
func (c *Client) Subscribe(ctx context.Context, topic string, fn func(Envelope)) error {
	if c == nil {
		return fmt.Errorf("gateway client is nil")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("topic", topic)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", topic, err)
	}
	conn.SetReadLimit(streamReadLimit)
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pingErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				pctx, pcancel := context.WithTimeout(subCtx, streamPingTimeout)
				err := conn.Ping(pctx)
				pcancel()
				if err != nil {
					pingErr <- err
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(subCtx)
		if err != nil {
			select {
			case perr := <-pingErr:
				return fmt.Errorf("ping %s: %w", topic, perr)
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return ErrStreamCompleted
			}
			return fmt.Errorf("read %s: %w", topic, err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == "" || strings.EqualFold(env.Type, "ping") {
			continue
		}
		if fn != nil {
			fn(env)
		}
	}
}
