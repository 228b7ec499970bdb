package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "http://127.0.0.1:8787"

// Client talks to the brokerage bridge sidecar. The bridge owns the native
// gateway socket and exposes it as JSON over HTTP plus one websocket.
type Client struct {
	baseURL    string
	wsURL      string
	accountID  string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error (%d): %s", e.Status, e.Body)
}

type Options struct {
	BaseURL   string
	WSURL     string
	AccountID string
	Timeout   time.Duration
}

func NewClient(httpClient *http.Client, opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	ws := strings.TrimSpace(opts.WSURL)
	if ws == "" {
		ws = deriveWSURL(base)
	}
	return &Client{
		baseURL:    base,
		wsURL:      ws,
		accountID:  strings.TrimSpace(opts.AccountID),
		httpClient: httpClient,
	}
}

func deriveWSURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/v1/stream"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/v1/stream"
	default:
		return base + "/v1/stream"
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("gateway client is nil")
	}
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accountID != "" {
		req.Header.Set("X-Account-Id", c.accountID)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ServerTime is the lightweight round trip used as a health probe.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var out struct {
		Time time.Time `json:"time"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/time", nil, nil, &out); err != nil {
		return time.Time{}, err
	}
	return out.Time, nil
}

// Connect asks the bridge to open the gateway session. It returns once the
// bridge reports the session connected or the context expires.
func (c *Client) Connect(ctx context.Context, clientID int) error {
	var out struct {
		State string `json:"state"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/session/connect", nil, map[string]any{"client_id": clientID}, &out); err != nil {
		return err
	}
	if ParseConnectionState(out.State) != StateConnected {
		return fmt.Errorf("gateway session state %q", out.State)
	}
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/session/disconnect", nil, map[string]any{}, nil)
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (int64, error) {
	if strings.TrimSpace(req.Contract.Symbol) == "" {
		return 0, fmt.Errorf("contract symbol is required")
	}
	if req.TotalQuantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive")
	}
	var out struct {
		OrderID int64 `json:"order_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders", nil, req, &out); err != nil {
		return 0, err
	}
	if out.OrderID <= 0 {
		return 0, fmt.Errorf("gateway returned no order id")
	}
	return out.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	if orderID <= 0 {
		return fmt.Errorf("order id is required")
	}
	return c.doJSON(ctx, http.MethodDelete, "/v1/orders/"+strconv.FormatInt(orderID, 10), nil, nil, nil)
}

func (c *Client) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var out struct {
		Orders []OpenOrder `json:"orders"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/orders/open", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) Executions(ctx context.Context) ([]Execution, error) {
	var out struct {
		Executions []Execution `json:"executions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/executions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Executions, nil
}

func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var out struct {
		Positions []Position `json:"positions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/positions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

func (c *Client) AccountSummary(ctx context.Context) (*AccountSummary, error) {
	var out AccountSummary
	if err := c.doJSON(ctx, http.MethodGet, "/v1/account/summary", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot fetches one batched quote snapshot. Symbols the gateway could not
// price are simply absent from the result.
func (c *Client) Snapshot(ctx context.Context, symbols []string) ([]Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))
	query.Set("exchange", LSEStock("").PrimaryExchange)
	var out struct {
		Quotes []Quote `json:"quotes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/marketdata/snapshot", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Quotes, nil
}

func (c *Client) HistoricalBars(ctx context.Context, symbol, duration, barSize string) ([]Bar, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	query.Set("symbol", symbol)
	if duration != "" {
		query.Set("duration", duration)
	}
	if barSize != "" {
		query.Set("bar_size", barSize)
	}
	var out struct {
		Bars []Bar `json:"bars"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/marketdata/history", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Bars, nil
}
