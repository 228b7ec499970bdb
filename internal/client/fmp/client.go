package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const DefaultBaseURL = "https://financialmodelingprep.com"

// Client is a thin Financial Modeling Prep client used as the secondary
// quote source. LSE tickers are addressed with the ".L" suffix.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fmp error (%d): %s", e.Status, e.Body)
}

type Profile struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"companyName"`
	Sector      string          `json:"sector"`
	Industry    string          `json:"industry"`
	Exchange    string          `json:"exchange"`
	Price       decimal.Decimal `json:"price"`
	Volume      decimal.Decimal `json:"volume"`
}

type Quote struct {
	Symbol    string
	Last      decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

func NewClient(httpClient *http.Client, baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, apiKey: strings.TrimSpace(apiKey), httpClient: httpClient}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) Profile(ctx context.Context, symbol string) (*Profile, error) {
	if !c.Enabled() {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	query.Set("symbol", symbol+".L")
	query.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stable/profile?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	var items []Profile
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Quotes fetches profiles concurrently and keeps only priced symbols.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	if !c.Enabled() || len(symbols) == 0 {
		return out, nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			p, err := c.Profile(gctx, symbol)
			if err != nil || p == nil || !p.Price.IsPositive() {
				return nil
			}
			mu.Lock()
			out[symbol] = Quote{Symbol: symbol, Last: p.Price, Volume: p.Volume, Timestamp: time.Now().UTC()}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
