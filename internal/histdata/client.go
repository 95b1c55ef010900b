// Package histdata fetches historical candles and chart intelligence
// from the data API over HTTP.
package histdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"chartcore/internal/model"
	"chartcore/internal/overlay"
)

// Client talks to the data API. The zero HTTPClient is replaced with a
// 30 second timeout client.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a data API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type candleResponse struct {
	Symbol   string         `json:"symbol"`
	Interval string         `json:"interval"`
	Candles  []model.Candle `json:"candles"`
}

// FetchCandles loads the primary candle history for one symbol. Failures
// here surface to the caller; the chart cannot render without them.
func (c *Client) FetchCandles(ctx context.Context, symbol, interval string, rng model.TimeRange) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	if !rng.IsZero() {
		q.Set("from", fmt.Sprint(rng.From.Unix()))
		q.Set("to", fmt.Sprint(rng.To.Unix()))
	}

	body, err := c.get(ctx, "/candles", q)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", symbol, interval, err)
	}
	var resp candleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode candles %s: %w", symbol, err)
	}
	return resp.Candles, nil
}

// FetchComparison loads candle histories for overlay comparison symbols.
// A symbol that fails is skipped; the others still render.
func (c *Client) FetchComparison(ctx context.Context, symbols []string, interval string, rng model.TimeRange) map[string][]model.Candle {
	out := make(map[string][]model.Candle, len(symbols))
	for _, sym := range symbols {
		candles, err := c.FetchCandles(ctx, sym, interval, rng)
		if err != nil {
			slog.Debug("comparison fetch skipped", "symbol", sym, "error", err)
			continue
		}
		out[sym] = candles
	}
	return out
}

// FetchIntelligence loads the AI analysis payload for a symbol. Callers
// treat an error as "no intelligence this cycle" rather than a chart
// failure.
func (c *Client) FetchIntelligence(ctx context.Context, symbol, interval string) (*overlay.IntelligencePayload, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)

	body, err := c.get(ctx, "/intelligence", q)
	if err != nil {
		return nil, fmt.Errorf("fetch intelligence %s: %w", symbol, err)
	}
	var payload overlay.IntelligencePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode intelligence %s: %w", symbol, err)
	}
	return &payload, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
