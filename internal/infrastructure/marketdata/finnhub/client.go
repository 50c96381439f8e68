package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/httpx"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/ratelimit"
)

const (
	defaultBaseURL  = "https://finnhub.io/api/v1"
	stockCandlePath = "/stock/candle"
	forexCandlePath = "/forex/candle"

	// QuotaCooldown matches Finnhub's per-minute call budget.
	QuotaCooldown = time.Minute
)

// Client reads daily candles from the Finnhub API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *httpx.Client
	gate       *ratelimit.Gate
}

// NewClient creates a new Finnhub API client.
func NewClient(apiKey string, minInterval time.Duration) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: httpx.New(httpx.DefaultTimeout),
		gate:       ratelimit.NewGate(minInterval),
	}
}

// NewClientWithHTTPClient creates a new Finnhub client with a custom HTTP client (for testing).
func NewClientWithHTTPClient(apiKey string, httpClient *http.Client, gate *ratelimit.Gate) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: httpx.Wrap(httpClient),
		gate:       gate,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) Name() domain.SourceID {
	return domain.SourceFinnhub
}

func (c *Client) IsAvailable() bool {
	return c.gate.IsAvailable()
}

// candleResponse holds parallel arrays; s is "ok" or "no_data".
type candleResponse struct {
	Close     []float64 `json:"c"`
	Timestamp []int64   `json:"t"`
	Status    string    `json:"s"`
	Error     string    `json:"error"`
}

// ForexSymbol converts "EUR/USD" to the OANDA notation "OANDA:EUR_USD".
func ForexSymbol(ticker string) string {
	if strings.Contains(ticker, ":") {
		return ticker
	}
	return "OANDA:" + strings.ReplaceAll(ticker, "/", "_")
}

func (c *Client) GetSeries(ctx context.Context, ticker string, kind domain.Kind) (domain.Series, error) {
	if !c.gate.IsAvailable() {
		return nil, nil
	}

	path, symbol := stockCandlePath, ticker
	if kind == domain.KindForex {
		path, symbol = forexCandlePath, ForexSymbol(ticker)
	}

	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("resolution", "D")
	params.Add("from", "0")
	params.Add("to", strconv.FormatInt(c.gate.Now().Unix(), 10))
	params.Add("token", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}

	status, body, err := c.httpClient.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("finnhub %s: %w", symbol, err)
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		c.gate.CooldownUntil(c.gate.Now().Add(QuotaCooldown))
		slog.WarnContext(ctx, "finnhub rate limit reached", "symbol", symbol, "cooldown", QuotaCooldown)
		return nil, fmt.Errorf("finnhub %s: %w", symbol, domain.ErrQuotaExceeded)
	case http.StatusUnauthorized, http.StatusForbidden:
		// Candles outside the plan answer 403; for us the symbol is unreachable.
		return nil, fmt.Errorf("finnhub %s: %w: API returned status %d", symbol, domain.ErrSymbolNotFound, status)
	default:
		return nil, fmt.Errorf("finnhub %s: %w: API returned status %d: %s", symbol, domain.ErrSourceUnavailable, status, string(body))
	}

	var candles candleResponse
	if err := json.Unmarshal(body, &candles); err != nil {
		return nil, fmt.Errorf("finnhub %s: %w: failed to decode response: %v", symbol, domain.ErrSourceUnavailable, err)
	}
	if candles.Error != "" {
		return nil, fmt.Errorf("finnhub %s: %w: %s", symbol, domain.ErrSymbolNotFound, candles.Error)
	}
	if candles.Status != "ok" || len(candles.Close) != len(candles.Timestamp) {
		return nil, fmt.Errorf("finnhub %s: %w", symbol, domain.ErrNoDataAvailable)
	}

	points := make([]domain.Point, len(candles.Timestamp))
	for i, ts := range candles.Timestamp {
		points[i] = domain.Point{Date: time.Unix(ts, 0), Close: candles.Close[i]}
	}

	series := domain.NormalizeSeries(points)
	if len(series) == 0 {
		return nil, fmt.Errorf("finnhub %s: %w", symbol, domain.ErrNoDataAvailable)
	}
	return series, nil
}
