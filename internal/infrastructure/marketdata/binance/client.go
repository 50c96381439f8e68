package binance

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
	defaultBaseURL = "https://api.binance.com"
	klinesPath     = "/api/v3/klines"
	klinesLimit    = "1000"

	codeInvalidSymbol = -1121

	// QuotaCooldown is the request-weight window of the spot API.
	QuotaCooldown = time.Minute
)

// Client reads daily klines from the Binance spot API. Crypto only.
type Client struct {
	baseURL    string
	httpClient *httpx.Client
	gate       *ratelimit.Gate
}

func NewClient(minInterval time.Duration) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: httpx.New(httpx.DefaultTimeout),
		gate:       ratelimit.NewGate(minInterval),
	}
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client (for testing).
func NewClientWithHTTPClient(httpClient *http.Client, gate *ratelimit.Gate) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: httpx.Wrap(httpClient),
		gate:       gate,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) Name() domain.SourceID {
	return domain.SourceBinance
}

func (c *Client) IsAvailable() bool {
	return c.gate.IsAvailable()
}

// Symbol converts "BTC/USDT" to "BTCUSDT".
func Symbol(ticker string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "").Replace(ticker))
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) GetSeries(ctx context.Context, ticker string, kind domain.Kind) (domain.Series, error) {
	if kind != domain.KindCrypto {
		return nil, fmt.Errorf("binance %s: %w: unsupported kind %s", ticker, domain.ErrNoDataAvailable, kind)
	}
	if !c.gate.IsAvailable() {
		return nil, nil
	}

	symbol := Symbol(ticker)
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("interval", "1d")
	params.Add("limit", klinesLimit)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, klinesPath, params.Encode())

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}

	status, body, err := c.httpClient.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("binance %s: %w", symbol, err)
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusTeapot:
		until := c.gate.Now().Add(QuotaCooldown)
		c.gate.CooldownUntil(until)
		slog.WarnContext(ctx, "binance rate limit reached", "symbol", symbol, "status", status, "available_at", until)
		return nil, fmt.Errorf("binance %s: %w", symbol, domain.ErrQuotaExceeded)
	default:
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == codeInvalidSymbol {
			return nil, fmt.Errorf("binance %s: %w: %s", symbol, domain.ErrSymbolNotFound, apiErr.Msg)
		}
		return nil, fmt.Errorf("binance %s: %w: API returned status %d: %s", symbol, domain.ErrSourceUnavailable, status, string(body))
	}

	// Each kline is [openTime, open, high, low, close, volume, closeTime, ...].
	var klines [][]json.RawMessage
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("binance %s: %w: failed to decode response: %v", symbol, domain.ErrSourceUnavailable, err)
	}

	points := make([]domain.Point, 0, len(klines))
	for _, k := range klines {
		if len(k) < 5 {
			continue
		}
		var openTime int64
		var closeStr string
		if json.Unmarshal(k[0], &openTime) != nil || json.Unmarshal(k[4], &closeStr) != nil {
			continue
		}
		closeValue, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			continue
		}
		points = append(points, domain.Point{Date: time.UnixMilli(openTime), Close: closeValue})
	}

	series := domain.NormalizeSeries(points)
	if len(series) == 0 {
		return nil, fmt.Errorf("binance %s: %w", symbol, domain.ErrNoDataAvailable)
	}
	return series, nil
}
