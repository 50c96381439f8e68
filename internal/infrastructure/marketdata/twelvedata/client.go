package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/httpx"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/ratelimit"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL = "https://api.twelvedata.com"
	timeSeriesPath = "/time_series"
	maxOutputSize  = "5000"

	// QuotaCooldown matches the per-minute credit window of the API.
	QuotaCooldown = time.Minute
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *httpx.Client
	gate       *ratelimit.Gate
}

func NewClient(apiKey string, minInterval time.Duration) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: httpx.New(httpx.DefaultTimeout),
		gate:       ratelimit.NewGate(minInterval),
	}
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client (for testing).
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
	return domain.SourceTwelveData
}

func (c *Client) IsAvailable() bool {
	return c.gate.IsAvailable()
}

type timeSeriesResponse struct {
	Values []struct {
		Datetime string `json:"datetime"`
		Close    string `json:"close"`
	} `json:"values"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) GetSeries(ctx context.Context, symbol string, kind domain.Kind) (domain.Series, error) {
	if !c.gate.IsAvailable() {
		return nil, nil
	}

	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("interval", "1day")
	params.Add("outputsize", maxOutputSize)
	params.Add("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, timeSeriesPath, params.Encode())

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}

	status, body, err := c.httpClient.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("twelvedata %s: %w", symbol, err)
	}
	if status == http.StatusTooManyRequests {
		return nil, c.throttled(ctx, symbol)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("twelvedata %s: %w: API returned status %d: %s", symbol, domain.ErrSourceUnavailable, status, string(body))
	}

	var tsResp timeSeriesResponse
	if err := json.Unmarshal(body, &tsResp); err != nil {
		return nil, fmt.Errorf("twelvedata %s: %w: failed to decode response: %v", symbol, domain.ErrSourceUnavailable, err)
	}

	if tsResp.Status == "error" {
		switch tsResp.Code {
		case http.StatusBadRequest, http.StatusNotFound:
			return nil, fmt.Errorf("twelvedata %s: %w: %s", symbol, domain.ErrSymbolNotFound, tsResp.Message)
		case http.StatusTooManyRequests:
			return nil, c.throttled(ctx, symbol)
		default:
			return nil, fmt.Errorf("twelvedata %s: %w: %s", symbol, domain.ErrSourceUnavailable, tsResp.Message)
		}
	}

	points := make([]domain.Point, 0, len(tsResp.Values))
	for _, v := range tsResp.Values {
		day, err := time.Parse(time.DateOnly, v.Datetime)
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(v.Close)
		if err != nil {
			slog.DebugContext(ctx, "skipping unparsable close", "symbol", symbol, "close", v.Close)
			continue
		}
		points = append(points, domain.Point{Date: day, Close: price.InexactFloat64()})
	}

	series := domain.NormalizeSeries(points)
	if len(series) == 0 {
		return nil, fmt.Errorf("twelvedata %s: %w", symbol, domain.ErrNoDataAvailable)
	}
	return series, nil
}

func (c *Client) throttled(ctx context.Context, symbol string) error {
	c.gate.CooldownUntil(c.gate.Now().Add(QuotaCooldown))
	slog.WarnContext(ctx, "twelvedata credits exhausted", "symbol", symbol, "cooldown", QuotaCooldown)
	return fmt.Errorf("twelvedata %s: %w", symbol, domain.ErrQuotaExceeded)
}
