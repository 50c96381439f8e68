package yahoo

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
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	chartPath      = "/v8/finance/chart/"

	// DefaultQuotaCooldown is how long the client stays out of rotation after a 429.
	DefaultQuotaCooldown = 15 * time.Minute
)

// Client reads full daily history from the Yahoo Finance chart API.
type Client struct {
	baseURL       string
	httpClient    *httpx.Client
	gate          *ratelimit.Gate
	quotaCooldown time.Duration
}

func NewClient(minInterval time.Duration) *Client {
	return NewClientWithHTTPClient(httpx.New(httpx.DefaultTimeout).HTTP, ratelimit.NewGate(minInterval))
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client (for testing).
func NewClientWithHTTPClient(httpClient *http.Client, gate *ratelimit.Gate) *Client {
	hc := httpx.Wrap(httpClient)
	hc.UserAgent = "Mozilla/5.0"
	return &Client{
		baseURL:       defaultBaseURL,
		httpClient:    hc,
		gate:          gate,
		quotaCooldown: DefaultQuotaCooldown,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) Name() domain.SourceID {
	return domain.SourceYahoo
}

func (c *Client) IsAvailable() bool {
	return c.gate.IsAvailable()
}

// Symbol maps a stored ticker to Yahoo's notation ("EUR/USD" becomes "EURUSD=X").
func Symbol(ticker string, kind domain.Kind) string {
	if kind == domain.KindForex {
		return strings.ReplaceAll(ticker, "/", "") + "=X"
	}
	if kind == domain.KindCrypto {
		return strings.ReplaceAll(ticker, "/", "-")
	}
	return ticker
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				// GMTOffset is the exchange's offset from UTC in seconds.
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) GetSeries(ctx context.Context, ticker string, kind domain.Kind) (domain.Series, error) {
	if !c.gate.IsAvailable() {
		return nil, nil
	}

	symbol := Symbol(ticker, kind)
	reqURL := fmt.Sprintf("%s%s%s?interval=1d&period1=0&period2=%d&events=history",
		c.baseURL, chartPath, url.PathEscape(symbol), c.gate.Now().Unix())

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}

	status, body, err := c.httpClient.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)

	switch {
	case status == http.StatusTooManyRequests:
		c.gate.CooldownUntil(c.gate.Now().Add(c.quotaCooldown))
		slog.WarnContext(ctx, "yahoo throttled", "symbol", symbol, "cooldown", c.quotaCooldown)
		return nil, fmt.Errorf("yahoo %s: %w", symbol, domain.ErrQuotaExceeded)
	case status == http.StatusNotFound,
		decodeErr == nil && chart.Chart.Error != nil && chart.Chart.Error.Code == "Not Found":
		return nil, fmt.Errorf("yahoo %s: %w", symbol, domain.ErrSymbolNotFound)
	case status != http.StatusOK:
		return nil, fmt.Errorf("yahoo %s: %w: API returned status %d", symbol, domain.ErrSourceUnavailable, status)
	case decodeErr != nil:
		return nil, fmt.Errorf("yahoo %s: %w: failed to decode response: %v", symbol, domain.ErrSourceUnavailable, decodeErr)
	case chart.Chart.Error != nil:
		return nil, fmt.Errorf("yahoo %s: %w: %s", symbol, domain.ErrNoDataAvailable, chart.Chart.Error.Description)
	}

	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, domain.ErrNoDataAvailable)
	}

	result := chart.Chart.Result[0]
	var closes []*float64
	if len(result.Indicators.AdjClose) > 0 && len(result.Indicators.AdjClose[0].AdjClose) == len(result.Timestamp) {
		closes = result.Indicators.AdjClose[0].AdjClose
	} else if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}

	points := make([]domain.Point, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // holidays come back as null bars
		}
		// Bars are stamped at the session open; shift to exchange time so the
		// UTC day cut yields the local trading day.
		date := time.Unix(ts+result.Meta.GMTOffset, 0).UTC()
		points = append(points, domain.Point{Date: date, Close: *closes[i]})
	}

	series := domain.NormalizeSeries(points)
	if len(series) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, domain.ErrNoDataAvailable)
	}
	return series, nil
}
