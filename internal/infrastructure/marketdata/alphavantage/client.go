package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/httpx"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/ratelimit"
)

const (
	defaultBaseURL = "https://www.alphavantage.co"

	// DefaultMinInterval keeps us under the free plan's 5 requests per minute.
	DefaultMinInterval = 12 * time.Second
)

// ErrKindRequired is returned when the query shape cannot be chosen.
var ErrKindRequired = fmt.Errorf("alphavantage: %w", domain.ErrKindRequired)

type Frequency string

const (
	Daily    Frequency = "DAILY"
	Weekly   Frequency = "WEEKLY"
	Monthly  Frequency = "MONTHLY"
	Intraday Frequency = "INTRADAY"
)

// Client fetches adjusted close series from the AlphaVantage query API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *httpx.Client
	gate       *ratelimit.Gate

	Frequency Frequency
	Full      bool
	Interval  string
}

// NewClient creates a client spaced by DefaultMinInterval.
func NewClient(apiKey string) *Client {
	return newClient(apiKey, httpx.New(httpx.DefaultTimeout), ratelimit.NewGate(DefaultMinInterval))
}

// NewClientWithHTTPClient creates a client with a custom HTTP client and gate (for testing).
func NewClientWithHTTPClient(apiKey string, httpClient *http.Client, gate *ratelimit.Gate) *Client {
	return newClient(apiKey, httpx.Wrap(httpClient), gate)
}

func newClient(apiKey string, hc *httpx.Client, gate *ratelimit.Gate) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: hc,
		gate:       gate,
		Frequency:  Daily,
		Full:       true,
		Interval:   "60min",
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) Name() domain.SourceID {
	return domain.SourceAlphaVantage
}

func (c *Client) IsAvailable() bool {
	return c.gate.IsAvailable()
}

// QueryURL builds the provider query for symbol. Parameters are written in
// the provider's documented order and are not re-encoded.
func (c *Client) QueryURL(symbol string, kind domain.Kind) (string, error) {
	outputSize := "compact"
	if c.Full {
		outputSize = "full"
	}

	var q string
	switch kind {
	case "":
		return "", ErrKindRequired
	case domain.KindForex:
		from, to, ok := strings.Cut(symbol, "/")
		if !ok {
			return "", fmt.Errorf("%w: forex symbol %q is not BASE/QUOTE", domain.ErrSymbolNotFound, symbol)
		}
		q = fmt.Sprintf("%s/query?function=FX_%s&from_symbol=%s&to_symbol=%s&outputsize=%s&apikey=%s",
			c.baseURL, c.Frequency, from, to, outputSize, c.apiKey)
	case domain.KindStock, domain.KindIndex:
		q = fmt.Sprintf("%s/query?function=TIME_SERIES_%s_ADJUSTED&symbol=%s&outputsize=%s&apikey=%s",
			c.baseURL, c.Frequency, symbol, outputSize, c.apiKey)
	default:
		return "", fmt.Errorf("%w: alphavantage does not serve %s", domain.ErrNoDataAvailable, kind)
	}

	if c.Frequency == Intraday {
		q += "&interval=" + c.Interval
	}
	return q, nil
}

func (c *Client) seriesKey(kind domain.Kind) string {
	if c.Frequency == Intraday {
		if kind == domain.KindForex {
			return fmt.Sprintf("Time Series FX (%s)", c.Interval)
		}
		return fmt.Sprintf("Time Series (%s)", c.Interval)
	}

	label := strings.ToUpper(string(c.Frequency[:1])) + strings.ToLower(string(c.Frequency[1:]))
	switch {
	case kind == domain.KindForex:
		return fmt.Sprintf("Time Series FX (%s)", label)
	case c.Frequency == Daily:
		return "Time Series (Daily)"
	default:
		return label + " Adjusted Time Series"
	}
}

type bar map[string]string

// GetSeries returns (nil, nil) without calling the provider while cooling down.
func (c *Client) GetSeries(ctx context.Context, symbol string, kind domain.Kind) (domain.Series, error) {
	if !c.gate.IsAvailable() {
		return nil, nil
	}

	reqURL, err := c.QueryURL(symbol, kind)
	if err != nil {
		return nil, err
	}

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}

	status, body, err := c.httpClient.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("alphavantage %s: %w", symbol, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("alphavantage %s: %w: API returned status %d", symbol, domain.ErrSourceUnavailable, status)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("alphavantage %s: %w: failed to decode response: %v", symbol, domain.ErrSourceUnavailable, err)
	}

	if msg := stringField(payload, "Error Message"); msg != "" {
		return nil, fmt.Errorf("alphavantage %s: %w: %s", symbol, domain.ErrSymbolNotFound, msg)
	}
	if msg := firstNonEmpty(stringField(payload, "Note"), stringField(payload, "Information")); msg != "" {
		until := ratelimit.NextUTCMidnight(c.gate.Now())
		c.gate.CooldownUntil(until)
		slog.WarnContext(ctx, "alphavantage quota exhausted", "symbol", symbol, "available_at", until)
		return nil, fmt.Errorf("alphavantage %s: %w: %s", symbol, domain.ErrQuotaExceeded, msg)
	}

	var bars map[string]bar
	if raw, ok := payload[c.seriesKey(kind)]; ok {
		if err := json.Unmarshal(raw, &bars); err != nil {
			return nil, fmt.Errorf("alphavantage %s: %w: malformed series: %v", symbol, domain.ErrSourceUnavailable, err)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("alphavantage %s: %w", symbol, domain.ErrNoDataAvailable)
	}

	points := make([]domain.Point, 0, len(bars))
	for date, b := range bars {
		t, err := parseDate(date)
		if err != nil {
			slog.DebugContext(ctx, "skipping alphavantage row", "symbol", symbol, "date", date, "error", err)
			continue
		}
		v, ok := b["5. adjusted close"]
		if !ok {
			v = b["4. close"]
		}
		closeValue, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		points = append(points, domain.Point{Date: t, Close: closeValue})
	}

	// Intraday payloads hold several bars per day; the latest one is the close.
	slices.SortFunc(points, func(a, b domain.Point) int { return a.Date.Compare(b.Date) })
	series := domain.NormalizeSeries(points)
	if len(series) == 0 {
		return nil, fmt.Errorf("alphavantage %s: %w", symbol, domain.ErrNoDataAvailable)
	}
	return series, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateTime, s)
}

func stringField(payload map[string]json.RawMessage, key string) string {
	raw, ok := payload[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
