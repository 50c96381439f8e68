package referencesite

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/httpx"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/ratelimit"
)

const (
	majorIndicesPath = "/indices/major-indices"

	DefaultMinInterval = 10 * time.Second
	DefaultDetailPause = 10 * time.Second
)

// Client scrapes index membership and instrument metadata from the reference
// site. It never serves price series.
type Client struct {
	baseURL     string
	httpClient  *httpx.Client
	gate        *ratelimit.Gate
	detailPause time.Duration
	filters     Filters
}

func NewClient(baseURL string, filters Filters) *Client {
	hc := httpx.New(httpx.DefaultTimeout)
	return newClient(baseURL, hc, ratelimit.NewGate(DefaultMinInterval), filters)
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client and gate (for testing).
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client, gate *ratelimit.Gate, filters Filters) *Client {
	return newClient(baseURL, httpx.Wrap(httpClient), gate, filters)
}

func newClient(baseURL string, hc *httpx.Client, gate *ratelimit.Gate, filters Filters) *Client {
	hc.UserAgent = "Mozilla/5.1"
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  hc,
		gate:        gate,
		detailPause: DefaultDetailPause,
		filters:     filters,
	}
}

// SetDetailPause overrides the fixed pause taken before each detail page.
func (c *Client) SetDetailPause(d time.Duration) {
	c.detailPause = d
}

func (c *Client) fetch(ctx context.Context, path string) (*goquery.Document, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}

	reqURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		reqURL = c.baseURL + path
	}

	status, body, err := c.httpClient.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("reference site %s: %w", path, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("reference site %s: %w: status %d", path, domain.ErrSourceUnavailable, status)
	}
	return parseDocument(bytes.NewReader(body))
}

// ListIndices returns the major indices, filtered unless bypassFilter is set.
func (c *Client) ListIndices(ctx context.Context, bypassFilter bool) ([]Listing, error) {
	doc, err := c.fetch(ctx, majorIndicesPath)
	if err != nil {
		return nil, err
	}
	rows, err := parseListings(doc, "#cross_rates_container")
	if err != nil {
		return nil, err
	}

	out := make([]Listing, 0, len(rows))
	for _, l := range rows {
		if bypassFilter || c.filters.Allowed(ListingIndex, l) {
			out = append(out, l)
		}
	}
	return out, nil
}

// ListComponents returns the filtered components of the index at indexLink,
// following numbered pagination and merging pages by name.
func (c *Client) ListComponents(ctx context.Context, indexLink string) ([]Listing, error) {
	base := indexLink + "-components"

	doc, err := c.fetch(ctx, base)
	if err != nil {
		return nil, err
	}
	rows, err := parseListings(doc, "#marketInnerContent")
	if err != nil {
		return nil, err
	}

	pages := pageCount(doc)
	for page := 2; page <= pages; page++ {
		pageDoc, err := c.fetch(ctx, fmt.Sprintf("%s/%d", base, page))
		if err != nil {
			return nil, fmt.Errorf("components page %d: %w", page, err)
		}
		more, err := parseListings(pageDoc, "#marketInnerContent")
		if err != nil {
			return nil, fmt.Errorf("components page %d: %w", page, err)
		}
		rows = append(rows, more...)
	}

	seen := make(map[string]int, len(rows))
	out := make([]Listing, 0, len(rows))
	for _, l := range rows {
		if !c.filters.Allowed(ListingAsset, l) {
			continue
		}
		if i, ok := seen[l.Name]; ok {
			out[i] = l
			continue
		}
		seen[l.Name] = len(out)
		out = append(out, l)
	}

	slog.DebugContext(ctx, "scraped index components", "index", indexLink, "pages", max(pages, 1), "components", len(out))
	return out, nil
}

// GetAsset scrapes one instrument detail page.
func (c *Client) GetAsset(ctx context.Context, link string) (*Asset, error) {
	kind, err := kindFromLink(link)
	if err != nil {
		return nil, err
	}

	c.gate.Pause(c.detailPause)

	doc, err := c.fetch(ctx, link)
	if err != nil {
		return nil, err
	}

	asset := &Asset{Link: link, Kind: kind}
	asset.PendingTicker, asset.Currency = parseTicker(doc)
	if kind == domain.KindIndex && asset.PendingTicker != "" {
		asset.PendingTicker = "^" + asset.PendingTicker
	}
	parsePanel(doc, asset)

	return asset, nil
}
