package referencesite

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jmanzanog/price-reconciler/internal/domain"
)

var (
	ErrUnexpectedLayout = errors.New("reference site: unexpected page layout")
	ErrUnsupportedAsset = errors.New("reference site: unsupported asset url")
)

// Listing is one row of an index or component table.
type Listing struct {
	Name    string `json:"name"`
	Link    string `json:"link"`
	Country string `json:"country"`
}

func (l Listing) field(name string) string {
	switch name {
	case "name":
		return l.Name
	case "country":
		return l.Country
	case "link":
		return l.Link
	default:
		return ""
	}
}

// Asset is what an instrument detail page tells us.
type Asset struct {
	Link          string
	Kind          domain.Kind
	PendingTicker string
	Currency      string
	PrevClose     domain.Decimal
	Details       domain.Details
}

func parseDocument(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// parseListings reads the rows of the table under container:
// first cell holds the country flag, second the linked name.
func parseListings(doc *goquery.Document, container string) ([]Listing, error) {
	root := doc.Find(container)
	if root.Length() == 0 {
		return nil, fmt.Errorf("%w: %s not found", ErrUnexpectedLayout, container)
	}

	var out []Listing
	root.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() < 2 {
			return
		}
		country, _ := tds.Eq(0).Find("span").Attr("title")
		a := tds.Eq(1).Find("a").First()
		link, ok := a.Attr("href")
		if !ok {
			return
		}
		out = append(out, Listing{
			Name:    strings.TrimSpace(strings.ReplaceAll(a.Text(), ";", "")),
			Link:    link,
			Country: strings.TrimSpace(country),
		})
	})
	return out, nil
}

// pageCount is the number of numbered page links; 0 or 1 means a single page.
func pageCount(doc *goquery.Document) int {
	return doc.Find("#paginationWrap a.pagination").Length()
}

var parens = regexp.MustCompile(`[()]`)

// parseTicker prefers the related-instruments table, skipping numeric
// tickers, and falls back to the heading: "Apple Inc (AAPL)" yields "AAPL",
// a heading without parentheses yields its first word.
func parseTicker(doc *goquery.Document) (ticker, currency string) {
	if siblings := doc.Find("#DropdownSiblingsTable"); siblings.Length() > 0 {
		siblings.Find("tr").Slice(1, goquery.ToEnd).EachWithBreak(func(_ int, tr *goquery.Selection) bool {
			tds := tr.Find("td")
			candidate := strings.TrimSpace(tds.Eq(1).Find("a").Text())
			if candidate == "" || isDigits(candidate) {
				return true
			}
			ticker = candidate
			currency = strings.TrimSpace(tds.Eq(3).Text())
			return false
		})
		return ticker, currency
	}

	heading := doc.Find("div.instrumentHead h1").First()
	if heading.Length() == 0 {
		return "", ""
	}
	text := strings.TrimSpace(heading.Text())
	if parts := parens.Split(text, -1); len(parts) > 1 {
		return strings.TrimSpace(parts[len(parts)-2]), ""
	}
	if fields := strings.Fields(text); len(fields) > 0 {
		return fields[0], ""
	}
	return "", ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// kindFromLink derives the asset kind from the detail page path.
func kindFromLink(link string) (domain.Kind, error) {
	switch {
	case strings.Contains(link, "indices"):
		return domain.KindIndex, nil
	case strings.Contains(link, "currencies"):
		return domain.KindForex, nil
	case strings.Contains(link, "equities"):
		return domain.KindStock, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAsset, link)
	}
}

type fieldParser func(string) (domain.Decimal, error)

func firstToken(s string) (domain.Decimal, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return domain.Zero, fmt.Errorf("empty value")
	}
	return domain.ParseDecimal(fields[0])
}

var panelFields = map[string]struct {
	parse fieldParser
	set   func(*Asset, domain.Decimal)
}{
	"Dividend (Yield)":   {firstToken, func(a *Asset, d domain.Decimal) { a.Details.Dividend = d }},
	"Beta":               {domain.ParseDecimal, func(a *Asset, d domain.Decimal) { a.Details.Beta = d }},
	"EPS":                {domain.ParseDecimal, func(a *Asset, d domain.Decimal) { a.Details.EPS = d }},
	"Shares Outstanding": {domain.ParseUnitDecimal, func(a *Asset, d domain.Decimal) { a.Details.Shares = d }},
	"Market Cap":         {domain.ParseUnitDecimal, func(a *Asset, d domain.Decimal) { a.Details.MarketCap = d }},
	"Prev. Close":        {domain.ParseDecimal, func(a *Asset, d domain.Decimal) { a.PrevClose = d }},
}

// parsePanel fills the metadata fields from the overview key/value panel.
// "n/a" and unparsable values leave the field at zero.
func parsePanel(doc *goquery.Document, asset *Asset) {
	doc.Find("div.overviewDataTable div").Each(func(_ int, div *goquery.Selection) {
		spans := div.Find("span")
		if spans.Length() < 2 {
			return
		}
		key := strings.TrimSpace(spans.Eq(0).Text())
		value := strings.TrimSpace(spans.Eq(1).Text())

		field, ok := panelFields[key]
		if !ok {
			return
		}
		if strings.Contains(strings.ToLower(value), "n/a") {
			field.set(asset, domain.Zero)
			return
		}
		d, err := field.parse(value)
		if err != nil {
			slog.Debug("unparsable panel value", "key", key, "value", value, "error", err)
			field.set(asset, domain.Zero)
			return
		}
		field.set(asset, d)
	})
}
