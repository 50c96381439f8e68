package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Details holds the key/value metadata scraped from the reference site.
type Details struct {
	Dividend  Decimal `json:"dividend"`
	Beta      Decimal `json:"beta"`
	EPS       Decimal `json:"eps"`
	Shares    Decimal `json:"shares"`
	MarketCap Decimal `json:"market_cap"`
}

// Instrument is a tracked asset. Name is the unique identity.
type Instrument struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Kind           Kind      `json:"kind"`
	Ticker         string    `json:"ticker,omitempty"`
	PendingTicker  string    `json:"pending_ticker,omitempty"`
	InvalidTickers []string  `json:"invalid_tickers"`
	Country        string    `json:"country,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	Link           string    `json:"link,omitempty"`
	ReferenceClose Decimal   `json:"reference_close"`
	Details        Details   `json:"details"`
	InitSource     string    `json:"init_source,omitempty"`
	DataSource     SourceID  `json:"data_source,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastRefresh    time.Time `json:"last_refresh"`
}

func NewInstrument(name string, kind Kind) Instrument {
	now := time.Now().UTC()
	return Instrument{
		ID:             uuid.New().String(),
		Name:           name,
		Kind:           kind,
		InvalidTickers: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (i *Instrument) IsValid() bool {
	return i.Name != "" && i.Kind.IsValid()
}

// IsInvalidTicker reports whether ticker was already proven wrong for this instrument.
func (i *Instrument) IsInvalidTicker(ticker string) bool {
	return slices.Contains(i.InvalidTickers, ticker)
}

// AddInvalidTicker appends ticker to the invalid set. The set only grows and
// holds no duplicates; it returns false when ticker was already present.
func (i *Instrument) AddInvalidTicker(ticker string) bool {
	if ticker == "" || i.IsInvalidTicker(ticker) {
		return false
	}
	i.InvalidTickers = append(i.InvalidTickers, ticker)
	return true
}

// ResolveTicker picks the symbol to query: the confirmed ticker when set,
// otherwise a pending ticker that has not been invalidated.
func (i *Instrument) ResolveTicker() (ticker string, pending bool, ok bool) {
	if i.Ticker != "" {
		return i.Ticker, false, true
	}
	if i.PendingTicker == "" || i.IsInvalidTicker(i.PendingTicker) {
		return "", false, false
	}
	return i.PendingTicker, true, true
}

// ConfirmTicker promotes ticker after a successful reconciliation.
func (i *Instrument) ConfirmTicker(ticker string) {
	i.Ticker = ticker
}

// UpToDate reports whether the metadata was refreshed on the same UTC day as now.
func (i *Instrument) UpToDate(now time.Time) bool {
	if i.UpdatedAt.IsZero() {
		return false
	}
	y1, m1, d1 := i.UpdatedAt.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
