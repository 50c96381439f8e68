package marketdata

import (
	"context"

	"github.com/jmanzanog/price-reconciler/internal/domain"
)

// SeriesProvider fetches a daily close series for one symbol.
// A nil series with a nil error means the provider has nothing to offer right
// now (for example while cooling down) and the next provider should be tried.
type SeriesProvider interface {
	Name() domain.SourceID
	GetSeries(ctx context.Context, symbol string, kind domain.Kind) (domain.Series, error)
}

// Availability is implemented by providers that can be in quota cooldown.
type Availability interface {
	IsAvailable() bool
}

// Registration binds a provider to the asset kinds it may be asked about.
type Registration struct {
	Provider SeriesProvider
	Kinds    domain.KindSet
}

var (
	FiatKinds   = domain.NewKindSet(domain.KindIndex, domain.KindStock, domain.KindForex)
	CryptoKinds = domain.NewKindSet(domain.KindCrypto)
)

// DefaultOrder is the fallback order used when none is configured.
var DefaultOrder = []domain.SourceID{
	domain.SourceYahoo,
	domain.SourceAlphaVantage,
	domain.SourceTwelveData,
	domain.SourceFinnhub,
	domain.SourceBinance,
}
