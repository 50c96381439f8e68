package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmanzanog/price-reconciler/internal/domain"
)

// Dialect isolates the engine-specific parts: schema migration and upserts
// keyed by the unique name.
type Dialect interface {
	Name() string
	Migrate(ctx context.Context, db *sql.DB) error
	UpsertInstrument(ctx context.Context, tx *sql.Tx, i *domain.Instrument) error
	UpsertIndex(ctx context.Context, tx *sql.Tx, idx *domain.Index) error
}

// instrumentColumns is the column order shared by every dialect.
var instrumentColumns = []string{
	"id", "name", "kind", "ticker", "pending_ticker", "invalid_tickers",
	"country", "currency", "link", "reference_close",
	"dividend", "beta", "eps", "shares", "market_cap",
	"init_source", "data_source", "created_at", "updated_at", "last_refresh",
}

var indexColumns = []string{"id", "name", "asset_id", "country", "init_source", "created_at", "updated_at"}

func instrumentValues(i *domain.Instrument) ([]any, error) {
	invalid := i.InvalidTickers
	if invalid == nil {
		invalid = []string{}
	}
	encoded, err := json.Marshal(invalid)
	if err != nil {
		return nil, fmt.Errorf("encoding invalid tickers: %w", err)
	}

	var lastRefresh sql.NullTime
	if !i.LastRefresh.IsZero() {
		lastRefresh = sql.NullTime{Time: i.LastRefresh, Valid: true}
	}

	return []any{
		i.ID, i.Name, string(i.Kind), nullString(i.Ticker), nullString(i.PendingTicker), string(encoded),
		nullString(i.Country), nullString(i.Currency), nullString(i.Link), i.ReferenceClose,
		i.Details.Dividend, i.Details.Beta, i.Details.EPS, i.Details.Shares, i.Details.MarketCap,
		nullString(i.InitSource), nullString(string(i.DataSource)), i.CreatedAt, i.UpdatedAt, lastRefresh,
	}, nil
}

func indexValues(idx *domain.Index) []any {
	return []any{
		idx.ID, idx.Name, nullString(idx.AssetID), nullString(idx.Country), nullString(idx.InitSource),
		idx.CreatedAt, idx.UpdatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
