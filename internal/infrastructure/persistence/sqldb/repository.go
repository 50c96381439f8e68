package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
)

// Repository implements domain.InstrumentRepository over database/sql.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.Dialect.Migrate(ctx, r.db.DB)
}

var selectInstrument = "SELECT " + strings.Join(instrumentColumns, ", ") + " FROM instruments"

var selectIndex = "SELECT " + strings.Join(indexColumns, ", ") + " FROM indices"

func (r *Repository) FindByName(ctx context.Context, name string) (*domain.Instrument, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectInstrument+" WHERE name = $1"), name)
	inst, err := scanInstrument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstrumentNotFound, name)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to find instrument", "name", name, "error", err)
		return nil, fmt.Errorf("querying instrument: %w", err)
	}
	return inst, nil
}

func (r *Repository) FindAll(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := r.db.QueryContext(ctx, selectInstrument+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying instruments: %w", err)
	}
	defer closeRows(rows)

	var out []domain.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func (r *Repository) Create(ctx context.Context, inst *domain.Instrument) error {
	return r.saveInstrument(ctx, inst)
}

func (r *Repository) Update(ctx context.Context, inst *domain.Instrument) error {
	return r.saveInstrument(ctx, inst)
}

func (r *Repository) saveInstrument(ctx context.Context, inst *domain.Instrument) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.db.Dialect.UpsertInstrument(ctx, tx, inst); err != nil {
			slog.ErrorContext(ctx, "Failed to save instrument", "name", inst.Name, "error", err)
			return fmt.Errorf("upsert instrument: %w", err)
		}
		return nil
	})
}

func (r *Repository) FindIndex(ctx context.Context, name string) (*domain.Index, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectIndex+" WHERE name = $1"), name)
	idx, err := scanIndex(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	components, err := r.IndexComponents(ctx, name)
	if err != nil {
		return nil, err
	}
	idx.Components = components
	return idx, nil
}

func (r *Repository) FindAllIndices(ctx context.Context) ([]domain.Index, error) {
	rows, err := r.db.QueryContext(ctx, selectIndex+" ORDER BY country, name")
	if err != nil {
		return nil, fmt.Errorf("querying indices: %w", err)
	}
	defer closeRows(rows)

	var out []domain.Index
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, *idx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Components, err = r.IndexComponents(ctx, out[i].Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) CreateIndex(ctx context.Context, idx *domain.Index) error {
	return r.saveIndex(ctx, idx)
}

func (r *Repository) UpdateIndex(ctx context.Context, idx *domain.Index) error {
	return r.saveIndex(ctx, idx)
}

func (r *Repository) saveIndex(ctx context.Context, idx *domain.Index) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.db.Dialect.UpsertIndex(ctx, tx, idx); err != nil {
			slog.ErrorContext(ctx, "Failed to save index", "name", idx.Name, "error", err)
			return fmt.Errorf("upsert index: %w", err)
		}
		return nil
	})
}

func (r *Repository) IndexComponents(ctx context.Context, indexName string) ([]string, error) {
	query := r.rebind("SELECT instrument_name FROM index_components WHERE index_name = $1 ORDER BY instrument_name")
	rows, err := r.db.QueryContext(ctx, query, indexName)
	if err != nil {
		return nil, fmt.Errorf("querying components: %w", err)
	}
	defer closeRows(rows)

	components := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		components = append(components, name)
	}
	return components, rows.Err()
}

// SetIndexComponents replaces the membership of indexName in one transaction.
func (r *Repository) SetIndexComponents(ctx context.Context, indexName string, components []string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind("DELETE FROM index_components WHERE index_name = $1"), indexName); err != nil {
			return fmt.Errorf("failed to clear components: %w", err)
		}

		insert := r.rebind("INSERT INTO index_components (index_name, instrument_name) VALUES ($1, $2)")
		for _, name := range components {
			if _, err := tx.ExecContext(ctx, insert, indexName, name); err != nil {
				return fmt.Errorf("failed to insert component %s: %w", name, err)
			}
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstrument(s scanner) (*domain.Instrument, error) {
	var (
		inst                                     domain.Instrument
		kind                                     string
		ticker, pending, country, currency, link sql.NullString
		initSource, dataSource, invalidTickers   sql.NullString
		lastRefresh                              sql.NullTime
		createdAt, updatedAt                     time.Time
	)

	err := s.Scan(
		&inst.ID, &inst.Name, &kind, &ticker, &pending, &invalidTickers,
		&country, &currency, &link, &inst.ReferenceClose,
		&inst.Details.Dividend, &inst.Details.Beta, &inst.Details.EPS, &inst.Details.Shares, &inst.Details.MarketCap,
		&initSource, &dataSource, &createdAt, &updatedAt, &lastRefresh,
	)
	if err != nil {
		return nil, err
	}

	inst.Kind = domain.Kind(kind)
	inst.Ticker = ticker.String
	inst.PendingTicker = pending.String
	inst.Country = country.String
	inst.Currency = currency.String
	inst.Link = link.String
	inst.InitSource = initSource.String
	inst.DataSource = domain.SourceID(dataSource.String)
	inst.CreatedAt = createdAt
	inst.UpdatedAt = updatedAt
	inst.LastRefresh = lastRefresh.Time

	inst.InvalidTickers = []string{}
	if invalidTickers.Valid && invalidTickers.String != "" {
		if err := json.Unmarshal([]byte(invalidTickers.String), &inst.InvalidTickers); err != nil {
			return nil, fmt.Errorf("decoding invalid tickers of %s: %w", inst.Name, err)
		}
	}
	return &inst, nil
}

func scanIndex(s scanner) (*domain.Index, error) {
	var (
		idx                          domain.Index
		assetID, country, initSource sql.NullString
	)
	if err := s.Scan(&idx.ID, &idx.Name, &assetID, &country, &initSource, &idx.CreatedAt, &idx.UpdatedAt); err != nil {
		return nil, err
	}
	idx.AssetID = assetID.String
	idx.Country = country.String
	idx.InitSource = initSource.String
	idx.Components = []string{}
	return &idx, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("Failed to close rows", "error", err)
	}
}

var positional = regexp.MustCompile(`\$(\d+)`)

func (r *Repository) rebind(query string) string {
	if r.db.Dialect.Name() == "oracle" {
		return positional.ReplaceAllString(query, ":$1")
	}
	return query
}
