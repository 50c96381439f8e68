package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/sqldb/migrations"
	"github.com/pressly/goose/v3"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, migrations.PostgresDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// upsertQuery builds INSERT ... ON CONFLICT (name) DO UPDATE, leaving id and
// created_at untouched on conflict.
func upsertQuery(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	var updates []string
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "id" && col != "name" && col != "created_at" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (name) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

func (d *PostgresDialect) UpsertInstrument(ctx context.Context, tx *sql.Tx, i *domain.Instrument) error {
	values, err := instrumentValues(i)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, upsertQuery("instruments", instrumentColumns), values...)
	return err
}

func (d *PostgresDialect) UpsertIndex(ctx context.Context, tx *sql.Tx, idx *domain.Index) error {
	_, err := tx.ExecContext(ctx, upsertQuery("indices", indexColumns), indexValues(idx)...)
	return err
}
