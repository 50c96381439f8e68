package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/sqldb/migrations"
)

type OracleDialect struct{}

func (d *OracleDialect) Name() string { return "oracle" }

func (d *OracleDialect) Migrate(ctx context.Context, db *sql.DB) error {
	// goose has no go-ora dialect; the init script is split on "/" like SQL*Plus does.
	content, err := migrations.FS.ReadFile(migrations.OracleInit)
	if err != nil {
		return fmt.Errorf("reading migration file: %w", err)
	}

	for _, stmt := range strings.Split(string(content), "/") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			// ORA-00955: name is already used by an existing object
			if !strings.Contains(err.Error(), "ORA-00955") {
				return fmt.Errorf("migrating: %s: %w", stmt, err)
			}
		}
	}
	return nil
}

// mergeQuery builds a MERGE keyed by name. Every value is bound once in the
// USING clause and referenced as s.<column> afterwards.
func mergeQuery(table string, columns []string) string {
	selects := make([]string, len(columns))
	inserts := make([]string, len(columns))
	var updates []string
	for i, col := range columns {
		selects[i] = fmt.Sprintf(":%d AS %s", i+1, col)
		inserts[i] = "s." + col
		if col != "id" && col != "name" && col != "created_at" {
			updates = append(updates, fmt.Sprintf("t.%s = s.%s", col, col))
		}
	}
	return fmt.Sprintf(`MERGE INTO %s t
USING (SELECT %s FROM dual) s
ON (t.name = s.name)
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)`,
		table, strings.Join(selects, ", "), strings.Join(updates, ", "),
		strings.Join(columns, ", "), strings.Join(inserts, ", "))
}

func (d *OracleDialect) UpsertInstrument(ctx context.Context, tx *sql.Tx, i *domain.Instrument) error {
	values, err := instrumentValues(i)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, mergeQuery("instruments", instrumentColumns), values...)
	return err
}

func (d *OracleDialect) UpsertIndex(ctx context.Context, tx *sql.Tx, idx *domain.Index) error {
	_, err := tx.ExecContext(ctx, mergeQuery("indices", indexColumns), indexValues(idx)...)
	return err
}
