package store

import (
	"context"
	"fmt"
)

// Config holds connection settings for both ClickHouse and PostgreSQL.
type Config struct {
	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "crchack",
			User:     "default",
			Password: "",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "crchack_state",
			User:     "crchack",
			Password: "crchack",
		},
	}
}

// DB wraps both ClickHouse and PostgreSQL connections.
type DB struct {
	CH *ClickHouseDB // ClickHouse for forge-run history and analytics.
	PG *PostgresDB   // PostgreSQL for mutable run state.
}

// Open opens connections to both ClickHouse and PostgreSQL.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}

	pg, err := OpenPostgres(ctx, cfg.Postgres)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &DB{CH: ch, PG: pg}, nil
}

// Close closes both database connections.
func (d *DB) Close() error {
	var errs []error
	if d.CH != nil {
		if err := d.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if d.PG != nil {
		d.PG.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// CreateSchemas creates the schemas in both databases.
func (d *DB) CreateSchemas(ctx context.Context) error {
	if err := d.CH.CreateSchema(ctx); err != nil {
		return fmt.Errorf("clickhouse schema: %w", err)
	}
	if err := d.PG.CreateSchema(ctx); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	return nil
}

// RecordRun writes run to both backends: PostgreSQL for the mutable,
// queryable record of record, ClickHouse for the append-only analytics
// copy. Mirrors the teacher's dual-write pattern for enrichment updates.
func (d *DB) RecordRun(ctx context.Context, run ForgeRun) error {
	if err := d.PG.InsertRun(ctx, &run); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := d.CH.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by ID from PostgreSQL, the queryable
// record of record.
func (d *DB) GetRun(ctx context.Context, id int64) (*ForgeRun, error) {
	return d.PG.GetByID(ctx, id)
}

// ListRuns returns the most recent runs, newest first, from PostgreSQL.
func (d *DB) ListRuns(ctx context.Context, limit, offset int) ([]ForgeRun, error) {
	return d.PG.ListRuns(ctx, limit, offset)
}
