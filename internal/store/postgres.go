package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // SSL mode (disable, require, verify-ca, verify-full). Default: disable.
}

// PostgresDB wraps a PostgreSQL connection pool for forge-run state.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, escapedPassword, cfg.Host, cfg.Port, cfg.Database, sslMode)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// Pool returns the underlying connection pool for direct queries.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the forge_runs table.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS forge_runs (
		id                  BIGSERIAL PRIMARY KEY,
		requested_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		width               INTEGER NOT NULL,
		poly                TEXT NOT NULL,
		init                TEXT NOT NULL,
		xor_out             TEXT NOT NULL,
		reflect_in          BOOLEAN NOT NULL,
		reflect_out         BOOLEAN NOT NULL,
		message_digest      TEXT NOT NULL,
		message_length      INTEGER NOT NULL,
		mutable_bit_count   INTEGER NOT NULL,
		target_checksum     TEXT NOT NULL,
		success             BOOLEAN NOT NULL,
		flip_count          INTEGER NOT NULL,
		forge_return_code   INTEGER NOT NULL,
		duration_micros     BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_forge_runs_requested_at ON forge_runs(requested_at);
	CREATE INDEX IF NOT EXISTS idx_forge_runs_digest ON forge_runs(message_digest);
	CREATE INDEX IF NOT EXISTS idx_forge_runs_success ON forge_runs(success);
	`
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertRun records run and fills in run.ID/RequestedAt from the server.
func (d *PostgresDB) InsertRun(ctx context.Context, run *ForgeRun) error {
	row := d.pool.QueryRow(ctx, `
		INSERT INTO forge_runs (width, poly, init, xor_out, reflect_in, reflect_out,
			message_digest, message_length, mutable_bit_count, target_checksum, success,
			flip_count, forge_return_code, duration_micros)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, requested_at`,
		run.Params.Width, run.Params.Poly, run.Params.Init, run.Params.XorOut,
		run.Params.ReflectIn, run.Params.ReflectOut, hex.EncodeToString(run.MessageDigest[:]),
		run.MessageLength, run.MutableBitCount, run.TargetChecksum, run.Success,
		run.FlipCount, run.ForgeReturnCode, run.DurationMicros)

	return row.Scan(&run.ID, &run.RequestedAt)
}

// GetByID retrieves a single run by ID.
func (d *PostgresDB) GetByID(ctx context.Context, id int64) (*ForgeRun, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, requested_at, width, poly, init, xor_out, reflect_in, reflect_out,
			message_digest, message_length, mutable_bit_count, target_checksum, success,
			flip_count, forge_return_code, duration_micros
		FROM forge_runs WHERE id = $1`, id)

	run, err := scanPostgresRun(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first, bounded by limit.
func (d *PostgresDB) ListRuns(ctx context.Context, limit, offset int) ([]ForgeRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, requested_at, width, poly, init, xor_out, reflect_in, reflect_out,
			message_digest, message_length, mutable_bit_count, target_checksum, success,
			flip_count, forge_return_code, duration_micros
		FROM forge_runs ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list forge runs: %w", err)
	}
	defer rows.Close()

	var runs []ForgeRun
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// pgxRow is satisfied by both pgx.Row and pgx.Rows.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanPostgresRun(r pgxRow) (ForgeRun, error) {
	var run ForgeRun
	var digestHex string

	err := r.Scan(&run.ID, &run.RequestedAt, &run.Params.Width, &run.Params.Poly, &run.Params.Init,
		&run.Params.XorOut, &run.Params.ReflectIn, &run.Params.ReflectOut, &digestHex,
		&run.MessageLength, &run.MutableBitCount, &run.TargetChecksum, &run.Success,
		&run.FlipCount, &run.ForgeReturnCode, &run.DurationMicros)
	if err != nil {
		return ForgeRun{}, err
	}
	if digest, err := hex.DecodeString(digestHex); err == nil && len(digest) == len(run.MessageDigest) {
		copy(run.MessageDigest[:], digest)
	}
	return run, nil
}

// CountSince returns the number of runs recorded at or after since.
func (d *PostgresDB) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM forge_runs WHERE requested_at >= $1", since).Scan(&count)
	return count, err
}
