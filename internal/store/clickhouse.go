package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection used as the append-only,
// high-volume analytics copy of forge-run history.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the forge_runs table.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	return d.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS forge_runs (
			id                 UInt64,
			requested_at       DateTime64(3),
			width              UInt16,
			poly               String,
			init               String,
			xor_out            String,
			reflect_in         UInt8,
			reflect_out        UInt8,
			message_digest     FixedString(64),
			message_length     UInt32,
			mutable_bit_count  UInt32,
			target_checksum    String,
			success            UInt8,
			flip_count         UInt32,
			forge_return_code  Int8,
			duration_micros    UInt64,
			created_at         DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(requested_at)
		ORDER BY (width, success, requested_at, id)
		SETTINGS index_granularity = 8192`)
}

// InsertRun stores a single run in ClickHouse.
func (d *ClickHouseDB) InsertRun(ctx context.Context, run ForgeRun) error {
	return d.conn.Exec(ctx, `
		INSERT INTO forge_runs (id, requested_at, width, poly, init, xor_out, reflect_in, reflect_out,
			message_digest, message_length, mutable_bit_count, target_checksum, success,
			flip_count, forge_return_code, duration_micros)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.RequestedAt, run.Params.Width, run.Params.Poly, run.Params.Init, run.Params.XorOut,
		boolToUint8(run.Params.ReflectIn), boolToUint8(run.Params.ReflectOut),
		hex.EncodeToString(run.MessageDigest[:]), run.MessageLength, run.MutableBitCount,
		run.TargetChecksum, boolToUint8(run.Success), run.FlipCount, run.ForgeReturnCode, run.DurationMicros)
}

// InsertRunBatch stores multiple runs efficiently.
func (d *ClickHouseDB) InsertRunBatch(ctx context.Context, runs []ForgeRun) error {
	if len(runs) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO forge_runs (id, requested_at, width, poly, init, xor_out, reflect_in, reflect_out,
			message_digest, message_length, mutable_bit_count, target_checksum, success,
			flip_count, forge_return_code, duration_micros)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, run := range runs {
		err := batch.Append(run.ID, run.RequestedAt, run.Params.Width, run.Params.Poly, run.Params.Init,
			run.Params.XorOut, boolToUint8(run.Params.ReflectIn), boolToUint8(run.Params.ReflectOut),
			hex.EncodeToString(run.MessageDigest[:]), run.MessageLength, run.MutableBitCount,
			run.TargetChecksum, boolToUint8(run.Success), run.FlipCount, run.ForgeReturnCode, run.DurationMicros)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// CHStats summarizes forge-run volume and success rate over the archive.
type CHStats struct {
	TotalRuns      uint64
	Successful     uint64
	AvgFlipCount   float64
	AvgDurationMs  float64
	ByWidth        map[uint16]uint64
}

// GetStats computes aggregate statistics across all recorded runs.
func (d *ClickHouseDB) GetStats(ctx context.Context) (*CHStats, error) {
	stats := &CHStats{ByWidth: make(map[uint16]uint64)}

	row := d.conn.QueryRow(ctx, `
		SELECT count(), sumIf(1, success = 1), avg(flip_count), avg(duration_micros) / 1000
		FROM forge_runs`)
	if err := row.Scan(&stats.TotalRuns, &stats.Successful, &stats.AvgFlipCount, &stats.AvgDurationMs); err != nil {
		return nil, fmt.Errorf("stats query: %w", err)
	}

	rows, err := d.conn.Query(ctx, "SELECT width, count() FROM forge_runs GROUP BY width ORDER BY count() DESC")
	if err != nil {
		return nil, fmt.Errorf("by-width query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var width uint16
		var count uint64
		if err := rows.Scan(&width, &count); err != nil {
			return nil, err
		}
		stats.ByWidth[width] = count
	}
	return stats, rows.Err()
}

// CountSince returns the number of runs recorded at or after since.
func (d *ClickHouseDB) CountSince(ctx context.Context, since time.Time) (uint64, error) {
	var count uint64
	row := d.conn.QueryRow(ctx, "SELECT count() FROM forge_runs WHERE requested_at >= ?", since)
	return count, row.Scan(&count)
}
