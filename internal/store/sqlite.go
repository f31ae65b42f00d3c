package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDB wraps a SQLite database for a local, offline archive of forge
// runs -- the path a CLI invocation or a disconnected worker uses when
// PostgreSQL/ClickHouse aren't reachable.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite database at path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// CreateSchema creates the forge_runs table if it doesn't already exist.
func (d *SQLiteDB) CreateSchema() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS forge_runs (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			requested_at       TEXT NOT NULL,
			width              INTEGER NOT NULL,
			poly               TEXT NOT NULL,
			init               TEXT NOT NULL,
			xor_out            TEXT NOT NULL,
			reflect_in         INTEGER NOT NULL,
			reflect_out        INTEGER NOT NULL,
			message_digest     TEXT NOT NULL,
			message_length     INTEGER NOT NULL,
			mutable_bit_count  INTEGER NOT NULL,
			target_checksum    TEXT NOT NULL,
			success            INTEGER NOT NULL,
			flip_count         INTEGER NOT NULL,
			forge_return_code  INTEGER NOT NULL,
			duration_micros    INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertRun archives run.
func (d *SQLiteDB) InsertRun(run ForgeRun) (int64, error) {
	res, err := d.db.Exec(`
		INSERT INTO forge_runs (requested_at, width, poly, init, xor_out, reflect_in, reflect_out,
			message_digest, message_length, mutable_bit_count, target_checksum, success,
			flip_count, forge_return_code, duration_micros)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RequestedAt.Format(time.RFC3339Nano), run.Params.Width, run.Params.Poly, run.Params.Init,
		run.Params.XorOut, run.Params.ReflectIn, run.Params.ReflectOut,
		hex.EncodeToString(run.MessageDigest[:]), run.MessageLength, run.MutableBitCount,
		run.TargetChecksum, run.Success, run.FlipCount, run.ForgeReturnCode, run.DurationMicros)
	if err != nil {
		return 0, fmt.Errorf("insert forge run: %w", err)
	}
	return res.LastInsertId()
}

// QueryParams filters a Query over archived runs.
type QueryParams struct {
	Success   *bool // nil = don't filter
	MinWidth  uint
	Limit     int
	Offset    int
	OrderDesc bool
}

// Query retrieves archived runs matching p.
func (d *SQLiteDB) Query(p QueryParams) ([]ForgeRun, error) {
	query := `SELECT id, requested_at, width, poly, init, xor_out, reflect_in, reflect_out,
			message_digest, message_length, mutable_bit_count, target_checksum, success,
			flip_count, forge_return_code, duration_micros
		FROM forge_runs WHERE width >= ?`
	args := []interface{}{p.MinWidth}
	if p.Success != nil {
		query += " AND success = ?"
		args = append(args, *p.Success)
	}

	direction := "ASC"
	if p.OrderDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY id %s", direction)

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query forge runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []ForgeRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetByID retrieves a single archived run by ID.
func (d *SQLiteDB) GetByID(id int64) (*ForgeRun, error) {
	row := d.db.QueryRow(`SELECT id, requested_at, width, poly, init, xor_out, reflect_in, reflect_out,
			message_digest, message_length, mutable_bit_count, target_checksum, success,
			flip_count, forge_return_code, duration_micros
		FROM forge_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (ForgeRun, error) {
	var run ForgeRun
	var requestedAt, digestHex string
	var reflectIn, reflectOut, success int

	err := s.Scan(&run.ID, &requestedAt, &run.Params.Width, &run.Params.Poly, &run.Params.Init,
		&run.Params.XorOut, &reflectIn, &reflectOut, &digestHex, &run.MessageLength,
		&run.MutableBitCount, &run.TargetChecksum, &success, &run.FlipCount,
		&run.ForgeReturnCode, &run.DurationMicros)
	if err != nil {
		return ForgeRun{}, err
	}

	run.RequestedAt, _ = time.Parse(time.RFC3339Nano, requestedAt)
	run.Params.ReflectIn = reflectIn != 0
	run.Params.ReflectOut = reflectOut != 0
	run.Success = success != 0
	if digest, err := hex.DecodeString(digestHex); err == nil && len(digest) == sha256.Size {
		copy(run.MessageDigest[:], digest)
	}
	return run, nil
}

// Stats summarizes the archive.
type Stats struct {
	TotalRuns    int
	Successful   int
	ByWidth      map[uint]int
	AvgFlipCount float64
}

// GetStats returns aggregate statistics about archived runs.
func (d *SQLiteDB) GetStats() (*Stats, error) {
	stats := &Stats{ByWidth: make(map[uint]int)}

	row := d.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(success), 0), COALESCE(AVG(flip_count), 0) FROM forge_runs")
	if err := row.Scan(&stats.TotalRuns, &stats.Successful, &stats.AvgFlipCount); err != nil {
		return nil, err
	}

	rows, err := d.db.Query("SELECT width, COUNT(*) FROM forge_runs GROUP BY width ORDER BY COUNT(*) DESC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var width uint
		var count int
		if err := rows.Scan(&width, &count); err != nil {
			return nil, err
		}
		stats.ByWidth[width] = count
	}
	return stats, rows.Err()
}

// Count returns the total number of archived runs, optionally filtered to
// only successful ones.
func (d *SQLiteDB) Count(successOnly bool) (int, error) {
	var count int
	var err error
	if successOnly {
		err = d.db.QueryRow("SELECT COUNT(*) FROM forge_runs WHERE success = 1").Scan(&count)
	} else {
		err = d.db.QueryRow("SELECT COUNT(*) FROM forge_runs").Scan(&count)
	}
	return count, err
}
