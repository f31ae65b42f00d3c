package store

import (
	"context"
	"os"
	"testing"
)

// setupTestPostgres opens a PostgreSQL connection for integration tests.
// Returns nil if no PostgreSQL connection is available, so these tests skip
// cleanly on a machine without one running.
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "crchack"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "crchack"
	}
	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		database = "crchack_state"
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, PostgresConfig{
		Host:     host,
		Port:     5432,
		User:     user,
		Password: password,
		Database: database,
	})
	if err != nil {
		return nil
	}
	if err := pg.CreateSchema(ctx); err != nil {
		pg.Close()
		return nil
	}
	return pg
}

func TestPostgresInsertAndGetByID(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("no PostgreSQL connection available")
	}
	defer pg.Close()

	ctx := context.Background()
	run := testRun(32, true)
	if err := pg.InsertRun(ctx, &run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	runs, err := pg.ListRuns(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns returned %d rows, want 1", len(runs))
	}

	got, err := pg.GetByID(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.TargetChecksum != "deadbeef" {
		t.Errorf("got = %+v", got)
	}
}
