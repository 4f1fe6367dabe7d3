package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
)

func TestAutoMigrateIsIdempotent(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	database, err := NewDatabase(os.Getenv("TEST_DB_DSN"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer database.Close()

	for i := 0; i < 2; i++ {
		if err := database.AutoMigrate(); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}

	ctx := context.Background()
	_, err = database.Conn.ExecContext(ctx, `INSERT INTO users (username, email, password) VALUES ('dup_check', 'dup_check@test', 'x')`)
	if err != nil && !IsUniqueViolation(err) {
		t.Fatalf("insert duplicate: %v", err)
	}
	_, err = database.Conn.ExecContext(ctx, `INSERT INTO users (username, email, password) VALUES ('dup_check', 'dup_check@test', 'x')`)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	database, err := NewDatabase(os.Getenv("TEST_DB_DSN"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer database.Close()
	if err := database.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	sentinel := context.Canceled
	err = WithTx(ctx, database.Conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO courses (code, name) VALUES ('TX-ROLLBACK', 'x')`); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	var count int
	if err := database.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses WHERE code = 'TX-ROLLBACK'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}
