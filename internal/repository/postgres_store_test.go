package repository

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Runs against a migrated PostgreSQL database:
//
//	INSS_INTEGRATION=1 DATABASE_URL=postgres://... go test ./internal/repository
func TestPostgresStore(t *testing.T) {
	_ = godotenv.Load("../../.env")
	if os.Getenv("INSS_INTEGRATION") != "1" {
		t.Skip("set INSS_INTEGRATION=1 to run PostgreSQL integration tests")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	runStoreContract(t, NewPostgresStore(pool))
}
