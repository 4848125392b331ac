// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// OpenPostgres returns a database for integration tests. POSTGRES_URL takes
// precedence when set; otherwise a throwaway postgres container is started,
// and the test is skipped if neither is available.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()

	if url := os.Getenv("POSTGRES_URL"); url != "" {
		return open(t, url)
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("cordon_test"),
		tcpostgres.WithUsername("cordon"),
		tcpostgres.WithPassword("cordon"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("POSTGRES_URL not set and no container runtime available: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}
	return open(t, url)
}

func open(t *testing.T, url string) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("connect to database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
