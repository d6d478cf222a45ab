//go:build integration

package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopkit/checkout/internal/database"
	"github.com/shopkit/checkout/internal/idempotency/postgres"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/jackc/pgx/v5/pgxpool"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testpostgres.Run(ctx,
		"postgres:16-alpine",
		testpostgres.WithDatabase("test"),
		testpostgres.WithUsername("test"),
		testpostgres.WithPassword("test"),
		testpostgres.BasicWaitStrategies(),
		testpostgres.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	projectRoot := findProjectRoot(t)
	migrationsPath := filepath.Join(projectRoot, "migrations")

	if err := database.RunMigrations(connStr, migrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func TestStoreReserveAndResolve(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	key := "test-idempotency-key-1"

	stored, acquired, err := store.Reserve(ctx, key)
	if err != nil {
		t.Fatalf("failed to reserve idempotency key: %v", err)
	}
	if !acquired {
		t.Fatal("expected to acquire a fresh key")
	}
	if stored != nil {
		t.Fatalf("expected nil stored response on fresh key, got %+v", stored)
	}

	response := ports.StoredResponse{
		StatusCode: 201,
		Body:       []byte(`{"order_id": "test-order-1"}`),
		OrderID:    "test-order-1",
	}
	if err := store.Save(ctx, key, response); err != nil {
		t.Fatalf("failed to save idempotency key: %v", err)
	}

	retrieved, acquired, err := store.Reserve(ctx, key)
	if err != nil {
		t.Fatalf("failed to reserve resolved key: %v", err)
	}
	if acquired {
		t.Fatal("expected resolved key not to be acquired again")
	}
	if retrieved == nil {
		t.Fatal("expected stored response, got nil")
	}

	if retrieved.StatusCode != response.StatusCode {
		t.Errorf("expected status code %d, got %d", response.StatusCode, retrieved.StatusCode)
	}

	if string(retrieved.Body) != string(response.Body) {
		t.Errorf("expected body %s, got %s", response.Body, retrieved.Body)
	}

	if retrieved.OrderID != response.OrderID {
		t.Errorf("expected order ID %s, got %s", response.OrderID, retrieved.OrderID)
	}
}

func TestStoreReserve_InFlight(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	key := "test-idempotency-key-in-flight"

	if _, acquired, err := store.Reserve(ctx, key); err != nil || !acquired {
		t.Fatalf("first reserve = (acquired=%v, err=%v), want acquired", acquired, err)
	}

	stored, acquired, err := store.Reserve(ctx, key)
	if err != nil {
		t.Fatalf("second reserve failed: %v", err)
	}
	if acquired {
		t.Fatal("expected duplicate reserve not to acquire")
	}
	if stored == nil || stored.StatusCode != 0 {
		t.Errorf("expected unresolved placeholder, got %+v", stored)
	}
}

func TestStoreRelease(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	key := "test-idempotency-key-release"

	if _, acquired, err := store.Reserve(ctx, key); err != nil || !acquired {
		t.Fatalf("reserve = (acquired=%v, err=%v), want acquired", acquired, err)
	}

	if err := store.Release(ctx, key); err != nil {
		t.Fatalf("failed to release idempotency key: %v", err)
	}

	if _, acquired, err := store.Reserve(ctx, key); err != nil || !acquired {
		t.Fatalf("reserve after release = (acquired=%v, err=%v), want acquired", acquired, err)
	}
}
