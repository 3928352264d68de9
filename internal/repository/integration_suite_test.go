//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Orurh/courier-dispatch/internal/repository"
)

var tcPool *pgxpool.Pool

var tcDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start postgres testcontainer: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		if termErr := pgContainer.Terminate(ctx); termErr != nil {
			log.Printf("failed to terminate container after conn string error: %v", termErr)
		}
		log.Fatalf("failed to get connection string from container: %v", err)
	}

	pool, err := repository.NewPool(ctx, connStr)
	if err != nil {
		if termErr := pgContainer.Terminate(ctx); termErr != nil {
			log.Printf("failed to terminate container after pool create error: %v", termErr)
		}
		log.Fatalf("failed to create pgx pool: %v", err)
	}

	tcPool = pool
	tcDSN = connStr

	if err := createExternalTables(ctx, tcPool); err == nil {
		err = repository.Migrate(ctx, tcPool)
	}
	if err != nil {
		pool.Close()
		if termErr := pgContainer.Terminate(ctx); termErr != nil {
			log.Printf("failed to terminate container after schema error: %v", termErr)
		}
		log.Fatalf("failed to create test schema: %v", err)
	}

	code := m.Run()

	pool.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("failed to terminate postgres container: %v", err)
	}

	os.Exit(code)
}

// createExternalTables creates the minimal shape of the tables other
// services own and dispatch only reads or mirrors statuses into.
func createExternalTables(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []struct{ name, sql string }{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id          BIGINT PRIMARY KEY,
				is_verified BOOLEAN NOT NULL DEFAULT true
			)`},
		{"couriers", `
			CREATE TABLE IF NOT EXISTS couriers (
				id        BIGSERIAL PRIMARY KEY,
				user_id   BIGINT NOT NULL UNIQUE REFERENCES users(id),
				name      TEXT NOT NULL,
				latitude  DOUBLE PRECISION,
				longitude DOUBLE PRECISION,
				is_online BOOLEAN NOT NULL DEFAULT true,
				status    TEXT NOT NULL DEFAULT 'active'
			)`},
		{"vendors", `
			CREATE TABLE IF NOT EXISTS vendors (
				id      BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id)
			)`},
		{"vendor_addresses", `
			CREATE TABLE IF NOT EXISTS vendor_addresses (
				id         BIGSERIAL PRIMARY KEY,
				vendor_id  BIGINT NOT NULL REFERENCES vendors(id),
				latitude   DOUBLE PRECISION,
				longitude  DOUBLE PRECISION,
				is_default BOOLEAN NOT NULL DEFAULT true
			)`},
		{"orders", `
			CREATE TABLE IF NOT EXISTS orders (
				id          TEXT PRIMARY KEY,
				vendor_id   BIGINT NOT NULL REFERENCES vendors(id),
				customer_id BIGINT NOT NULL,
				status      TEXT NOT NULL,
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("create %s table: %w", s.name, err)
		}
	}
	return nil
}

func resetDB(t *testing.T) {
	t.Helper()
	_, err := tcPool.Exec(context.Background(), `
		TRUNCATE delivery_assignments, delivery_broadcasts, dispatch_sessions, notifications,
			orders, vendor_addresses, vendors, couriers, users
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)
}

// seedCourier inserts a verified user with a courier profile and returns the profile id.
func seedCourier(t *testing.T, userID int64, lat, lon float64) int64 {
	t.Helper()
	ctx := context.Background()

	_, err := tcPool.Exec(ctx, `INSERT INTO users (id) VALUES ($1)`, userID)
	require.NoError(t, err)

	var id int64
	err = tcPool.QueryRow(ctx, `
		INSERT INTO couriers (user_id, name, latitude, longitude)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, userID, fmt.Sprintf("courier-%d", userID), lat, lon).Scan(&id)
	require.NoError(t, err)
	return id
}

// seedOrder inserts a vendor at (lat, lon) and an order of that vendor.
func seedOrder(t *testing.T, orderID string, vendorUserID, customerID int64, lat, lon float64) {
	t.Helper()
	ctx := context.Background()

	_, err := tcPool.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT DO NOTHING`, vendorUserID)
	require.NoError(t, err)

	var vendorID int64
	require.NoError(t, tcPool.QueryRow(ctx,
		`INSERT INTO vendors (user_id) VALUES ($1) RETURNING id`, vendorUserID,
	).Scan(&vendorID))

	_, err = tcPool.Exec(ctx,
		`INSERT INTO vendor_addresses (vendor_id, latitude, longitude) VALUES ($1, $2, $3)`,
		vendorID, lat, lon)
	require.NoError(t, err)

	_, err = tcPool.Exec(ctx,
		`INSERT INTO orders (id, vendor_id, customer_id, status) VALUES ($1, $2, $3, 'READY_FOR_PICKUP')`,
		orderID, vendorID, customerID)
	require.NoError(t, err)
}
