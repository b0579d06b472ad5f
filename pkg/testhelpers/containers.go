// Package testhelpers starts a throwaway Postgres for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/config"
	"github.com/ekaya-inc/bugsneak/pkg/database"
	"github.com/ekaya-inc/bugsneak/pkg/retry"
)

// PostgresImage is the image used for integration tests.
const PostgresImage = "postgres:17-alpine"

// TestDB is one migrated Postgres container shared by every integration test in a run.
type TestDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	shared     *TestDB
	sharedErr  error
	sharedOnce sync.Once
)

// GetTestDB starts the container on first use. It skips under -short.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedOnce.Do(func() {
		shared, sharedErr = startTestDB(context.Background())
	})
	if sharedErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedErr)
	}
	return shared
}

// ResetErrorLogs empties the error log table and restarts its id sequence.
func (tdb *TestDB) ResetErrorLogs(t *testing.T) {
	t.Helper()
	if _, err := tdb.DB.Exec(context.Background(), "TRUNCATE bugsneak_error_logs RESTART IDENTITY"); err != nil {
		t.Fatalf("Failed to truncate error logs: %v", err)
	}
}

// MigrationsPath is the repository's migrations directory, independent of the test's cwd.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func startTestDB(ctx context.Context) (*TestDB, error) {
	dbCfg := config.DatabaseConfig{
		User:           "bugsneak",
		Password:       "test_password",
		Database:       "bugsneak_test",
		SSLMode:        "disable",
		MaxConnections: 20,
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       dbCfg.Database,
				"POSTGRES_USER":     dbCfg.User,
				"POSTGRES_PASSWORD": dbCfg.Password,
			},
			// Postgres logs readiness twice: once for the init server, once for the real one.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	if dbCfg.Host, err = container.Host(ctx); err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	if dbCfg.Port, err = strconv.Atoi(port.Port()); err != nil {
		return nil, fmt.Errorf("invalid mapped port %q: %w", port.Port(), err)
	}

	connStr := dbCfg.ConnectionString()
	policy := &retry.Config{MaxRetries: 10, InitialDelay: 250 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 1.5}
	db, err := retry.DoWithResult(ctx, policy, func() (*database.DB, error) {
		return database.NewConnection(ctx, database.ConfigFrom(&dbCfg))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := database.RunMigrations(connStr, MigrationsPath(), zap.NewNop()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{Container: container, DB: db, ConnStr: connStr}, nil
}
