// Package testhelpers provides utilities for testing ekaya-decisions components.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/database"
	"github.com/ekaya-inc/ekaya-decisions/pkg/retry"
)

// PostgresImage is the PostgreSQL image used for integration tests.
const PostgresImage = "postgres:16-alpine"

const (
	testDatabase = "ekaya_decisions_test"
	testUser     = "ekaya"
	testPassword = "test_password"
)

// EngineDB is a migrated PostgreSQL instance shared by every integration test
// in the package under test.
type EngineDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB starts the container on first use and returns the shared instance.
// It skips the test under -short since Docker is required.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = startEngineDB(context.Background())
	})
	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to set up test database: %v", sharedEngineDBErr)
	}
	return sharedEngineDB
}

func startEngineDB(ctx context.Context) (*EngineDB, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       testDatabase,
				"POSTGRES_USER":     testUser,
				"POSTGRES_PASSWORD": testPassword,
			},
			// The init server logs readiness first, then the real one.
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithStartupTimeoutDefault(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve container endpoint: %w", err)
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", testUser, testPassword, endpoint, testDatabase)

	db, err := retry.DoWithResult(ctx, retry.StartupConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{URL: connStr, MaxConnections: 5})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	sqlDB := db.SQLDB()
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &EngineDB{Container: container, DB: db, ConnStr: connStr}, nil
}

// TenantContext returns a context carrying a tenant scope for projectID.
// The scope is closed when the test finishes.
func (e *EngineDB) TenantContext(t *testing.T, projectID uuid.UUID) context.Context {
	t.Helper()

	scope, err := e.DB.WithTenant(context.Background(), projectID)
	if err != nil {
		t.Fatalf("Failed to open tenant scope: %v", err)
	}
	t.Cleanup(scope.Close)

	return database.SetTenantScope(context.Background(), scope)
}

// CleanupProject deletes projectID's trees when the test finishes. Nodes and
// options go with them through the cascading foreign keys.
func (e *EngineDB) CleanupProject(t *testing.T, projectID uuid.UUID) {
	t.Helper()
	t.Cleanup(func() {
		if _, err := e.DB.Exec(context.Background(),
			"DELETE FROM engine_decision_trees WHERE project_id = $1", projectID); err != nil {
			t.Logf("cleanup of project %s failed: %v", projectID, err)
		}
	})
}
