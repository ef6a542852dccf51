// Package tursotest provides migrated databases for tests.
package tursotest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/emiliopalmerini/salespulse/internal/adapters/turso"
	"github.com/emiliopalmerini/salespulse/internal/migrate"
)

// ContainerEnv enables the libsql-server container tests when set to 1.
const ContainerEnv = "SALESPULSE_TEST_TURSO"

// NewStore opens a migrated libsql database file under t.TempDir.
func NewStore(t testing.TB) *turso.Store {
	t.Helper()

	ctx := context.Background()
	db, err := turso.Open(ctx, "file:"+filepath.Join(t.TempDir(), "test.db"), "")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := migrate.RunAll(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return turso.NewStore(db)
}

// NewContainerStore starts a libsql-server container and returns a migrated
// store connected to it. The test is skipped unless ContainerEnv is 1.
func NewContainerStore(t testing.TB) *turso.Store {
	t.Helper()
	if os.Getenv(ContainerEnv) != "1" {
		t.Skipf("Skipping Turso integration test: set %s=1 to run", ContainerEnv)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ghcr.io/tursodatabase/libsql-server:latest",
			ExposedPorts: []string{"8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health").WithPort("8080/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Turso container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "8080")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	db, err := turso.Open(ctx, fmt.Sprintf("http://%s:%s", host, port.Port()), "")
	if err != nil {
		t.Fatalf("Failed to connect to Turso: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrate.RunAll(ctx, db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return turso.NewStore(db)
}
