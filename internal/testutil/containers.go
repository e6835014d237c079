// Package testutil starts throwaway service containers for driver tests.
// Every helper skips the test in -short mode or when no container runtime is
// reachable.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startTimeout = 3 * time.Minute

func requireContainers(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

func start(t *testing.T, image, port string, opts ...testcontainers.ContainerCustomizer) string {
	t.Helper()
	requireContainers(t)

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	opts = append([]testcontainers.ContainerCustomizer{testcontainers.WithExposedPorts(port)}, opts...)
	c, err := testcontainers.Run(ctx, image, opts...)
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err)

	endpoint, err := c.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

// StartRedis returns the host:port of a fresh Redis server.
func StartRedis(t *testing.T) string {
	t.Helper()
	return start(t, "redis:7", "6379/tcp",
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	)
}

// StartPostgres returns the DSN of a fresh PostgreSQL database.
func StartPostgres(t *testing.T) string {
	t.Helper()
	endpoint := start(t, "postgres:16", "5432/tcp",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "cyclegen",
			"POSTGRES_PASSWORD": "cyclegen",
			"POSTGRES_DB":       "cyclegen",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				// the server restarts once after initdb
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithDeadline(2*time.Minute),
		),
	)
	return fmt.Sprintf("postgres://cyclegen:cyclegen@%s/cyclegen?sslmode=disable", endpoint)
}

// StartMongo returns the URI of a fresh MongoDB server.
func StartMongo(t *testing.T) string {
	t.Helper()
	endpoint := start(t, "mongo:7", "27017/tcp",
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("Waiting for connections"),
		),
	)
	return "mongodb://" + endpoint
}
