package metadata

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestPostgres runs PostgreSQL in a container, applies migrations and returns a gateway
func setupTestPostgres(t *testing.T) *PostgresGateway {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("ngas_test"),
		postgres.WithUsername("ngas"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := fmt.Sprintf("ngas:test-password@%s:%s/ngas_test?sslmode=disable", host, port.Port())

	version, err := Migrate("pgx5://" + creds)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	pool, err := ConnectPostgres(ctx, "postgres://"+creds, 4)
	require.NoError(t, err)

	g := NewPostgresGateway(pool)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestPostgresGateway(t *testing.T) {
	g := setupTestPostgres(t)
	runGatewayContract(t, g)

	entries, err := g.DiskHistory(context.Background(), "disk-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Disk Registered", entries[0].Synopsis)
	assert.Equal(t, []byte(`{"disk_id":"disk-a"}`), entries[0].Content)
}

func TestPostgresCompletionDate(t *testing.T) {
	g := setupTestPostgres(t)

	ctx := context.Background()
	d := testDisk("disk-z", "Fits-M-000001", "1", 1)
	d.Completed = true
	d.CompletionDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := g.WriteDisk(ctx, d)
	require.NoError(t, err)

	got, err := g.ReadDisk(ctx, "disk-z")
	require.NoError(t, err)
	assert.True(t, got.CompletionDate.Equal(d.CompletionDate))
}
