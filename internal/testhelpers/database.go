package testhelpers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/persistence/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "x402"
	pgPassword = "x402-test"
	pgDatabase = "x402_gateway_test"
	pgPort     = "5432/tcp"
)

// TestDatabase is a migrated request store running in a disposable container.
type TestDatabase struct {
	DB     *postgres.DB
	Config *config.DatabaseConfig
}

// StartPostgres boots PostgreSQL, applies the embedded migrations and connects a pool.
// The container and pool are torn down by tb.Cleanup.
func StartPostgres(tb testing.TB) *TestDatabase {
	tb.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: postgresContainer(),
		Started:          true,
	})
	testcontainers.CleanupContainer(tb, container)
	require.NoError(tb, err, "start %s", pgImage)

	cfg, err := containerDatabaseConfig(ctx, container)
	require.NoError(tb, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(tb, postgres.Migrate(cfg.MigrationURL(), logger), "migrate request schema")

	db, err := postgres.Connect(ctx, cfg, logger)
	require.NoError(tb, err)
	tb.Cleanup(db.Close)

	return &TestDatabase{DB: db, Config: cfg}
}

// Repository returns a request store over the shared pool.
func (td *TestDatabase) Repository() *postgres.RequestRepository {
	return postgres.NewRequestRepository(td.DB)
}

// Seed inserts requests as-is, bypassing the registry.
func (td *TestDatabase) Seed(tb testing.TB, reqs ...*domain.PaymentRequest) {
	tb.Helper()
	repo := td.Repository()
	for _, req := range reqs {
		require.NoError(tb, repo.Insert(context.Background(), req), "seed %s", req.ID)
	}
}

// Reset drops every request record.
func (td *TestDatabase) Reset(tb testing.TB) {
	tb.Helper()
	_, err := td.DB.Pool.Exec(context.Background(), "TRUNCATE TABLE payment_requests")
	require.NoError(tb, err)
}

func postgresContainer() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        pgImage,
		ExposedPorts: []string{pgPort},
		Env: map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		},
		// The entrypoint restarts the server once after initdb.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(pgPort),
		).WithDeadline(time.Minute),
	}
}

func containerDatabaseConfig(ctx context.Context, container testcontainers.Container) (*config.DatabaseConfig, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, pgPort)
	if err != nil {
		return nil, err
	}

	return &config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            pgUser,
		Password:        pgPassword,
		Name:            pgDatabase,
		SSLMode:         "disable",
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: 10 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}, nil
}
