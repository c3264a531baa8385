package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("warden_test"),
		postgres.WithUsername("warden"),
		postgres.WithPassword("warden"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:             connStr,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnectRetries:  5,
		ConnectBackoff:  time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.DB.PingContext(ctx))

	health, err := Health(ctx, client.DB.DB)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestDatabaseClient_MigrationsCreateExpectedTables(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	tables := []string{
		"remediation_log", "maintenance_windows", "alert_processing_cache",
		"escalation_cooldowns", "remediation_patterns", "remediation_failures",
		"self_preservation_handoffs", "host_status_log", "state_snapshots",
		"proactive_checks",
	}
	for _, table := range tables {
		var exists bool
		err := client.DB.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.Truef(t, exists, "expected table %q to exist", table)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{URL: "postgres://x", MaxOpenConns: 10, MaxIdleConns: 5}, wantErr: false},
		{name: "missing url", cfg: Config{MaxOpenConns: 10}, wantErr: true},
		{name: "zero max open", cfg: Config{URL: "postgres://x", MaxOpenConns: 0}, wantErr: true},
		{name: "idle exceeds open", cfg: Config{URL: "postgres://x", MaxOpenConns: 5, MaxIdleConns: 10}, wantErr: true},
		{name: "negative idle", cfg: Config{URL: "postgres://x", MaxOpenConns: 10, MaxIdleConns: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
