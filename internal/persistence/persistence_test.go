package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/testutil"
	"github.com/spec-kit/dispatch-service/migrations"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(rdb.Close)

	assert.NoError(t, rdb.Ping(context.Background()))

	mr.Close()
	assert.Error(t, rdb.Ping(context.Background()))
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), config.RedisConfig{Addr: addr}, zap.NewNop())
	assert.Error(t, err)

	var missing *Redis
	assert.Error(t, missing.Ping(context.Background()))
}

func TestNATSDisabled(t *testing.T) {
	nc, err := NewNATS(config.NATSConfig{}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, nc.Enabled())
	assert.Error(t, nc.Ping(context.Background()))
	_, err = nc.ClaimBucket(context.Background(), "claims", time.Minute)
	assert.Error(t, err)
	nc.Close()
}

func TestNATSConnectAndClaimBucket(t *testing.T) {
	ns, _ := testutil.StartEmbeddedNATS(t)

	nc, err := NewNATS(config.NATSConfig{URL: ns.ClientURL()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	require.True(t, nc.Enabled())
	require.NoError(t, nc.Ping(context.Background()))

	kv, err := nc.ClaimBucket(context.Background(), "dispatch-claims", time.Minute)
	require.NoError(t, err)
	_, err = kv.Create(context.Background(), "appointment-1", []byte("replica-a"))
	require.NoError(t, err)

	again, err := nc.ClaimBucket(context.Background(), "dispatch-claims", time.Minute)
	require.NoError(t, err)
	entry, err := again.Get(context.Background(), "appointment-1")
	require.NoError(t, err)
	assert.Equal(t, "replica-a", string(entry.Value()))
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()

	pg, err := NewPostgres(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 2}, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	_, err = RunMigrations(ctx, pg.PoolHandle(), migrations.FS, zap.NewNop())
	require.NoError(t, err)

	applied, err := RunMigrations(ctx, pg.PoolHandle(), migrations.FS, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, applied)

	var count int
	require.NoError(t, pg.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = '0001_dispatch.sql'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestNewPostgresRejectsEmptyDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{}, time.Second, zap.NewNop())
	assert.Error(t, err)

	var pool *pgxpool.Pool
	assert.Nil(t, (&Postgres{Pool: pool}).PoolHandle())
}
