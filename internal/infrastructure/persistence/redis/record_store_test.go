package redis

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/records"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `timeseries:`, escapeGlob("timeseries:"))
	assert.Equal(t, `a\*b\?\[c\]`, escapeGlob("a*b?[c]"))
}

func TestNewRecordStore_DefaultPrefix(t *testing.T) {
	s := NewRecordStore(nil, "")
	assert.Equal(t, "prod:timeseries:x", s.key("timeseries:x"))

	s = NewRecordStore(nil, TestPrefix)
	assert.Equal(t, "test:timeseries:x", s.key("timeseries:x"))
}

func TestRecordStore_Integration(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	store := NewRecordStore(client, TestPrefix)
	other := NewRecordStore(client, DefaultPrefix)
	require.NoError(t, store.Ping(ctx))

	_, err := store.Get(ctx, "timeseries:missing")
	assert.ErrorIs(t, err, records.ErrRecordNotFound)

	require.NoError(t, store.Set(ctx, "timeseries:Apple Inc", []byte{1, 2, 3}))
	require.NoError(t, store.Set(ctx, "timeseries:Bitcoin", []byte{4}))
	require.NoError(t, other.Set(ctx, "timeseries:Other", []byte{5}))

	v, err := store.Get(ctx, "timeseries:Apple Inc")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)

	keys, err := store.Keys(ctx, "timeseries:")
	require.NoError(t, err)
	slices.Sort(keys)
	assert.Equal(t, []string{"timeseries:Apple Inc", "timeseries:Bitcoin"}, keys)

	require.NoError(t, store.Delete(ctx, "timeseries:Bitcoin"))
	_, err = store.Get(ctx, "timeseries:Bitcoin")
	assert.ErrorIs(t, err, records.ErrRecordNotFound)
}
