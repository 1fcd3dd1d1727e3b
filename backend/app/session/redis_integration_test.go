//go:build integration

package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7")
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})
	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: strings.TrimPrefix(uri, "redis://")})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	s := Session{ID: "sid", UserID: 3, Username: "dev-1", Role: "device", DeviceID: "dev-1", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Init(ctx, s))

	got, err := store.Lookup(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", got.DeviceID)

	require.NoError(t, store.Invalidate(ctx, "sid"))
	_, err = store.Lookup(ctx, "sid")
	assert.ErrorIs(t, err, ErrNotFound)
}
