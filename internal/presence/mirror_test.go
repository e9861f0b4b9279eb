package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMirror(t *testing.T) *RedisMirror {
	t.Helper()
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	m := NewRedisMirror(client, "test:"+t.Name())
	require.NoError(t, m.Reset(context.Background()))
	t.Cleanup(func() {
		client.Del(context.Background(), m.onlineKey(), m.lastSeenKey())
	})
	return m
}

func TestRedisMirror(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, m.SetOnline(ctx, "alice", 2))
	online, err := m.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2}, online)

	at := time.Unix(1700000000, 0)
	require.NoError(t, m.SetOffline(ctx, "alice", at))
	online, err = m.Online(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)

	seen, err := m.LastSeen(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, at.Equal(seen))

	seen, err = m.LastSeen(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, seen.IsZero())
}
