package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror projects presence into a store other services can read. It is
// written to, never read back by the realtime service.
type Mirror interface {
	SetOnline(ctx context.Context, userID string, connections int) error
	SetOffline(ctx context.Context, userID string, at time.Time) error
	Reset(ctx context.Context) error
}

// Redis key layout under prefix:
// {prefix}:online      HASH user_id -> connection count
// {prefix}:last_seen   HASH user_id -> unix seconds

// RedisMirror implements Mirror with go-redis.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "chat:presence"
	}
	return &RedisMirror{client: client, prefix: prefix}
}

func (m *RedisMirror) onlineKey() string {
	return fmt.Sprintf("%s:online", m.prefix)
}

func (m *RedisMirror) lastSeenKey() string {
	return fmt.Sprintf("%s:last_seen", m.prefix)
}

func (m *RedisMirror) SetOnline(ctx context.Context, userID string, connections int) error {
	return m.client.HSet(ctx, m.onlineKey(), userID, connections).Err()
}

func (m *RedisMirror) SetOffline(ctx context.Context, userID string, at time.Time) error {
	pipe := m.client.TxPipeline()
	pipe.HDel(ctx, m.onlineKey(), userID)
	pipe.HSet(ctx, m.lastSeenKey(), userID, strconv.FormatInt(at.Unix(), 10))
	_, err := pipe.Exec(ctx)
	return err
}

// Reset clears the online set. Presence is rebuilt from zero on start.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.client.Del(ctx, m.onlineKey()).Err()
}

// Online returns the mirrored connection counts.
func (m *RedisMirror) Online(ctx context.Context) (map[string]int, error) {
	raw, err := m.client.HGetAll(ctx, m.onlineKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(raw))
	for userID, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[userID] = n
	}
	return out, nil
}

// LastSeen returns when the user last went offline, or the zero time.
func (m *RedisMirror) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	v, err := m.client.HGet(ctx, m.lastSeenKey(), userID).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0), nil
}

// NopMirror discards every update.
type NopMirror struct{}

func (NopMirror) SetOnline(context.Context, string, int) error        { return nil }
func (NopMirror) SetOffline(context.Context, string, time.Time) error { return nil }
func (NopMirror) Reset(context.Context) error                         { return nil }
