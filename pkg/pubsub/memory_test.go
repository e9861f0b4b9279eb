package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPubSubDelivers(t *testing.T) {
	bus := NewMemoryPubSub()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, ChannelMessages)
	require.NoError(t, err)

	ev, err := NewEvent(EventMessageCreated, "room-1", "user-1", MessageCreatedPayload{MessageID: "m1", RoomID: "room-1"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, ChannelMessages, ev))
	require.NoError(t, bus.Publish(ctx, ChannelPresence, ev))

	select {
	case got := <-events:
		assert.Equal(t, EventMessageCreated, got.Type)
		assert.Equal(t, "room-1", got.Key())

		var payload MessageCreatedPayload
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, "m1", payload.MessageID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case got := <-events:
		t.Fatalf("unexpected event from another channel: %+v", got)
	default:
	}
}

func TestMemoryPubSubUnsubscribeOnCancel(t *testing.T) {
	bus := NewMemoryPubSub()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := bus.Subscribe(ctx, ChannelPush)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestEventKeyFallsBackToUser(t *testing.T) {
	ev, err := NewEvent(EventPushToUser, "", "user-9", nil)
	require.NoError(t, err)
	assert.Equal(t, "user-9", ev.Key())
	assert.Nil(t, ev.Payload)
}

func TestNewPubSubRejectsUnknownDriver(t *testing.T) {
	_, err := NewPubSub(Config{Driver: "nats"})
	assert.Error(t, err)

	ps, err := NewPubSub(Config{Driver: "memory"})
	require.NoError(t, err)
	assert.NoError(t, ps.Close())
}
