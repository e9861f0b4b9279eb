package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub/hubtest"
	"github.com/weiawesome/wes-io-chat/internal/membership"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

// recordingMessages counts Create calls and can be made to fail.
type recordingMessages struct {
	repository.MessageRepository

	mu       sync.Mutex
	creates  []domain.Message
	ctxErrs  []error
	failWith error
}

func (r *recordingMessages) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	r.creates = append(r.creates, *msg)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	fail := r.failWith
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.MessageRepository.Create(ctx, msg)
}

func (r *recordingMessages) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creates)
}

type failingTouch struct {
	repository.RoomRepository
}

func (failingTouch) TouchActivity(context.Context, string, time.Time) error {
	return errors.New("db down")
}

type fixture struct {
	repo     *repository.MemoryRepository
	members  *membership.Manager
	messages *recordingMessages
	bus      *pubsub.MemoryPubSub
	pipeline *Pipeline
	c1       *hubtest.Conn // alice
	c2       *hubtest.Conn // alice, second device
	c3       *hubtest.Conn // bob
	outsider *hubtest.Conn // carol, never joins
}

func newFixture(t *testing.T, maxLength int) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	repo.AddUser(domain.Identity{ID: "alice", FirstName: "Alice", LastName: "A"})
	repo.AddUser(domain.Identity{ID: "bob", FirstName: "Bob", LastName: "B"})
	repo.AddUser(domain.Identity{ID: "carol", FirstName: "Carol"})
	repo.AddRoom(domain.Room{ID: "R", Type: domain.RoomTypeGroup})
	repo.AddRoom(domain.Room{ID: "other", Type: domain.RoomTypeGroup})
	for _, u := range []string{"alice", "bob", "carol"} {
		repo.AddMember("R", u)
		repo.AddMember("other", u)
	}

	f := &fixture{
		repo:     repo,
		members:  membership.NewManager(repo.Rooms(), repo),
		messages: &recordingMessages{MessageRepository: repo},
		bus:      pubsub.NewMemoryPubSub(),
		c1:       hubtest.NewActiveConn("c1", domain.Identity{ID: "alice"}),
		c2:       hubtest.NewActiveConn("c2", domain.Identity{ID: "alice"}),
		c3:       hubtest.NewActiveConn("c3", domain.Identity{ID: "bob"}),
		outsider: hubtest.NewActiveConn("c4", domain.Identity{ID: "carol"}),
	}
	f.pipeline = NewPipeline(f.members, repo.Rooms(), f.messages, f.bus, maxLength)

	ctx := context.Background()
	require.NoError(t, f.members.Join(ctx, f.c1, "alice", "R"))
	require.NoError(t, f.members.Join(ctx, f.c2, "alice", "R"))
	require.NoError(t, f.members.Join(ctx, f.c3, "bob", "R"))
	return f
}

func received(t *testing.T, c *hubtest.Conn) []protocol.MessageReceived {
	t.Helper()
	var out []protocol.MessageReceived
	for _, f := range c.OfType(protocol.TypeMessageReceived) {
		var m protocol.MessageReceived
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func TestSubmitDeliversToEveryMember(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	events, err := f.bus.Subscribe(ctx, pubsub.ChannelMessages)
	require.NoError(t, err)

	res, err := f.pipeline.Submit(ctx, f.c1, Request{RoomID: "R", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered)
	assert.Equal(t, 1, f.messages.createCount())
	assert.Equal(t, domain.MessageTypeText, res.Message.Type)

	for _, c := range []*hubtest.Conn{f.c1, f.c2, f.c3} {
		got := received(t, c)
		require.Len(t, got, 1, c.ID())
		assert.Equal(t, res.Message.ID, got[0].Message.ID)
		assert.Equal(t, "hello", got[0].Message.Content)
		require.NotNil(t, got[0].Message.Sender)
		assert.Equal(t, "Alice A", got[0].Message.Sender.DisplayName)
	}
	assert.Empty(t, f.outsider.Frames())

	room, err := f.repo.Rooms().FindActiveByID(ctx, "R")
	require.NoError(t, err)
	require.NotNil(t, room.LastMessageAt)

	select {
	case ev := <-events:
		assert.Equal(t, pubsub.EventMessageCreated, ev.Type)
		var payload pubsub.MessageCreatedPayload
		require.NoError(t, ev.UnmarshalPayload(&payload))
		assert.Equal(t, res.Message.ID, payload.MessageID)
		assert.Equal(t, 3, payload.Recipients)
	case <-time.After(time.Second):
		t.Fatal("message.created not published")
	}
}

func TestSubmitRejectsNonMember(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.pipeline.Submit(context.Background(), f.outsider, Request{RoomID: "R", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Zero(t, f.messages.createCount())
	assert.Empty(t, f.c1.Frames())
}

func TestSubmitAfterLeaveIsRejected(t *testing.T) {
	f := newFixture(t, 0)
	f.members.Leave("c1", "R")

	_, err := f.pipeline.Submit(context.Background(), f.c1, Request{RoomID: "R", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Zero(t, f.messages.createCount())
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, 10)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{RoomID: "R", Content: ""}},
		{"whitespace", Request{RoomID: "R", Content: " \n\t "}},
		{"too long", Request{RoomID: "R", Content: strings.Repeat("a", 11)}},
		{"unknown type", Request{RoomID: "R", Content: "hi", Type: "video"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.Submit(context.Background(), f.c1, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidationFailed)
		})
	}
	assert.Zero(t, f.messages.createCount())

	// Length counts characters, not bytes.
	_, err := f.pipeline.Submit(context.Background(), f.c1, Request{RoomID: "R", Content: strings.Repeat("é", 10)})
	assert.NoError(t, err)
}

func TestSubmitReplyTarget(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.members.Join(ctx, f.c1, "alice", "other"))
	elsewhere, err := f.pipeline.Submit(ctx, f.c1, Request{RoomID: "other", Content: "elsewhere"})
	require.NoError(t, err)
	parent, err := f.pipeline.Submit(ctx, f.c1, Request{RoomID: "R", Content: "parent"})
	require.NoError(t, err)
	before := f.messages.createCount()

	_, err = f.pipeline.Submit(ctx, f.c3, Request{RoomID: "R", Content: "re", ReplyToID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = f.pipeline.Submit(ctx, f.c3, Request{RoomID: "R", Content: "re", ReplyToID: elsewhere.Message.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, before, f.messages.createCount())

	res, err := f.pipeline.Submit(ctx, f.c3, Request{RoomID: "R", Content: "re", ReplyToID: parent.Message.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Message.ReplyTo)
	assert.Equal(t, "parent", res.Message.ReplyTo.Content)

	got := received(t, f.c2)
	last := got[len(got)-1]
	require.NotNil(t, last.Message.ReplyTo)
	assert.Equal(t, parent.Message.ID, last.Message.ReplyTo.ID)
}

func TestSubmitPersistenceFailureIsNotBroadcast(t *testing.T) {
	f := newFixture(t, 0)
	f.messages.failWith = errors.New("disk full")

	_, err := f.pipeline.Submit(context.Background(), f.c1, Request{RoomID: "R", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	for _, c := range []*hubtest.Conn{f.c1, f.c2, f.c3} {
		assert.Empty(t, c.Frames())
	}
}

func TestSubmitSurvivesActivityFailure(t *testing.T) {
	f := newFixture(t, 0)
	p := NewPipeline(f.members, failingTouch{f.repo.Rooms()}, f.messages, nil, 0)

	res, err := p.Submit(context.Background(), f.c1, Request{RoomID: "R", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered)
}

func TestSubmitPersistsDespiteCancelledContext(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Submit(ctx, f.c1, Request{RoomID: "R", Content: "hi"})
	require.NoError(t, err)
	require.Len(t, f.messages.ctxErrs, 1)
	assert.NoError(t, f.messages.ctxErrs[0])
}

func TestSubmitEchoesRefToSenderOnly(t *testing.T) {
	f := newFixture(t, 0)

	res, err := f.pipeline.Submit(context.Background(), f.c1, Request{RoomID: "R", Content: "hi", Ref: "r-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered)

	own := received(t, f.c1)
	require.Len(t, own, 1)
	assert.Equal(t, "r-1", own[0].Ref)

	for _, c := range []*hubtest.Conn{f.c2, f.c3} {
		got := received(t, c)
		require.Len(t, got, 1)
		assert.Empty(t, got[0].Ref)
	}
}

func TestSubmitRequiresActiveConnection(t *testing.T) {
	f := newFixture(t, 0)
	f.c1.Session().Close()

	_, err := f.pipeline.Submit(context.Background(), f.c1, Request{RoomID: "R", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotActive)
}
