package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *jwt.Manager, *repository.MemoryRepository) {
	t.Helper()
	tokens, err := jwt.NewManager(jwt.Config{Secret: "test-secret", AccessTTL: time.Hour})
	require.NoError(t, err)

	repo := repository.NewMemoryRepository()
	repo.AddUser(domain.Identity{ID: "u1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", Roles: []string{"user"}})
	return NewAuthenticator(tokens, repo), tokens, repo
}

func TestAuthenticateValidToken(t *testing.T) {
	a, tokens, _ := newTestAuthenticator(t)
	token, _, err := tokens.GenerateAccessToken("u1", "ada@example.com", "ada", []string{"user"})
	require.NoError(t, err)

	first, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", first.ID)
	assert.Equal(t, "Ada Lovelace", first.DisplayName())

	second, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAuthenticateRejects(t *testing.T) {
	a, tokens, repo := newTestAuthenticator(t)

	expired, _, err := tokens.GenerateWithTTL("u1", "", "", nil, -time.Minute)
	require.NoError(t, err)
	unknown, _, err := tokens.GenerateAccessToken("ghost", "", "", nil)
	require.NoError(t, err)

	other, err := jwt.NewManager(jwt.Config{Secret: "other-secret"})
	require.NoError(t, err)
	forged, _, err := other.GenerateAccessToken("u1", "", "", nil)
	require.NoError(t, err)

	repo.AddUser(domain.Identity{ID: "u2"})
	repo.SetUserActive("u2", false)
	inactive, _, err := tokens.GenerateAccessToken("u2", "", "", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"bad signature", forged},
		{"unknown user", unknown},
		{"inactive user", inactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tt.token)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestAuthenticateRevoked(t *testing.T) {
	a, tokens, _ := newTestAuthenticator(t)
	token, _, err := tokens.GenerateAccessToken("u1", "", "", nil)
	require.NoError(t, err)

	tokens.RevokeUserTokens("u1")
	_, err = a.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

type countingUsers struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (c *countingUsers) FindActiveByID(ctx context.Context, id string) (*domain.Identity, error) {
	c.calls.Add(1)
	<-c.gate
	return &domain.Identity{ID: id}, nil
}

func TestAuthenticateCollapsesConcurrentLookups(t *testing.T) {
	tokens, err := jwt.NewManager(jwt.Config{Secret: "test-secret"})
	require.NoError(t, err)
	users := &countingUsers{gate: make(chan struct{})}
	a := NewAuthenticator(tokens, users)

	token, _, err := tokens.GenerateAccessToken("u1", "", "", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, err := a.Authenticate(context.Background(), token)
			assert.NoError(t, err)
			assert.Equal(t, "u1", identity.ID)
		}()
	}
	// Give the goroutines time to pile onto the in-flight lookup.
	time.Sleep(50 * time.Millisecond)
	close(users.gate)
	wg.Wait()

	assert.Equal(t, int32(1), users.calls.Load())
}

func TestExtractTokenPrecedence(t *testing.T) {
	assert.Equal(t, "payload", ExtractToken("payload", "Bearer header", "query"))
	assert.Equal(t, "header", ExtractToken("  ", "Bearer header", "query"))
	assert.Equal(t, "query", ExtractToken("", "Basic abc", "query"))
	assert.Equal(t, "", ExtractToken("", "", ""))
}

type failingUsers struct{}

func (failingUsers) FindActiveByID(context.Context, string) (*domain.Identity, error) {
	return nil, errors.New("database is locked")
}

func TestAuthenticateStoreFailure(t *testing.T) {
	tokens, err := jwt.NewManager(jwt.Config{Secret: "test-secret"})
	require.NoError(t, err)
	a := NewAuthenticator(tokens, failingUsers{})

	token, _, err := tokens.GenerateAccessToken("u1", "", "", nil)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.ErrorContains(t, err, "database is locked")
}
