package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
)

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// Authenticator resolves a bearer token to an active user identity.
type Authenticator struct {
	tokens TokenValidator
	users  repository.UserRepository
	group  singleflight.Group
}

func NewAuthenticator(tokens TokenValidator, users repository.UserRepository) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate returns the identity behind token. Every failure wraps
// domain.ErrUnauthenticated.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: no token provided", domain.ErrUnauthenticated)
	}

	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	userID := claims.SubjectID()
	if userID == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}

	// Reconnect storms from one user's devices share a single lookup.
	v, err, _ := a.group.Do(userID, func() (interface{}, error) {
		return a.users.FindActiveByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user not found or inactive", domain.ErrUnauthenticated)
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to resolve user")
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	identity := *v.(*domain.Identity)
	identity.Roles = append([]string(nil), identity.Roles...)
	if len(identity.Roles) == 0 {
		identity.Roles = append(identity.Roles, claims.Roles...)
	}
	return &identity, nil
}

// ExtractToken picks the first non-empty credential in precedence order:
// the handshake payload, the Authorization header, then the query parameter.
func ExtractToken(payload, authorizationHeader, query string) string {
	if t := strings.TrimSpace(payload); t != "" {
		return t
	}
	if t := middleware.BearerToken(authorizationHeader); t != "" {
		return t
	}
	return strings.TrimSpace(query)
}
