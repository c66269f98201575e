package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/l1f3-sh/AI-Chat/internal/store"
)

// ErrInvalidToken is returned by Resolve for a missing or unknown bearer token.
var ErrInvalidToken = errors.New("invalid token")

// Authenticator resolves an opaque bearer credential to the user it belongs
// to. The only capability it exposes is Resolve.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*store.User, error)
}

// TokenAuthenticator authenticates against the credential store by exact
// match on the stored token key.
type TokenAuthenticator struct {
	store *store.SQLiteStore
}

func NewTokenAuthenticator(s *store.SQLiteStore) *TokenAuthenticator {
	return &TokenAuthenticator{store: s}
}

func (a *TokenAuthenticator) Resolve(ctx context.Context, token string) (*store.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := a.store.GetUserByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}
