package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/l1f3-sh/AI-Chat/internal/testutil"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in the clear")
	}
	if !CheckPasswordHash("s3cret", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestNewTokenKey(t *testing.T) {
	a, b := NewTokenKey(), NewTokenKey()
	if a == "" || a == b {
		t.Fatalf("token keys must be unique and non-empty: %q %q", a, b)
	}
}

func TestTokenAuthenticator_Resolve(t *testing.T) {
	s := testutil.OpenInMemoryStore(t, "authresolve")
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice", "hash", 4000)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	key, err := s.GetOrCreateToken(ctx, u.ID, NewTokenKey())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	authn := NewTokenAuthenticator(s)

	resolved, err := authn.Resolve(ctx, key)
	if err != nil || resolved == nil || resolved.ID != u.ID {
		t.Fatalf("resolve: %v %+v", err, resolved)
	}

	if _, err := authn.Resolve(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := authn.Resolve(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}
