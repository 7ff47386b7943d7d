package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrRevoked          = errors.New("token revoked")
	ErrSessionNotFound  = errors.New("session not found")
)

// Session is the server-side record behind a refresh token. Access tokens are
// stateless and never stored; only refresh sessions live in the cache.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore is the cache behind refresh tokens. Entries carry a TTL and
// are lazily evicted by the cache itself; a missing entry reads as NotFound.
type SessionStore interface {
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)

	// Revoke marks the session revoked. Revoking an already revoked or
	// missing session is a no-op.
	Revoke(ctx context.Context, id string) error

	// Rotate atomically revokes the old session and stores the new one.
	// It fails with ErrRevoked if the old session was already revoked,
	// which is how a replayed refresh token is caught.
	Rotate(ctx context.Context, oldID string, next *Session, ttl time.Duration) error
}
