package application

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"atelier/internal/service/auth/domain"
)

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type accessClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenService issues and validates tokens. Access tokens are self-contained
// JWTs checked by signature and expiry alone; refresh tokens are opaque
// session identifiers backed by the store, which makes rotation and
// revocation possible without touching issued access tokens.
type TokenService struct {
	signingKey []byte
	store      domain.SessionStore
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func NewTokenService(signingKey []byte, store domain.SessionStore, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		signingKey: signingKey,
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue creates a fresh session for the account and returns both tokens.
func (s *TokenService) Issue(ctx context.Context, accountID string) (*TokenPair, error) {
	session := &domain.Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.store.Put(ctx, session, s.refreshTTL); err != nil {
		return nil, errors.Wrap(err, "store refresh session")
	}
	return s.mintPair(session)
}

// Validate checks an access token locally and consults the store only for
// revocation of the session it names. A session missing from the store means
// not revoked, so the hot path stays a pure signature check plus one cache
// read.
func (s *TokenService) Validate(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.parseAccess(accessToken)
	if err != nil {
		return "", err
	}
	if claims.SessionID != "" {
		session, err := s.store.Get(ctx, claims.SessionID)
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return "", errors.Wrap(err, "revocation check")
		}
		if session != nil && session.Revoked {
			return "", domain.ErrRevoked
		}
	}
	return claims.Subject, nil
}

// Verify satisfies the token verifier port of the checkout pipeline.
func (s *TokenService) Verify(ctx context.Context, accessToken string) (string, error) {
	return s.Validate(ctx, accessToken)
}

// Refresh exchanges a refresh token for a new pair. The old session is
// revoked in the same step the new one is written, so a stolen refresh token
// becomes useless the moment its rightful owner exchanges it.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	old, err := s.store.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "load refresh session")
	}
	if old.Revoked {
		return nil, domain.ErrRevoked
	}
	if old.Expired(s.now()) {
		return nil, domain.ErrExpiredToken
	}

	next := &domain.Session{
		ID:        uuid.NewString(),
		AccountID: old.AccountID,
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.store.Rotate(ctx, old.ID, next, s.refreshTTL); err != nil {
		return nil, err
	}
	return s.mintPair(next)
}

// Revoke invalidates a refresh session. Revoking twice is a no-op.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	return s.store.Revoke(ctx, refreshToken)
}

func (s *TokenService) mintPair(session *domain.Session) (*TokenPair, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return nil, errors.Wrap(err, "sign access token")
	}
	return &TokenPair{AccessToken: signed, RefreshToken: session.ID}, nil
}

func (s *TokenService) parseAccess(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Method.Alg())
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrExpiredToken
		default:
			return nil, domain.ErrInvalidSignature
		}
	}
	return claims, nil
}
