// Package storage persists browser sessions: the binding between a session
// cookie and the backend bearer token plus the cached user.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"expensedash/internal/core"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is one signed-in browser.
type Session struct {
	ID              string
	Token           string
	User            core.User
	CreatedAt       time.Time
	ExpiresAt       time.Time
	UserRefreshedAt time.Time
}

// NewSession builds a session for token with a fresh random ID.
func NewSession(token string, user core.User, now time.Time, ttl time.Duration) (*Session, error) {
	id, err := NewSessionID()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Session{
		ID:              id,
		Token:           token,
		User:            user,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		UserRefreshedAt: now,
	}, nil
}

// NewSessionID returns 32 random bytes, base64url encoded without padding.
func NewSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NeedsRenewal reports whether less than half of ttl is left.
func (s *Session) NeedsRenewal(now time.Time, ttl time.Duration) bool {
	return s.ExpiresAt.Sub(now) < ttl/2
}

// Renew pushes the expiry to now+ttl.
func (s *Session) Renew(now time.Time, ttl time.Duration) {
	s.ExpiresAt = now.UTC().Add(ttl)
}

// NeedsUserRefresh reports whether the cached user is older than interval.
func (s *Session) NeedsUserRefresh(now time.Time, interval time.Duration) bool {
	return interval > 0 && now.Sub(s.UserRefreshedAt) >= interval
}

// Store is implemented by every session backend.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// Get returns ErrSessionNotFound for unknown IDs and ErrSessionExpired
	// (after deleting the row) for expired ones. A row whose token no longer
	// unseals is deleted and reported as ErrSessionNotFound too.
	Get(ctx context.Context, id string) (*Session, error)
	// Update saves ExpiresAt, User and UserRefreshedAt.
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
