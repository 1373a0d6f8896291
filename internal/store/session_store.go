package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/accessi-au/subscription-backend/internal/models"
)

const (
	// sessionTTL bounds how long a session token stays valid.
	sessionTTL = 24 * time.Hour
	// sessionValueTTL bounds short-lived session-scoped values such as the
	// payment-success flag and the pending subscription id.
	sessionValueTTL = 30 * time.Minute
)

// CreateSession opens a new session for the user and returns its token.
func (s *Store) CreateSession(ctx context.Context, userID int64) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("store: generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)
`, token, userID, time.Now().UTC().Add(sessionTTL))
	if err != nil {
		return "", fmt.Errorf("store: create session: %w", err)
	}
	return token, nil
}

// UserBySessionToken resolves a session token to its user. Expired or
// unknown tokens yield ErrNotFound.
func (s *Store) UserBySessionToken(ctx context.Context, token string) (*models.User, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
SELECT user_id FROM sessions WHERE token = $1 AND expires_at > now()
`, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: resolve session: %w", err)
	}
	return s.GetUserByID(ctx, userID)
}

// SetSessionValue stores a short-lived value scoped to the session.
func (s *Store) SetSessionValue(ctx context.Context, token, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session_values (token, key, value, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (token, key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
`, token, key, value, time.Now().UTC().Add(sessionValueTTL))
	if err != nil {
		return fmt.Errorf("store: set session value %s: %w", key, err)
	}
	return nil
}

// GetSessionValue reads a session-scoped value. Expired values are treated
// as absent.
func (s *Store) GetSessionValue(ctx context.Context, token, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
SELECT value FROM session_values WHERE token = $1 AND key = $2 AND expires_at > now()
`, token, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get session value %s: %w", key, err)
	}
	return value, true, nil
}

// PurgeExpiredSessions deletes expired sessions and session values,
// returning the number of rows removed.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	var purged int64

	res, err := s.db.ExecContext(ctx, `DELETE FROM session_values WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("store: purge session values: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		purged += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return purged, fmt.Errorf("store: purge sessions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		purged += n
	}

	return purged, nil
}

// DeleteSessionValue removes a session-scoped value.
func (s *Store) DeleteSessionValue(ctx context.Context, token, key string) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM session_values WHERE token = $1 AND key = $2
`, token, key)
	if err != nil {
		return fmt.Errorf("store: delete session value %s: %w", key, err)
	}
	return nil
}
