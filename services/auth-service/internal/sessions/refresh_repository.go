// Package sessions stores refresh tokens. Only a SHA-256 digest of the
// token is persisted, and rotation revokes the presented token when a
// replacement is issued.
package sessions

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salonbookhq/salonbook/libs/db"
)

var ErrInvalidToken = errors.New("sessions: invalid or expired refresh token")

type Repository struct {
	pool *db.Pool
	ttl  time.Duration
}

func NewRepository(pool *db.Pool, ttl time.Duration) *Repository {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Repository{pool: pool, ttl: ttl}
}

// NewToken returns a fresh opaque refresh token. Only the caller ever
// sees the plaintext.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *Repository) Issue(ctx context.Context, userID, token string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, hashToken(token), userID, time.Now().Add(r.ttl))
	return err
}

// Rotate revokes the presented token and returns the owning user id.
// The revoke and lookup run in one statement so a token can be spent
// exactly once even under concurrent refresh attempts.
func (r *Repository) Rotate(ctx context.Context, token string) (string, error) {
	var userID string
	err := r.pool.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
		RETURNING user_id::text
	`, hashToken(token)).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// RevokeAll logs the user out of every session.
func (r *Repository) RevokeAll(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	return err
}

// PurgeExpired deletes tokens past their expiry, run periodically.
func (r *Repository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
