package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// TokenRecord maps a token hash to the session it was issued for.
type TokenRecord struct {
	// UserID is the owning user.
	UserID string `json:"userId"`

	// SessionID is the session the token was issued alongside.
	SessionID string `json:"sessionId"`

	// IssuedAt is the Unix timestamp in milliseconds when the record was written.
	IssuedAt int64 `json:"issuedAt"`

	// ExpiresAt is the Unix timestamp in milliseconds when the token expires.
	ExpiresAt int64 `json:"expiresAt"`

	// TokenType identifies the credential format (currently always "jwt").
	TokenType string `json:"tokenType"`
}

// Identity is the verification result for a valid token.
type Identity struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Tokens is the registry of issued credentials. A record's presence is proof
// of validity: the store TTL is aligned to the token expiry, so verification
// trusts the TTL entirely and performs no secondary expiry check.
type Tokens struct {
	adapter *store.Adapter
	logger  *slog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewTokens builds the token registry.
func NewTokens(adapter *store.Adapter, logger *slog.Logger) *Tokens {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tokens{adapter: adapter, logger: logger, now: time.Now}
}

// Set writes the token record with its TTL computed from expiresAt. A token
// that is already expired is silently not written; callers must treat a
// later verification failure identically to "not found" and must not assume
// a write occurred.
func (t *Tokens) Set(ctx context.Context, tokenHash, userID, sessionID string, expiresAt time.Time) error {
	now := t.now()
	ttl := expiresAt.Sub(now).Truncate(time.Second)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(TokenRecord{
		UserID:    userID,
		SessionID: sessionID,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
		TokenType: "jwt",
	})
	if err != nil {
		return storeerr.Serialization("session.SetToken", err)
	}

	if err := t.adapter.Writer().Set(ctx, tokenKey(tokenHash), data, ttl).Err(); err != nil {
		return storeerr.Network("session.SetToken", err)
	}

	return nil
}

// Verify returns the identity bound to the token hash, or nil when the token
// is unknown, revoked, or TTL-expired.
func (t *Tokens) Verify(ctx context.Context, tokenHash string) (*Identity, error) {
	data, err := t.adapter.Reader().Get(ctx, tokenKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.Network("session.VerifyToken", err)
	}

	var record TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, storeerr.Serialization("session.VerifyToken", err)
	}

	return &Identity{UserID: record.UserID, SessionID: record.SessionID}, nil
}

// Revoke deletes the token record, independent of its TTL.
func (t *Tokens) Revoke(ctx context.Context, tokenHash string) error {
	if err := t.adapter.Writer().Del(ctx, tokenKey(tokenHash)).Err(); err != nil {
		return storeerr.Network("session.RevokeToken", err)
	}
	return nil
}

func tokenKey(tokenHash string) string {
	return fmt.Sprintf("token:%s", tokenHash)
}
