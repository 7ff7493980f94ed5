package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// Record is one user session.
type Record struct {
	// UserID is the owning user.
	UserID string `json:"userId"`

	// Email is the user's login email.
	Email string `json:"email"`

	// CreatedAt is the Unix timestamp in milliseconds when the session was created.
	CreatedAt int64 `json:"createdAt"`

	// LastActivity is the Unix timestamp in milliseconds of the last touch.
	// Advisory only; concurrent touches may lose an update.
	LastActivity int64 `json:"lastActivity"`

	// IPAddress is the client address the session was created from.
	IPAddress string `json:"ipAddress"`

	// UserAgent is the client user agent string.
	UserAgent string `json:"userAgent"`

	// Permissions maps permission names to grants.
	Permissions map[string]bool `json:"permissions"`
}

// Store provides CRUD and touch/expire semantics for session records.
type Store struct {
	adapter *store.Adapter
	ttl     time.Duration
	logger  *slog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewStore builds a session store with the configured TTL window.
func NewStore(cfg config.Structure, adapter *store.Adapter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		adapter: adapter,
		ttl:     cfg.GetTTL(24 * time.Hour),
		logger:  logger,
		now:     time.Now,
	}
}

// Set writes the full record and resets its TTL to the full window. The
// user's session index is updated alongside and shares the window.
func (s *Store) Set(ctx context.Context, sessionID string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return storeerr.Serialization("session.Set", err)
	}

	pipe := s.adapter.Writer().Pipeline()
	pipe.Set(ctx, sessionKey(sessionID), data, s.ttl)
	pipe.SAdd(ctx, userKey(record.UserID), sessionID)
	pipe.Expire(ctx, userKey(record.UserID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeerr.Network("session.Set", err).
			WithContext(map[string]any{"sessionId": sessionID})
	}

	return nil
}

// Get returns the session record, or nil when the session does not exist or
// has expired.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.adapter.Reader().Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.Network("session.Get", err).
			WithContext(map[string]any{"sessionId": sessionID})
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, storeerr.Serialization("session.Get", err)
	}

	return &record, nil
}

// Touch stamps LastActivity and rewrites the full record, resetting the TTL
// window. This is a read-modify-write, not an atomic update; concurrent
// touches of the same session can lose a LastActivity update, which is
// acceptable because the field is advisory. Touching a missing session is a
// no-op.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	record, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	record.LastActivity = s.now().UnixMilli()
	return s.Set(ctx, sessionID, *record)
}

// Delete removes the session and prunes it from the owner's index.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	record, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	pipe := s.adapter.Writer().Pipeline()
	if record != nil {
		pipe.SRem(ctx, userKey(record.UserID), sessionID)
	}
	pipe.Del(ctx, sessionKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return storeerr.Network("session.Delete", err).
			WithContext(map[string]any{"sessionId": sessionID})
	}

	return nil
}

// DeleteUserSessions removes every session belonging to the user, returning
// the number of sessions deleted. The secondary index makes this
// O(sessions of that user) rather than a keyspace scan.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	ids, err := s.adapter.Writer().SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, storeerr.Network("session.DeleteUserSessions", err).
			WithContext(map[string]any{"userId": userID})
	}

	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}

	deleted, err := s.adapter.Writer().Del(ctx, keys...).Result()
	if err != nil {
		return 0, storeerr.Network("session.DeleteUserSessions", err).
			WithContext(map[string]any{"userId": userID})
	}

	if err := s.adapter.Writer().Del(ctx, userKey(userID)).Err(); err != nil {
		return int(deleted), storeerr.Network("session.DeleteUserSessions", err).
			WithContext(map[string]any{"userId": userID})
	}

	return int(deleted), nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func userKey(userID string) string {
	return fmt.Sprintf("session:user:%s", userID)
}
