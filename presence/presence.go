package presence

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

// Connection is one live WebSocket connection record.
type Connection struct {
	// UserID is the authenticated owner of the connection.
	UserID string `json:"userId"`

	// ConnectedAt is the Unix timestamp in milliseconds the connection opened.
	ConnectedAt int64 `json:"connectedAt"`

	// Subscriptions lists the topics the connection asked for at registration.
	Subscriptions []string `json:"subscriptions"`

	// LastPing is the Unix timestamp in milliseconds of the last heartbeat.
	LastPing int64 `json:"lastPing"`
}

// Registry tracks connections, per-user connection sets, and room membership.
type Registry struct {
	adapter       *store.Adapter
	connectionTTL time.Duration
	roomTTL       time.Duration
	logger        *slog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewRegistry builds the presence registry.
func NewRegistry(connections, rooms config.Structure, adapter *store.Adapter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		adapter:       adapter,
		connectionTTL: connections.GetTTL(time.Hour),
		roomTTL:       rooms.GetTTL(time.Hour),
		logger:        logger,
		now:           time.Now,
	}
}

// Register writes a TTL-bounded connection record and adds the connection id
// to the owner's connection set.
func (r *Registry) Register(ctx context.Context, connID, userID string, subscriptions []string) error {
	now := r.now().UnixMilli()
	data, err := json.Marshal(Connection{
		UserID:        userID,
		ConnectedAt:   now,
		Subscriptions: subscriptions,
		LastPing:      now,
	})
	if err != nil {
		return storeerr.Serialization("presence.Register", err)
	}

	pipe := r.adapter.Writer().Pipeline()
	pipe.Set(ctx, connectionKey(connID), data, r.connectionTTL)
	pipe.SAdd(ctx, userConnectionsKey(userID), connID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeerr.Network("presence.Register", err).
			WithContext(map[string]any{"connectionId": connID})
	}

	return nil
}

// Connection returns the connection record, or nil when it has expired or
// never existed.
func (r *Registry) Connection(ctx context.Context, connID string) (*Connection, error) {
	data, err := r.adapter.Reader().Get(ctx, connectionKey(connID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.Network("presence.Connection", err).
			WithContext(map[string]any{"connectionId": connID})
	}

	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, storeerr.Serialization("presence.Connection", err)
	}

	return &conn, nil
}

// UserConnections returns the ids in the user's connection set. Ids whose
// records have TTL-expired without an explicit Remove may still appear.
func (r *Registry) UserConnections(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.adapter.Reader().SMembers(ctx, userConnectionsKey(userID)).Result()
	if err != nil {
		return nil, storeerr.Network("presence.UserConnections", err).
			WithContext(map[string]any{"userId": userID})
	}
	return ids, nil
}

// SubscribeRoom adds the connection to the room and refreshes the room TTL.
func (r *Registry) SubscribeRoom(ctx context.Context, roomID, connID string) error {
	pipe := r.adapter.Writer().Pipeline()
	pipe.SAdd(ctx, roomKey(roomID), connID)
	pipe.Expire(ctx, roomKey(roomID), r.roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeerr.Network("presence.SubscribeRoom", err).
			WithContext(map[string]any{"roomId": roomID, "connectionId": connID})
	}
	return nil
}

// UnsubscribeRoom removes the connection from the room. The room TTL is not
// touched; removing the last member does not shrink it.
func (r *Registry) UnsubscribeRoom(ctx context.Context, roomID, connID string) error {
	if err := r.adapter.Writer().SRem(ctx, roomKey(roomID), connID).Err(); err != nil {
		return storeerr.Network("presence.UnsubscribeRoom", err).
			WithContext(map[string]any{"roomId": roomID, "connectionId": connID})
	}
	return nil
}

// RoomMembers returns the connection ids currently subscribed to the room.
func (r *Registry) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	members, err := r.adapter.Reader().SMembers(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, storeerr.Network("presence.RoomMembers", err).
			WithContext(map[string]any{"roomId": roomID})
	}
	return members, nil
}

// Remove deletes the connection record and prunes the id from the owner's
// connection set. If the record has already TTL-expired, the owner cannot be
// discovered and the stale id stays in the user's set (see the package
// documentation).
func (r *Registry) Remove(ctx context.Context, connID string) error {
	conn, err := r.Connection(ctx, connID)
	if err != nil {
		return err
	}

	pipe := r.adapter.Writer().Pipeline()
	if conn != nil {
		pipe.SRem(ctx, userConnectionsKey(conn.UserID), connID)
	}
	pipe.Del(ctx, connectionKey(connID))
	if _, err := pipe.Exec(ctx); err != nil {
		return storeerr.Network("presence.Remove", err).
			WithContext(map[string]any{"connectionId": connID})
	}

	return nil
}

func connectionKey(connID string) string {
	return fmt.Sprintf("ws:connection:%s", connID)
}

func userConnectionsKey(userID string) string {
	return fmt.Sprintf("ws:user:%s", userID)
}

func roomKey(roomID string) string {
	return fmt.Sprintf("ws:room:%s", roomID)
}
