package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// Notifications is the capped per-user transient notification list.
type Notifications struct {
	adapter   *store.Adapter
	ttl       time.Duration
	maxLength int
	logger    *slog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewNotifications builds the notification queue.
func NewNotifications(cfg config.Structure, adapter *store.Adapter, logger *slog.Logger) *Notifications {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifications{
		adapter:   adapter,
		ttl:       cfg.GetTTL(7 * 24 * time.Hour),
		maxLength: cfg.GetMaxLength(50),
		logger:    logger,
		now:       time.Now,
	}
}

// Push enqueues a notification for the user, stamping its timestamp. The
// list is pushed front, trimmed to the max length, and its TTL refreshed.
func (n *Notifications) Push(ctx context.Context, userID string, notification map[string]any) error {
	entry := make(map[string]any, len(notification)+1)
	for k, v := range notification {
		entry[k] = v
	}
	entry["timestamp"] = n.now().UnixMilli()

	data, err := json.Marshal(entry)
	if err != nil {
		return storeerr.Serialization("queue.PushNotification", err)
	}

	key := notificationKey(userID)
	pipe := n.adapter.Writer().Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(n.maxLength-1))
	pipe.Expire(ctx, key, n.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeerr.Network("queue.PushNotification", err).
			WithContext(map[string]any{"userId": userID})
	}

	return nil
}

// Recent returns up to count notifications, most recent first.
func (n *Notifications) Recent(ctx context.Context, userID string, count int) ([]map[string]any, error) {
	if count <= 0 {
		count = 20
	}

	items, err := n.adapter.Reader().LRange(ctx, notificationKey(userID), 0, int64(count-1)).Result()
	if err != nil {
		return nil, storeerr.Network("queue.Notifications", err).
			WithContext(map[string]any{"userId": userID})
	}

	notifications := make([]map[string]any, 0, len(items))
	for _, item := range items {
		var entry map[string]any
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, storeerr.Serialization("queue.Notifications", err)
		}
		notifications = append(notifications, entry)
	}

	return notifications, nil
}

// Clear deletes the user's whole notification list.
func (n *Notifications) Clear(ctx context.Context, userID string) error {
	if err := n.adapter.Writer().Del(ctx, notificationKey(userID)).Err(); err != nil {
		return storeerr.Network("queue.ClearNotifications", err).
			WithContext(map[string]any{"userId": userID})
	}
	return nil
}

func notificationKey(userID string) string {
	return fmt.Sprintf("notification:%s", userID)
}
