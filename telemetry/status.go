package telemetry

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

// StatusStore holds the last reported status per robot. Records are
// short-lived by TTL so a silent robot naturally drops to "unknown" for
// dashboard consumers.
type StatusStore struct {
	adapter *store.Adapter
	ttl     time.Duration
	logger  *slog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewStatusStore builds the robot status store.
func NewStatusStore(cfg config.Structure, adapter *store.Adapter, logger *slog.Logger) *StatusStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusStore{
		adapter: adapter,
		ttl:     cfg.GetTTL(time.Minute),
		logger:  logger,
		now:     time.Now,
	}
}

// Set writes the robot's status, stamping lastUpdated.
func (s *StatusStore) Set(ctx context.Context, robotID string, status map[string]any) error {
	record := make(map[string]any, len(status)+1)
	for k, v := range status {
		record[k] = v
	}
	record["lastUpdated"] = s.now().UnixMilli()

	data, err := json.Marshal(record)
	if err != nil {
		return storeerr.Serialization("telemetry.SetStatus", err)
	}

	if err := s.adapter.Writer().Set(ctx, statusKey(robotID), data, s.ttl).Err(); err != nil {
		return storeerr.Network("telemetry.SetStatus", err).
			WithContext(map[string]any{"robotId": robotID})
	}

	return nil
}

// Get returns the robot's status, or nil when none was reported within the
// TTL window.
func (s *StatusStore) Get(ctx context.Context, robotID string) (map[string]any, error) {
	data, err := s.adapter.Reader().Get(ctx, statusKey(robotID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.Network("telemetry.GetStatus", err).
			WithContext(map[string]any{"robotId": robotID})
	}

	var status map[string]any
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, storeerr.Serialization("telemetry.GetStatus", err)
	}

	return status, nil
}

func statusKey(robotID string) string {
	return fmt.Sprintf("robot:status:%s", robotID)
}
