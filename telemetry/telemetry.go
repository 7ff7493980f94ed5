package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// Sample is one telemetry reading from a robot.
type Sample struct {
	// RobotID identifies the reporting robot.
	RobotID string `json:"robotId"`

	// Timestamp is the Unix timestamp in milliseconds the sample was taken.
	Timestamp int64 `json:"timestamp"`

	// Metrics holds the reported values (battery, pose, temperatures, ...).
	Metrics map[string]any `json:"metrics"`
}

// Buffer provides the bounded per-robot ring buffer plus the parallel
// append-only stream for live subscribers.
type Buffer struct {
	adapter      *store.Adapter
	bufferTTL    time.Duration
	bufferMax    int
	streamMaxLen int64
	logger       *slog.Logger
	metrics      *bufferMetrics
}

// bufferMetrics holds the optional OpenTelemetry instruments.
type bufferMetrics struct {
	// buffered counts samples pushed, attributed by robot.
	buffered metric.Int64Counter
}

// NewBuffer builds the telemetry buffer. The meter may be nil, which
// disables metrics.
func NewBuffer(buf, stream config.Structure, adapter *store.Adapter, logger *slog.Logger, meter metric.Meter) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Buffer{
		adapter:      adapter,
		bufferTTL:    buf.GetTTL(time.Hour),
		bufferMax:    buf.GetMaxLength(100),
		streamMaxLen: int64(stream.GetMaxLength(10000)),
		logger:       logger,
	}

	if meter != nil {
		buffered, err := meter.Int64Counter(
			"fleetcache.telemetry.buffered",
			metric.WithDescription("Telemetry samples buffered"),
			metric.WithUnit("1"),
		)
		if err != nil {
			logger.Warn("failed to create telemetry counter, metrics disabled", "error", err)
		} else {
			b.metrics = &bufferMetrics{buffered: buffered}
		}
	}

	return b
}

// Add pushes a sample to the front of the robot's bounded list, trims the
// list to its max length, refreshes the TTL, and independently appends the
// sample to the robot's stream under the approximate cap.
func (b *Buffer) Add(ctx context.Context, robotID string, sample Sample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return storeerr.Serialization("telemetry.Add", err)
	}

	key := bufferKey(robotID)
	pipe := b.adapter.Writer().Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(b.bufferMax-1))
	pipe.Expire(ctx, key, b.bufferTTL)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(robotID),
		MaxLen: b.streamMaxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return storeerr.Network("telemetry.Add", err).
			WithContext(map[string]any{"robotId": robotID})
	}

	if b.metrics != nil {
		b.metrics.buffered.Add(ctx, 1, metric.WithAttributes(
			attribute.String("robot_id", robotID),
		))
	}

	return nil
}

// Recent returns up to count buffered samples, most recent first.
func (b *Buffer) Recent(ctx context.Context, robotID string, count int) ([]Sample, error) {
	if count <= 0 {
		count = 100
	}

	items, err := b.adapter.Reader().LRange(ctx, bufferKey(robotID), 0, int64(count-1)).Result()
	if err != nil {
		return nil, storeerr.Network("telemetry.Recent", err).
			WithContext(map[string]any{"robotId": robotID})
	}

	samples := make([]Sample, 0, len(items))
	for _, item := range items {
		var sample Sample
		if err := json.Unmarshal([]byte(item), &sample); err != nil {
			return nil, storeerr.Serialization("telemetry.Recent", err)
		}
		samples = append(samples, sample)
	}

	return samples, nil
}

// Flush deletes the robot's bounded list once a consumer has durably
// persisted it. The parallel stream is never touched; live subscribers
// manage its lifecycle separately.
func (b *Buffer) Flush(ctx context.Context, robotID string) error {
	if err := b.adapter.Writer().Del(ctx, bufferKey(robotID)).Err(); err != nil {
		return storeerr.Network("telemetry.Flush", err).
			WithContext(map[string]any{"robotId": robotID})
	}
	return nil
}

func bufferKey(robotID string) string {
	return fmt.Sprintf("telemetry:buffer:%s", robotID)
}

func streamKey(robotID string) string {
	return fmt.Sprintf("telemetry:stream:%s", robotID)
}
