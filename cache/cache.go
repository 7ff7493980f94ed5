package cache

import (
	"context"
	"encoding/json"
	"errors"
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

// InvalidationLog is the stream every invalidation event is appended to.
const InvalidationLog = "cache:invalidation:log"

// Options control one Put.
type Options struct {
	// TTL overrides the configured default entry lifetime when positive.
	TTL time.Duration

	// Tags label the entry for group invalidation.
	Tags []string
}

// envelope is the stored shape of a cache entry. Data stays raw so the cache
// never needs to know the payload type; it only round-trips JSON.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	CachedAt int64           `json:"cachedAt"`
	Tags     []string        `json:"tags"`
}

// Cache is the tagged API response cache.
type Cache struct {
	adapter    *store.Adapter
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    *cacheMetrics

	// now is stubbed in tests.
	now func() time.Time
}

// cacheMetrics holds the optional OpenTelemetry instruments. A nil value
// disables metric recording entirely.
type cacheMetrics struct {
	// lookups counts every Get, attributed by outcome (hit or miss).
	lookups metric.Int64Counter

	// invalidated counts keys removed by invalidation calls.
	invalidated metric.Int64Counter
}

// New builds the cache. The meter may be nil, which disables metrics;
// instrument-creation failure is logged and disables metrics rather than
// failing construction.
func New(cfg config.Structure, adapter *store.Adapter, logger *slog.Logger, meter metric.Meter) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		adapter:    adapter,
		defaultTTL: cfg.GetTTL(5 * time.Minute),
		logger:     logger,
		now:        time.Now,
	}

	if meter != nil {
		lookups, err1 := meter.Int64Counter(
			"fleetcache.cache.lookups",
			metric.WithDescription("Cache lookups, by outcome"),
			metric.WithUnit("1"),
		)
		invalidated, err2 := meter.Int64Counter(
			"fleetcache.cache.invalidated",
			metric.WithDescription("Cache keys removed by invalidation"),
			metric.WithUnit("1"),
		)
		if err := errors.Join(err1, err2); err != nil {
			logger.Warn("failed to create cache counters, metrics disabled", "error", err)
		} else {
			c.metrics = &cacheMetrics{lookups: lookups, invalidated: invalidated}
		}
	}

	return c
}

// Put caches a JSON-serializable response under (endpoint, queryHash) and
// registers the key into each tag's membership set.
func (c *Cache) Put(ctx context.Context, endpoint, queryHash string, v any, opts Options) error {
	data, err := json.Marshal(v)
	if err != nil {
		return storeerr.Serialization("cache.Put", err)
	}

	entry, err := json.Marshal(envelope{
		Data:     data,
		CachedAt: c.now().UnixMilli(),
		Tags:     opts.Tags,
	})
	if err != nil {
		return storeerr.Serialization("cache.Put", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	key := entryKey(endpoint, queryHash)
	pipe := c.adapter.Writer().Pipeline()
	pipe.Set(ctx, key, entry, ttl)
	for _, tag := range opts.Tags {
		pipe.SAdd(ctx, tagKey(tag), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storeerr.Network("cache.Put", err).
			WithContext(map[string]any{"key": key})
	}

	return nil
}

// Get unmarshals the cached data field into dest and reports whether the
// entry was present. Envelope metadata (cachedAt, tags) stays internal.
func (c *Cache) Get(ctx context.Context, endpoint, queryHash string, dest any) (bool, error) {
	key := entryKey(endpoint, queryHash)

	raw, err := c.adapter.Reader().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordLookup(ctx, "miss")
		return false, nil
	}
	if err != nil {
		return false, storeerr.Network("cache.Get", err).
			WithContext(map[string]any{"key": key})
	}

	var entry envelope
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, storeerr.Serialization("cache.Get", err)
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		return false, storeerr.Serialization("cache.Get", err)
	}

	c.recordLookup(ctx, "hit")
	return true, nil
}

// Lookup is a typed convenience wrapper around Get for callers that know
// their payload type. It returns nil on a miss.
func Lookup[T any](ctx context.Context, c *Cache, endpoint, queryHash string) (*T, error) {
	var v T
	ok, err := c.Get(ctx, endpoint, queryHash, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// Invalidate deletes every key matching the glob pattern and appends one
// audit record to the invalidation log. A pattern matching nothing deletes
// nothing and logs nothing. Returns the number of keys deleted.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	keys, err := c.adapter.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}

	if err := c.adapter.Writer().Del(ctx, keys...).Err(); err != nil {
		return 0, storeerr.Network("cache.Invalidate", err).
			WithContext(map[string]any{"pattern": pattern})
	}

	if err := c.adapter.Writer().XAdd(ctx, &redis.XAddArgs{
		Stream: InvalidationLog,
		Values: map[string]any{
			"pattern":   pattern,
			"count":     len(keys),
			"timestamp": c.now().UnixMilli(),
		},
	}).Err(); err != nil {
		return len(keys), storeerr.Network("cache.Invalidate", err).
			WithContext(map[string]any{"pattern": pattern})
	}

	c.recordInvalidated(ctx, len(keys))
	return len(keys), nil
}

// InvalidateByTags deletes every member key of each tag plus the tag's
// membership set itself, summing deleted-key counts across tags. A key
// carrying two of the invalidated tags is counted once per tag; the total is
// not deduplicated. The underlying deletes are idempotent, so the quirk is
// confined to the returned count.
func (c *Cache) InvalidateByTags(ctx context.Context, tags []string) (int, error) {
	total := 0

	for _, tag := range tags {
		members, err := c.adapter.Writer().SMembers(ctx, tagKey(tag)).Result()
		if err != nil {
			return total, storeerr.Network("cache.InvalidateByTags", err).
				WithContext(map[string]any{"tag": tag})
		}

		if len(members) == 0 {
			continue
		}

		pipe := c.adapter.Writer().Pipeline()
		pipe.Del(ctx, members...)
		pipe.Del(ctx, tagKey(tag))
		if _, err := pipe.Exec(ctx); err != nil {
			return total, storeerr.Network("cache.InvalidateByTags", err).
				WithContext(map[string]any{"tag": tag})
		}

		total += len(members)
	}

	c.recordInvalidated(ctx, total)
	return total, nil
}

func (c *Cache) recordLookup(ctx context.Context, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (c *Cache) recordInvalidated(ctx context.Context, count int) {
	if c.metrics == nil || count == 0 {
		return
	}
	c.metrics.invalidated.Add(ctx, int64(count))
}

func entryKey(endpoint, queryHash string) string {
	return fmt.Sprintf("cache:api:%s:%s", endpoint, queryHash)
}

func tagKey(tag string) string {
	return fmt.Sprintf("cache:tag:%s", tag)
}
