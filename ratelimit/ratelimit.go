package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// Class names a configured limit class.
type Class string

// The limit classes the platform configures out of the box.
const (
	// ClassAPI covers general API traffic.
	ClassAPI Class = "api"

	// ClassAuth covers login and token issuance.
	ClassAuth Class = "auth"

	// ClassTelemetry covers telemetry ingest.
	ClassTelemetry Class = "telemetry"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	// Allowed reports whether the operation is within the limit.
	Allowed bool `json:"allowed"`

	// Limit is the configured number of operations per window.
	Limit int `json:"limit"`

	// Remaining is the number of operations left in the current window.
	// Never negative.
	Remaining int `json:"remaining"`

	// Reset is the Unix timestamp in milliseconds when the current window ends.
	Reset int64 `json:"reset"`
}

// Limiter enforces one limit class. Limiters only accumulate counters; they
// never reset state, so double construction of the same class is harmless.
type Limiter struct {
	class    Class
	requests int
	window   time.Duration
	client   *redis.Client
	logger   *slog.Logger

	// now is stubbed in tests to pin window boundaries.
	now func() time.Time
}

// NewLimiter builds a limiter for one class from its (requests, window) pair.
func NewLimiter(class Class, limit config.Limit, adapter *store.Adapter, logger *slog.Logger) (*Limiter, error) {
	if limit.Requests <= 0 || limit.Window <= 0 {
		return nil, storeerr.Configuration("ratelimit.NewLimiter",
			fmt.Errorf("%w: class %q needs positive requests and window", storeerr.ErrInvalidConfig, class))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{
		class:    class,
		requests: limit.Requests,
		window:   limit.GetWindow(),
		client:   adapter.Writer(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Check records one operation for the identifier and decides whether it is
// within the limit. The counter increment happens regardless of the outcome.
func (l *Limiter) Check(ctx context.Context, identifier string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	currKey := l.key(identifier, windowStart)
	prevKey := l.key(identifier, windowStart.Add(-l.window))

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, currKey)
	pipe.Expire(ctx, currKey, 2*l.window)
	prev := pipe.Get(ctx, prevKey)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, storeerr.Network("ratelimit.Check", err).
			WithContext(map[string]any{"class": string(l.class), "identifier": identifier})
	}

	curr := incr.Val()

	var prevCount int64
	if raw, err := prev.Result(); err == nil {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			prevCount = n
		}
	}

	// Weight the previous window by its remaining overlap with the trailing
	// window ending now.
	elapsed := float64(now.Sub(windowStart)) / float64(l.window)
	weighted := float64(prevCount)*(1-elapsed) + float64(curr)

	remaining := l.requests - int(weighted)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   weighted <= float64(l.requests),
		Limit:     l.requests,
		Remaining: remaining,
		Reset:     windowStart.Add(l.window).UnixMilli(),
	}, nil
}

func (l *Limiter) key(identifier string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", l.class, identifier, windowStart.Unix())
}
