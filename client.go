package fleetcache

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hammer-fleet/fleetcache/cache"
	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/health"
	"github.com/hammer-fleet/fleetcache/monitor"
	"github.com/hammer-fleet/fleetcache/presence"
	"github.com/hammer-fleet/fleetcache/queue"
	"github.com/hammer-fleet/fleetcache/ratelimit"
	"github.com/hammer-fleet/fleetcache/session"
	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/telemetry"
)

// Client composes every fleetcache component over one shared store adapter.
//
// It is an explicit, dependency-injected struct: construct one per process
// (or per test, with an isolated store) and pass it to consumers. It is
// never a package-level singleton.
//
// Thread-safety: all components are safe for concurrent use.
type Client struct {
	adapter *store.Adapter
	logger  *slog.Logger

	// Sessions provides session CRUD, touch, and bulk invalidation.
	Sessions *session.Store

	// Tokens is the issued-credential registry.
	Tokens *session.Tokens

	// RateLimits checks the configured sliding-window limit classes.
	RateLimits *ratelimit.Registry

	// Cache is the tagged API response cache.
	Cache *cache.Cache

	// Telemetry is the per-robot ring buffer and stream mirror.
	Telemetry *telemetry.Buffer

	// RobotStatus holds the short-lived last-reported robot status records.
	RobotStatus *telemetry.StatusStore

	// Presence tracks WebSocket connections and room membership.
	Presence *presence.Registry

	// Notifications is the capped per-user notification queue.
	Notifications *queue.Notifications

	// Tasks is the global priority task queue.
	Tasks *queue.Tasks

	// Monitor is the diagnostics facade.
	Monitor *monitor.Monitor
}

type clientOptions struct {
	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the structured logger shared by all components.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider enables OpenTelemetry metrics (cache lookups, rate-limit
// decisions, telemetry volume). A nil provider leaves metrics disabled.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *clientOptions) {
		o.meterProvider = mp
	}
}

// WithTracerProvider enables tracing of store adapter operations. A nil
// provider leaves tracing disabled.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) {
		o.tracerProvider = tp
	}
}

// New builds a client from explicit configuration and credentials.
func New(cfg config.Config, creds config.Credentials, opts ...Option) (*Client, error) {
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	adapter, err := store.New(cfg.Connection, creds,
		store.WithLogger(o.logger),
		store.WithTracerProvider(o.tracerProvider),
	)
	if err != nil {
		return nil, err
	}

	var meter metric.Meter
	if o.meterProvider != nil {
		meter = o.meterProvider.Meter("github.com/hammer-fleet/fleetcache")
	}

	return &Client{
		adapter:       adapter,
		logger:        o.logger,
		Sessions:      session.NewStore(cfg.Sessions, adapter, o.logger),
		Tokens:        session.NewTokens(adapter, o.logger),
		RateLimits:    ratelimit.NewRegistry(cfg, adapter, o.logger, meter),
		Cache:         cache.New(cfg.APICache, adapter, o.logger, meter),
		Telemetry:     telemetry.NewBuffer(cfg.TelemetryBuffer, cfg.TelemetryStream, adapter, o.logger, meter),
		RobotStatus:   telemetry.NewStatusStore(cfg.RobotStatus, adapter, o.logger),
		Presence:      presence.NewRegistry(cfg.WebSocketConnections, cfg.WebSocketRooms, adapter, o.logger),
		Notifications: queue.NewNotifications(cfg.Notifications, adapter, o.logger),
		Tasks:         queue.NewTasks(adapter, o.logger),
		Monitor:       monitor.New(adapter, o.logger),
	}, nil
}

// NewFromEnv builds a client with credentials resolved from the environment.
// Missing required credentials fail fast; this is the only startup-time hard
// failure, an unreachable store is not.
func NewFromEnv(cfg config.Config, opts ...Option) (*Client, error) {
	creds, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg, creds, opts...)
}

// Adapter exposes the shared store adapter for consumers needing low-level
// access (custom keys, pipelines).
func (c *Client) Adapter() *store.Adapter {
	return c.adapter
}

// Ping reports whether the store is reachable. It never returns an error.
func (c *Client) Ping(ctx context.Context) bool {
	return c.adapter.Ping(ctx)
}

// Health runs the full health probe: ping plus SET/GET round-trip self-test.
func (c *Client) Health(ctx context.Context) health.Status {
	return health.Check(ctx, c.adapter)
}

// Close releases both store connections.
func (c *Client) Close() error {
	return c.adapter.Close()
}
