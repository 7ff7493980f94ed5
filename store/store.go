package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// Adapter wraps the primary (read-write) and optional secondary (read-only)
// connections to the backing store. Every component reads through Reader()
// and writes through Writer(); the adapter owns the retry policy both
// connections inherit.
//
// Thread-safety: the underlying go-redis clients multiplex requests and are
// safe for concurrent use; the Adapter holds no other mutable state.
type Adapter struct {
	primary *redis.Client
	replica *redis.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTracerProvider enables tracing of adapter operations. A nil provider
// leaves tracing disabled.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Adapter) {
		if tp != nil {
			a.tracer = tp.Tracer("github.com/hammer-fleet/fleetcache/store")
		}
	}
}

// New builds the primary client and, when a read-only credential is present,
// the secondary read-only client. Construction validates the endpoint URL but
// does not require the store to be reachable; a degraded store must not keep
// the process from booting. Missing credentials are rejected earlier, by
// config.FromEnv.
func New(conn config.Connection, creds config.Credentials, opts ...Option) (*Adapter, error) {
	a := &Adapter{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	primaryOpts, err := clientOptions(conn, creds.URL, creds.Token)
	if err != nil {
		return nil, storeerr.Configuration("store.New", err)
	}
	a.primary = redis.NewClient(primaryOpts)

	if creds.ReadOnlyToken != "" {
		replicaOpts, err := clientOptions(conn, creds.URL, creds.ReadOnlyToken)
		if err != nil {
			return nil, storeerr.Configuration("store.New", err)
		}
		a.replica = redis.NewClient(replicaOpts)
	}

	return a, nil
}

func clientOptions(conn config.Connection, url, token string) (*redis.Options, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse store URL: %w", err)
	}

	if token != "" {
		opts.Password = token
	}

	// Capped linear backoff: min(retry * backoffMin, backoffMax).
	opts.MaxRetries = conn.GetMaxRetries()
	opts.MinRetryBackoff = conn.GetBackoffMin()
	opts.MaxRetryBackoff = conn.GetBackoffMax()

	return opts, nil
}

// Writer returns the primary (read-write) client.
func (a *Adapter) Writer() *redis.Client {
	return a.primary
}

// Reader returns the read-only client, falling back to the primary when no
// replica is configured.
func (a *Adapter) Reader() *redis.Client {
	if a.replica != nil {
		return a.replica
	}
	return a.primary
}

// HasReplica reports whether a read replica is configured.
func (a *Adapter) HasReplica() bool {
	return a.replica != nil
}

// Ping returns a boolean health signal and never returns an error; any
// underlying failure is logged and reported as false.
func (a *Adapter) Ping(ctx context.Context) bool {
	ctx, span := a.startSpan(ctx, "store.Ping")
	defer span.End()

	if err := a.primary.Ping(ctx).Err(); err != nil {
		a.logger.Error("store ping failed", "error", err)
		span.SetStatus(codes.Error, err.Error())
		return false
	}

	return true
}

// Keys returns all keys matching the glob pattern. This is a full keyspace
// scan on the store side and is intended for invalidation paths, not hot
// request paths.
func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, span := a.startSpan(ctx, "store.Keys",
		attribute.String("pattern", pattern))
	defer span.End()

	keys, err := a.primary.Keys(ctx, pattern).Result()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, storeerr.Network("store.Keys", err).
			WithContext(map[string]any{"pattern": pattern})
	}

	return keys, nil
}

// Close closes both clients.
func (a *Adapter) Close() error {
	err := a.primary.Close()
	if a.replica != nil {
		err = errors.Join(err, a.replica.Close())
	}
	if err != nil {
		return storeerr.Network("store.Close", err)
	}
	return nil
}

// startSpan starts a span when tracing is enabled; otherwise it returns a
// non-recording span so call sites need no nil checks.
func (a *Adapter) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if a.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return a.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
