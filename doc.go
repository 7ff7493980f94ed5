// Package fleetcache is the shared Redis data layer for the Hammer fleet
// platform. It composes reliable higher-level primitives - sessions, token
// revocation, tagged cache invalidation, telemetry ring buffers,
// sliding-window rate limits, presence rooms, and priority task queues -
// over a single Redis-compatible store, with TTL-driven lifecycle management
// and graceful degradation when the store is unavailable.
//
// # Architecture
//
// Every component shares one store.Adapter holding the primary (read-write)
// connection and, when configured, a read-only replica connection. There is
// no internal scheduler; every operation is request-driven, short-lived, and
// takes a context.Context so network calls stay boundable. Expiry is the
// store's own TTL mechanism, asynchronous to this process.
//
// # Components
//
//   - session: session records and the token registry
//   - ratelimit: per-class sliding-window limiting
//   - cache: tagged API response cache with an invalidation audit log
//   - telemetry: per-robot ring buffers, stream mirrors, and status records
//   - presence: WebSocket connection and room registries
//   - queue: per-user notifications and the global priority task queue
//   - monitor: INFO diagnostics parsing
//   - health: ping plus SET/GET round-trip self-test
//
// # Usage
//
// Construct one Client per process and hand it to consumers:
//
//	cfg := config.Default()
//	client, err := fleetcache.NewFromEnv(cfg)
//	if err != nil {
//		log.Fatal(err) // missing credentials: do not start degraded
//	}
//	defer client.Close()
//
//	decision, err := client.RateLimits.Check(ctx, ratelimit.ClassAuth, clientIP)
//	if err == nil && !decision.Allowed {
//		// reject the request; rejection policy belongs to the middleware
//	}
//
// # Error model
//
// Operational failures are *storeerr.Error values carrying the operation and
// a kind (configuration, network, serialization, internal). Absence - a
// missing session, an expired token, a cache miss - is a nil result with a
// nil error. Health and monitoring operations never fail at all; they log
// and return sentinels so observability cannot crash the serving path.
package fleetcache
