// Package store provides the low-level adapter every fleetcache component
// shares: one primary (read-write) connection to the backing store and,
// when a read-only credential is configured, one secondary read-only
// connection for read routing.
//
// # Read/write routing
//
// All reads elsewhere in the library go through Reader(), which falls back
// to the primary when no replica is configured. All writes go through
// Writer(). The adapter configures the capped retry backoff once and both
// clients inherit it for every operation.
//
// # Health
//
// Ping is the only operation that converts failure to a sentinel instead of
// an error: it logs and returns false so health checks never crash the
// serving path.
package store
