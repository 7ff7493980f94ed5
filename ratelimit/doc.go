// Package ratelimit provides distributed sliding-window rate limiting over
// the shared store.
//
// A Registry lazily constructs one limiter per named limit class (api, auth,
// telemetry) from configuration and caches it for the process lifetime; a
// configuration change requires a process restart.
//
// # Algorithm
//
// The sliding window is approximated with two fixed-window counters per
// identifier, keyed ratelimit:<class>:<identifier>:<windowStart>. Each check
// increments the current window's counter and weighs in the previous
// window's counter by its remaining overlap with the trailing window. The
// increment is never rolled back on a deny, which keeps the algorithm
// approximate but safe under race: concurrent checks can only over-count,
// never admit more than the configured limit plus the race width.
//
// A deny is not an error. Check returns a structured Decision and the
// decision to reject the request belongs to the calling middleware.
package ratelimit
