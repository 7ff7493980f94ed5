// Package telemetry provides per-robot telemetry buffering and the
// TTL-bounded robot status records.
//
// # Key schema
//
//   - telemetry:buffer:<robotId> - bounded list, newest first, trimmed to
//     the configured max length on every push
//   - telemetry:stream:<robotId> - append-only stream for live subscribers,
//     capped approximately (the store may transiently exceed the cap; it is
//     a soft retention bound, not an invariant)
//   - robot:status:<robotId> - JSON status record with a short TTL
//
// Flushing the buffer after samples are durably persisted elsewhere deletes
// only the list; the stream is independent and its lifecycle belongs to the
// live subscribers.
package telemetry
