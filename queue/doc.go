// Package queue provides the two ordered structures of the platform: a
// capped per-user notification list and the global priority task queue.
//
// # Key schema
//
//   - notification:<userId> - list of JSON notification entries, newest
//     first, trimmed to the configured max length, TTL refreshed on every
//     enqueue
//   - queue:tasks:priority - sorted set of task ids scored by numeric
//     priority; no TTL, it is a durable work queue, not a cache
//
// # Delivery semantics
//
// DequeueTask atomically pops the highest-priority task. There are no
// visibility or lease semantics: once popped, the task is gone even if the
// consumer crashes before completing it. Consumers needing at-least-once
// delivery must add an explicit in-flight key on top of this package.
package queue
