// Package cache provides the tagged API response cache.
//
// Entries are JSON envelopes keyed cache:api:<endpoint>:<queryHash>, bounded
// by TTL. Each tag on an entry registers the entry's key into a membership
// set cache:tag:<tag>, enabling group invalidation in addition to direct
// pattern-based invalidation.
//
// Tag membership sets carry no TTL and are only cleaned up by an explicit
// tag invalidation. An entry that expires by TTL alone leaves its key behind
// in every tag set it was registered under. This is a known resource leak
// carried over from the deployed behavior; InvalidateByTags tolerates the
// stale members because deleting an already-expired key is a no-op.
//
// Every invalidation appends one audit record to an append-only log stream.
// The stream is never pruned by this package; retention is the consumer's
// responsibility.
package cache
