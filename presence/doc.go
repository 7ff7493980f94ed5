// Package presence tracks live WebSocket connection records and room
// membership for pub/sub-style fan-out. The package owns the registry only;
// message delivery belongs to the transport layer consuming it.
//
// # Key schema
//
//   - ws:connection:<connId> - JSON connection record, TTL-bounded
//   - ws:user:<userId> - set of the user's connection ids, no TTL
//   - ws:room:<roomId> - set of member connection ids, TTL refreshed on
//     every subscribe (an idle room with no new subscribers expires)
//
// # Known limitation
//
// The user connection set carries no TTL and is pruned only by an explicit
// Remove. If a connection record TTL-expires before Remove is called, the
// owning-user lookup fails silently and the stale id lingers in the user's
// set. This mirrors the deployed behavior; whether to add a reconciliation
// sweep is a product decision, not a library one.
package presence
