// Package session provides user session storage and the token registry for
// stateless credential verification.
//
// # Key schema
//
//   - session:<sessionId> - JSON session record, TTL reset to the full
//     window on every Set
//   - session:user:<userId> - set of the user's session ids, maintained as a
//     secondary index so bulk invalidation never scans the keyspace
//   - token:<tokenHash> - JSON token record, TTL aligned to token expiry
//
// Absence is not an error: Get and VerifyToken return a nil record for
// missing or expired entries.
package session
