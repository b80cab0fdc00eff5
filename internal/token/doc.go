// Package token implements the license-token lifecycle engine: the
// authoritative in-memory token set, the rules that decide whether a token
// currently grants access, and the snapshot persistence that carries the set
// across restarts.
//
// # Components
//
//	- Store: RWMutex-guarded map of token string to Record, the sole source
//	  of truth while the process runs
//	- Manager: creation, validation with usage accounting, activation state,
//	  deletion, and expiry computation
//	- Persister: loads the startup snapshot (environment variable first,
//	  on-disk file second, empty store last) and re-serializes the store
//	  after every mutation
//	- ApplyBatch: folds externally distributed token descriptors into the
//	  store without discarding locally tracked usage history
//
// # Validation semantics
//
// Validation fails closed. A token is valid only when it is known, its
// active flag is set, and its expiry (if any) is in the future at the
// moment of the check. Every successful validation is a mutation: it
// increments used_count and stamps last_used atomically with respect to
// concurrent validations of the same token.
//
// # Durability
//
// Snapshot writes run outside the store lock and are best-effort: on a
// read-only filesystem the service keeps serving from memory and logs a
// warning. A crash between a mutation and its snapshot may lose that one
// mutation, which is an accepted trade-off.
package token
