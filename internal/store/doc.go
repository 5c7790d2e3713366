// Package store provides SQLite-backed durable storage for the offline
// action queue.
//
// Two tables:
//   - actions: pending mutating operations, strictly ordered by seq
//     (AUTOINCREMENT) with a UNIQUE idempotency_key for dedupe
//   - dead_letters: actions that exhausted their attempt budget, kept for
//     operator inspection
//
// Ordering uses seq INTEGER only, never timestamps - replay must issue
// requests in exact enqueue order, and wall clocks on kiosks drift.
//
// Idempotency: an upsert on idempotency_key replaces the payload in place
// while keeping seq, so re-submitting the same logical action never creates
// a second entry and never loses its queue position.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
