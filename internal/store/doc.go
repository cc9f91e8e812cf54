// Package store provides SQLite-backed durable storage for the offline sync
// engine.
//
// The store holds:
//   - Sync Queue: one row per local create/update awaiting replay
//   - Local Entities: sessions, orders (with items) and payments
//   - Conflicts: remote rejections awaiting an operator decision
//   - Reference Caches: customers, promotions (with targets and free
//     products) and stock levels, plus per-entity sync metadata
//
// # Queue Rules
//
// Workflow code creates an entity row and its queue item in one transaction
// (CreateSession, CreateOrder, CreatePayment), so a queue item never points at
// a row that was not written. Enqueue dedupes an identical pending mutation by
// the canonical payload hash.
//
// EligibleCandidates never returns an item held by an unresolved conflict;
// the retry policy itself lives in internal/queue.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Promotion child rows cascade on delete
//
// Statements are built with squirrel; timestamps are unix milliseconds.
package store
