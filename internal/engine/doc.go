// Package engine orchestrates sync passes over the local queue.
//
// A pass takes the eligible queue items, orders them by dependency, and
// hands each one to its entity processor. Results are mapped onto queue
// state:
//
//	success      -> completed
//	not found    -> failed with the retry budget exhausted (dead)
//	unresolved   -> pending, retries unchanged
//	transient    -> failed, retries+1, retried after backoff
//	conflict     -> failed, retries+1, conflict recorded and held
//
// SINGLE FLIGHT:
// At most one pass runs at a time. A trigger that arrives during a pass is
// reported as skipped instead of queueing behind it. Items within a pass
// are processed sequentially so identifiers minted for parents are visible
// to their children through the pass IdentifierMap.
//
// SCHEDULING:
// Start launches a background loop driven by a fixed ticker, a debounced
// trigger after an offline to online transition, and an optional
// connectivity probe. Stop ends the loop after any in-flight pass
// finishes; it never aborts one.
package engine
