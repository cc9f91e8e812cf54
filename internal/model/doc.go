// Package model defines the records the sync engine moves between the local
// store and the remote system of record.
//
// Three groups of types live here:
//   - Queue: QueueItem and its entity/action/status enums
//   - Local entities: Session, Order (with OrderItems) and Payment, each keyed
//     by a client-generated local identifier and carrying an optional ServerID
//   - Reference data: Customer, Promotion, StockLevel and SyncMetadata, the
//     read-only caches refreshed from the remote system
//
// Conflict records and their resolutions are also defined here so the store,
// the conflict service and the CLI share one vocabulary.
//
// # Identifiers
//
// Local identifiers are "LOCAL-" followed by a UUIDv7. IsLocalID is the only
// test used to decide whether a foreign key still needs remapping.
package model
