// Package integration contains the synchronization bounded context.
// It models orders and products that are jointly owned by two storefronts, the
// internal operations team and the fulfillment warehouse.
//
// Key concepts:
//   - Field ownership: every synced field belongs to a fixed category (commerce, ops, stock, shared)
//     and ConflictResolver decides which writer wins inside the conflict window
//   - SyncLogEntry: append-only audit trail of every resolved write and conflict
//   - Pipeline: resumable five-step onboarding of a channel
//   - StorefrontAdapter / WarehouseAdapter: ports implemented in the infrastructure layer
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
