// Package store provides persistent storage for livedesk using SQLite.
//
// # Architecture
//
// The Store interface covers four entity families:
//
//   - Attendant: support agents with presence status and a capacity ceiling
//   - Visitor: chat widget end users with an opaque correlation token
//   - Room: conversation threads between one visitor and at most one attendant
//   - Message: room messages, including attendant-only internal notes
//
// SQLiteStore implements the whole interface in a single struct.
//
// # Transitions
//
// Room lifecycle transitions (create, close, reopen, reassign) run as single
// SQL transactions that update the room row and the affected attendant
// counters together. The active_conversations column is a cached count kept
// consistent by those transactions, never recomputed on read. Increments are
// guarded by the capacity ceiling; a full attendant yields ErrCapacityExceeded
// and the transaction rolls back with nothing applied.
//
// ReassignRoom is compare-and-swap on the owner the caller observed: when two
// reassignments race, exactly one commits and the other gets ErrConflict.
// The transfer always lands the room open under the new owner, reopening a
// pending-resolution room as part of the same commit.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Use NewSQLiteStore(":memory:") for tests.
//
// # Change Notifications
//
// After every committed mutation the store calls the registered
// ChangeNotifier with the affected table name (rooms, messages,
// attendant_profiles). The feed package turns these into subscriber
// callbacks.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrCapacityExceeded: attendant has no free conversation slots
//   - ErrConflict: conditional update lost against a concurrent transition
//   - ErrDuplicateVisitor: visitor token already registered
//
// All methods accept context.Context for cancellation support.
package store
