// Package lifecycle drives conversations through their states.
//
// # Overview
//
// The Manager validates transition preconditions, stamps times and IDs, and
// delegates the atomic state change to the store. Rooms move open -> closed
// (resolved or pending follow-up) -> reopened or resolved; reassignment
// lands the room open under the new owner regardless of where it started.
//
// # Errors
//
// Precondition failures surface as ErrInvalidTransition; races detected
// inside the store keep their store sentinels (ErrConflict,
// ErrCapacityExceeded) so callers can distinguish "you may not" from
// "someone beat you".
package lifecycle
