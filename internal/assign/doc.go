// Package assign decides which attendant can take a conversation.
//
// # Overview
//
// Eligible computes the candidate pool for manual selection: attendants who
// are online or away with free capacity. Select implements the optional
// automatic policy on top of the same pool, choosing the least-loaded
// candidate with the attendant ID as a deterministic tiebreak.
//
// Both are pure reads; capacity enforcement happens transactionally in the
// store when the assignment is committed, so a stale selection fails there
// rather than here.
package assign
