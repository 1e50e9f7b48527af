// Package domain models gridded model output split into acquisition chunks and
// the rules used to fold those chunks into one series per variable.
//
// # Variables
//
// A physical quantity is identified by a [VariableIdentity]: its display name
// plus the source code the model writes into each field record (the STASH
// attribute for Unified Model output, e.g. "m01s00i407"). Two records match
// only when both halves are equal; a name match with a different code is a
// different variable.
//
// # Snapshots
//
// Every field record is split into [Snapshot] values holding exactly one
// timestamp. Model time is a plain number in the record's time units (for
// example "hours since 1970-01-01 00:00:00"); it is compared exactly, never
// converted to wall-clock time.
//
// # Overlap policy
//
// Restarted model runs re-cover the tail of the previous window, so chunk N+1
// may repeat timestamps already retained from chunk N. [ResolveOverlap] applies
// a deliberately narrow policy to each incoming batch:
//
//	no retained timestamps in the batch     -> keep the batch
//	only position 0 already retained        -> drop position 0
//	two-element batch, both retained        -> drop the batch
//	anything else                           -> OverlapError
//
// The earliest-processed copy of a timestamp is always the one kept. Any other
// overlap shape is reported rather than guessed at.
//
// # Ordering
//
// An [Accumulator] keeps its timestamps strictly increasing. Gaps between
// chunks are preserved; a batch that would break the ordering is rejected and
// the accumulator is left as it was.
package domain
