// Package session defines the session record and its compact binary encoding.
//
// # Binary encoding
//
// Records are encoded with a leading schema version byte followed by
// length-prefixed strings and big-endian millisecond timestamps. Decoding is
// strict: unknown versions, truncated input, trailing bytes, unknown roles and
// impossible timestamp orderings are all rejected with [ErrCorrupt], so a
// blob that decodes is structurally valid.
//
// # Architecture boundaries
//
// This package owns the [Record] model and its codec. It does NOT seal, store,
// or time out records; those responsibilities belong to the lifecycle manager.
//
// # What this package must NOT do
//
//   - Import sessionguard, seal, or store (no upward imports).
//   - Decide whether a record is still valid at a given time.
package session
