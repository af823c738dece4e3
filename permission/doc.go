// Package permission provides the capability registry and the role policy
// used to derive a session's permission set.
//
// # Derivation
//
// A session's permissions are the union of its role's capabilities and any
// explicit grants carried by the identity claims, returned as a sorted set
// with duplicates removed. The set is computed once at creation or refresh
// and never mutated in between.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. Roles are
// plain strings here; the session package owns the closed role set.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import sessionguard or session.
//   - Change role capabilities after [Policy.Freeze].
package permission
