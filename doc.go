// Package sessionguard manages the lifecycle of one authenticated session:
// creation, sealed persistence and restore, activity-driven idle timeouts,
// proactive renewal through an identity provider, expiry warnings and
// termination, with lifecycle events fanned out to subscribers.
//
// A [Manager] is built with [New] and must be initialized before use:
//
//	m, err := sessionguard.New().
//		WithStore(store.NewFile(path)).
//		WithIdentityProvider(idp).
//		Build()
//	if err != nil { ... }
//	defer m.Close()
//	if err := m.Initialize(ctx); err != nil { ... }
//
// # Architecture boundaries
//
// sessionguard is the public surface. It exposes [Manager], [Builder],
// [Config] and value types. Sealing lives in seal, persistence in store,
// the record codec in session, timers under internal/timers and event
// fan-out in events.
//
// # Concurrency
//
// Mutators and timer callbacks run one at a time on the Manager's command
// loop. Queries read an atomically published snapshot and never block.
// Event handlers run on the loop goroutine: a handler that needs to call a
// mutator must do so from another goroutine.
//
// # What this package must NOT do
//
//   - Keep more than one current session per Manager.
//   - Log refresh tokens, keys or decrypted records.
//   - Return persistence failures from lifecycle operations; they are logged
//     and counted instead.
package sessionguard
