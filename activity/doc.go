// Package activity turns user and request activity into idle-timer resets.
//
// # Components
//
//   - [Tracker]: converts a [Signal] into one RecordActivity call.
//   - [Guard]: HTTP middleware that rejects signed-out requests and counts
//     the rest as activity.
//   - [RequirePermission]: HTTP middleware that rejects requests lacking a
//     capability.
//
// # Architecture boundaries
//
// This package translates signals and HTTP semantics into manager calls
// through the narrow [Recorder] and [Authenticator] interfaces. It makes no
// lifecycle decisions itself.
//
// # What this package must NOT do
//
//   - Import sessionguard (the manager imports this package).
//   - Debounce or batch signals; re-arming the idle timer is idempotent.
package activity
