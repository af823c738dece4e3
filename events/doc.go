// Package events is the synchronous fan-out bus for session lifecycle events.
//
// # Delivery
//
// Publish calls every subscriber in subscription order on the publishing
// goroutine. A panicking subscriber is recovered and logged; delivery to the
// remaining subscribers continues and the publisher never observes the panic.
// Handlers run on the manager's command loop, so they must not call back into
// manager mutators synchronously; hand off to a goroutine or channel instead.
//
// # What this package must NOT do
//
//   - Buffer or retry events (see package audit for asynchronous sinks).
//   - Import sessionguard.
package events
