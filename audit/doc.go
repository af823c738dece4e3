// Package audit relays session lifecycle events to asynchronous sinks.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full or block-if-full semantics.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. It does NOT decide which
// events exist; the lifecycle manager publishes them on the events bus and
// [Dispatcher.Attach] forwards them here.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import sessionguard.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
