// Package command implements the host's command dispatch pipeline.
//
// Every command is registered once under the configured namespace and
// dispatched by name. A dispatch walks a fixed lifecycle:
//
//	Idle -> Dispatched -> (Awaiting, if the handler returned a Deferred) -> Completed
//
// Two lifecycle topics are published on the Bus: TopicWillRun fires before
// the handler executes, TopicDidRun fires only after the handler (and any
// Deferred it returned) settled without error. The Hooks registry listens on
// both topics and invokes per-command callbacks synchronously, in
// registration order. Hooks are best-effort notifications: they cannot veto
// a dispatch and cannot be removed once added.
//
// Error handling:
//   - Unknown command -> ErrUnknownCommand
//   - Handler failure -> propagated to the caller, did-run suppressed
//   - Deferred rejection -> same as a handler failure
//
// Concurrent dispatches share no per-invocation state; the only shared
// structures are the append-only hook lists and the command table, both
// read-only during a dispatch.
package command
