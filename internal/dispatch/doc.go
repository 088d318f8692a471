// Package dispatch routes acquired events to matched handlers.
//
// # Overview
//
// The Dispatcher pops events from the queue, consults the handler registry,
// and executes matched actions on a bounded worker pool. It owns the
// concurrency contract of the core:
//
//   - events for the same conversation key run strictly in order
//   - events for different keys run concurrently up to the pool size
//   - at most one action executes per key at any moment
//
// # Ordering
//
// For each event the dispatcher acquires the key's conversation lane before
// matching and before submitting to the pool. Lane acquisition order in the
// single dispatch loop is queue order, so same-key events execute in the
// order they were acquired, and state-scoped predicates always observe the
// state left behind by the key's previous action.
//
// # Group Fan-out
//
// All matched entries (one per registry group, ascending group order) for one
// event run sequentially inside a single pool task holding the lane. Each
// action may declare a state transition; transitions are applied between
// actions, so a later group sees the earlier group's state.
//
// # Failure Containment
//
// Action errors and panics are classified and reported to the error sink,
// never propagated: one broken handler cannot stop the loop or poison other
// keys.
//
// # Shutdown
//
// When the queue closes, the loop drains remaining events and then waits for
// in-flight actions up to the shutdown grace period. Actions are never
// cancelled mid-flight; if the grace elapses, Run reports a shutdown fault
// and returns ErrShutdownTimeout, detaching from the stragglers.
//
// # Pool
//
// Pool is the shared fixed-size worker set, used by both the dispatcher and
// the job scheduler. Submit blocks while all workers are busy; that
// backpressure is the only throttling applied to producers.
package dispatch
