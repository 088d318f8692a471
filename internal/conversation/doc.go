// Package conversation tracks per-key dialogue state for the dispatch core.
//
// # Overview
//
// Every event carries a conversation key (chat id, optionally scoped by user
// id). The Tracker maps each key to an opaque State and guards it with a
// per-key lane so handler actions for the same key never interleave.
//
// # States and Transitions
//
// States are plain strings chosen by the application; the empty string is the
// implicit initial state of every key. Handler actions declare state changes
// by returning a *Transition:
//
//	return conversation.To("awaiting_name"), nil   // move to a state
//	return conversation.End(), nil                  // terminate, reset to initial
//	return nil, nil                                 // leave state untouched
//
// The Tracker is the only mutator. Transitions are applied through an
// acquired Lane; applying through a released lane returns ErrStateConflict,
// which downstream reporting treats as an invariant violation.
//
// # Lanes
//
// Acquire blocks until the key's lane is free:
//
//	lane := tracker.Acquire(ev.Key)
//	defer lane.Release()
//	// read state, run the action, apply the transition
//
// The dispatcher acquires lanes in event order, so the lane queue doubles as
// the per-key ordering guarantee.
//
// # Timeouts and Eviction
//
// A transition arms a deadline (the tracker default, or a per-transition
// override). A background sweep resets expired keys to the configured
// timed-out state and fires the OnTimeout hook. Idle entries with no
// interesting state are evicted to keep the map bounded. Keys with a held
// lane are never swept.
//
// # Persistence
//
// With a StateStore configured, every applied transition is written through
// and a restarted process resumes mid-conversation. Store failures are
// logged, never propagated: in-memory state already advanced and dispatch
// must not stall on storage.
//
// # Flow Graphs
//
// Graph is a declarative (state, trigger) -> state machine, built in code
// with AddEdge or loaded from a TOML flow file:
//
//	[[edge]]
//	from = ""
//	trigger = "^/start"
//	to = "awaiting_name"
//
// The handler package bridges a Graph into a registry entry.
package conversation
