// Package handler defines the registry of event handlers and their predicates.
//
// # Overview
//
// A handler entry pairs a Predicate (should this handler see this event?)
// with an Action (what to do with it). Entries are registered into numbered
// groups:
//
//	reg := registry.Register(0, handler.NewEntry(match, action))
//
// # Matching Semantics
//
// For one event, groups are evaluated in ascending order and within each
// group at most one entry fires: the first registered whose predicate
// matches. Different groups are independent, so an event can be handled once
// per group. Predicates must be side-effect free; a panicking predicate is
// reported and treated as a non-match.
//
// # Actions
//
// Actions run on the dispatch pool under the event key's conversation lane
// and may declare a state transition by returning a *conversation.Transition.
// Entries built with Once are removed after their first dispatch.
//
// # Predicate Constructors
//
// Common predicates ship with the package:
//
//   - Command("start"): matches "/start", "/start@botname", with arguments
//   - Text(): non-empty, non-command text
//   - Regex(pattern): text matching a regular expression
//   - InState(tracker, state, inner): state-scoped wrapper
//   - Any(...), All(...): boolean combinators
//
// # Flow Entries
//
// Flow bridges a conversation.Graph into a single persistent entry, letting
// a declarative TOML flow file drive multi-step dialogues without hand-rolled
// predicates.
package handler
