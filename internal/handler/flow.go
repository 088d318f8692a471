// ABOUTME: Bridges a conversation state graph into a single handler entry
// ABOUTME: Events drive graph edges; unmatched pairs fall through to an unhandled hook

package handler

import (
	"context"

	"github.com/candourhq/courier/internal/conversation"
	"github.com/candourhq/courier/internal/event"
)

// FlowConfig wires a graph-driven conversation handler.
type FlowConfig struct {
	// Tracker holds the per-key states the graph transitions over.
	Tracker *conversation.Tracker

	// Graph defines the (state, trigger) -> state edges.
	Graph *conversation.Graph

	// OnTransition, if set, runs before the transition is applied. Its error
	// aborts the transition. From and To are the edge endpoints.
	OnTransition func(ctx context.Context, ev *event.Event, from, to conversation.State) error

	// Unhandled, if set, is called for events that matched at predicate time
	// but find no edge when the action runs under the key's lane.
	Unhandled func(ctx context.Context, ev *event.Event, state conversation.State)
}

// Flow builds a persistent entry whose predicate admits events with an
// outgoing edge from the key's current state, and whose action re-resolves
// the edge and declares the transition.
//
// The action resolves the edge again rather than trusting predicate-time
// matching, so Flow stays correct even when a caller evaluates the predicate
// outside the key's lane. A vanished edge takes the unhandled path instead
// of erroring.
func Flow(cfg FlowConfig) Entry {
	match := func(ev *event.Event) bool {
		return cfg.Graph.Matches(cfg.Tracker.Lookup(ev.Key), ev.Text())
	}

	action := func(ctx context.Context, ev *event.Event) (*conversation.Transition, error) {
		from := cfg.Tracker.Lookup(ev.Key)
		to, ok := cfg.Graph.Next(from, ev.Text())
		if !ok {
			if cfg.Unhandled != nil {
				cfg.Unhandled(ctx, ev, from)
			}
			return nil, nil
		}
		if cfg.OnTransition != nil {
			if err := cfg.OnTransition(ctx, ev, from, to); err != nil {
				return nil, err
			}
		}
		return conversation.To(to), nil
	}

	return NewEntry(match, action)
}
