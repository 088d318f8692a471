// ABOUTME: Tests for the graph-driven flow handler entry
// ABOUTME: Covers edge matching, transition hooks, and the unhandled path

package handler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candourhq/courier/internal/conversation"
	"github.com/candourhq/courier/internal/event"
)

func newFlowGraph(t *testing.T) *conversation.Graph {
	t.Helper()
	g := conversation.NewGraph()
	require.NoError(t, g.AddEdge(conversation.Initial, `^/start`, "awaiting_name"))
	require.NoError(t, g.AddEdge("awaiting_name", `^\w+$`, "done"))
	return g
}

func applyFlow(t *testing.T, tr *conversation.Tracker, entry Entry, ev *event.Event) {
	t.Helper()
	lane := tr.Acquire(ev.Key)
	defer lane.Release()
	transition, err := entry.Action(context.Background(), ev)
	require.NoError(t, err)
	if transition != nil {
		require.NoError(t, tr.Apply(lane, transition))
	}
}

func TestFlow_WalksGraph(t *testing.T) {
	tr := conversation.NewTracker(conversation.Config{SweepInterval: time.Minute})
	defer tr.Close()

	entry := Flow(FlowConfig{Tracker: tr, Graph: newFlowGraph(t)})
	require.True(t, entry.Persistent)

	key := event.Key{ChatID: 1}
	start := textEvent(1, "/start")

	require.True(t, entry.Match(start))
	applyFlow(t, tr, entry, start)
	assert.Equal(t, conversation.State("awaiting_name"), tr.Lookup(key))

	name := textEvent(2, "alice")
	require.True(t, entry.Match(name))
	applyFlow(t, tr, entry, name)
	assert.Equal(t, conversation.State("done"), tr.Lookup(key))
}

func TestFlow_NoEdgeNoMatch(t *testing.T) {
	tr := conversation.NewTracker(conversation.Config{SweepInterval: time.Minute})
	defer tr.Close()

	entry := Flow(FlowConfig{Tracker: tr, Graph: newFlowGraph(t)})
	assert.False(t, entry.Match(textEvent(1, "unrelated chatter")))
}

func TestFlow_OnTransitionHook(t *testing.T) {
	tr := conversation.NewTracker(conversation.Config{SweepInterval: time.Minute})
	defer tr.Close()

	var gotFrom, gotTo conversation.State
	entry := Flow(FlowConfig{
		Tracker: tr,
		Graph:   newFlowGraph(t),
		OnTransition: func(_ context.Context, _ *event.Event, from, to conversation.State) error {
			gotFrom, gotTo = from, to
			return nil
		},
	})

	applyFlow(t, tr, entry, textEvent(1, "/start"))
	assert.Equal(t, conversation.Initial, gotFrom)
	assert.Equal(t, conversation.State("awaiting_name"), gotTo)
}

func TestFlow_OnTransitionErrorAborts(t *testing.T) {
	tr := conversation.NewTracker(conversation.Config{SweepInterval: time.Minute})
	defer tr.Close()

	entry := Flow(FlowConfig{
		Tracker: tr,
		Graph:   newFlowGraph(t),
		OnTransition: func(context.Context, *event.Event, conversation.State, conversation.State) error {
			return fmt.Errorf("nope")
		},
	})

	ev := textEvent(1, "/start")
	lane := tr.Acquire(ev.Key)
	transition, err := entry.Action(context.Background(), ev)
	lane.Release()

	assert.Error(t, err)
	assert.Nil(t, transition)
	assert.Equal(t, conversation.Initial, tr.Lookup(ev.Key))
}

func TestFlow_VanishedEdgeTakesUnhandledPath(t *testing.T) {
	tr := conversation.NewTracker(conversation.Config{SweepInterval: time.Minute})
	defer tr.Close()

	var unhandled []conversation.State
	entry := Flow(FlowConfig{
		Tracker: tr,
		Graph:   newFlowGraph(t),
		Unhandled: func(_ context.Context, _ *event.Event, state conversation.State) {
			unhandled = append(unhandled, state)
		},
	})

	// Move the key so the /start edge no longer applies, then run the
	// action for a /start event anyway.
	key := event.Key{ChatID: 1}
	lane := tr.Acquire(key)
	require.NoError(t, tr.Apply(lane, conversation.To("done")))
	lane.Release()

	ev := textEvent(1, "/start")
	lane = tr.Acquire(key)
	transition, err := entry.Action(context.Background(), ev)
	lane.Release()

	require.NoError(t, err)
	assert.Nil(t, transition)
	assert.Equal(t, []conversation.State{"done"}, unhandled)
}
