// ABOUTME: Tests for the grouped handler registry
// ABOUTME: Covers registration order, first-match-wins, group independence, and predicate panics

package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candourhq/courier/internal/conversation"
	"github.com/candourhq/courier/internal/event"
	"github.com/candourhq/courier/internal/sink"
)

func textEvent(seq int64, text string) *event.Event {
	payload, _ := json.Marshal(map[string]string{"text": text})
	return &event.Event{Seq: seq, Key: event.Key{ChatID: 1}, Payload: payload}
}

func matchAll(*event.Event) bool  { return true }
func matchNone(*event.Event) bool { return false }

func noopAction(context.Context, *event.Event) (*conversation.Transition, error) {
	return nil, nil
}

func TestRegistry_FirstMatchWinsWithinGroup(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(0, NewEntry(matchAll, noopAction))
	second := NewEntry(matchAll, noopAction)
	r.Register(0, second)

	matches := r.Match(textEvent(1, "hi"))
	require.Len(t, matches, 1, "same group entries are mutually exclusive")
	assert.Equal(t, 0, matches[0].Group)
}

func TestRegistry_RegistrationOrderBreaksTies(t *testing.T) {
	r := NewRegistry(nil, nil)

	var fired []string
	mk := func(name string) Entry {
		return NewEntry(matchAll, func(context.Context, *event.Event) (*conversation.Transition, error) {
			fired = append(fired, name)
			return nil, nil
		})
	}
	r.Register(0, mk("first"))
	r.Register(0, mk("second"))

	matches := r.Match(textEvent(1, "hi"))
	require.Len(t, matches, 1)
	_, err := matches[0].Entry.Action(context.Background(), textEvent(1, "hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, fired)
}

func TestRegistry_GroupsAreIndependent(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(0, NewEntry(matchAll, noopAction))
	r.Register(1, NewEntry(matchAll, noopAction))
	r.Register(2, NewEntry(matchNone, noopAction))

	matches := r.Match(textEvent(1, "hi"))
	require.Len(t, matches, 2, "every group with a match contributes one entry")
	assert.Equal(t, 0, matches[0].Group)
	assert.Equal(t, 1, matches[1].Group)
}

func TestRegistry_GroupsEvaluatedAscending(t *testing.T) {
	r := NewRegistry(nil, nil)
	// Register out of numeric order
	r.Register(5, NewEntry(matchAll, noopAction))
	r.Register(-1, NewEntry(matchAll, noopAction))
	r.Register(2, NewEntry(matchAll, noopAction))

	matches := r.Match(textEvent(1, "hi"))
	require.Len(t, matches, 3)
	assert.Equal(t, -1, matches[0].Group)
	assert.Equal(t, 2, matches[1].Group)
	assert.Equal(t, 5, matches[2].Group)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(nil, nil)
	reg := r.Register(0, NewEntry(matchAll, noopAction))
	require.Equal(t, 1, r.Len())

	assert.True(t, r.Remove(reg))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Match(textEvent(1, "hi")))

	// Removing twice is a no-op
	assert.False(t, r.Remove(reg))
}

func TestRegistry_RemoveMiddleKeepsOrder(t *testing.T) {
	r := NewRegistry(nil, nil)

	var fired []string
	mk := func(name string) Entry {
		return NewEntry(matchAll, func(context.Context, *event.Event) (*conversation.Transition, error) {
			fired = append(fired, name)
			return nil, nil
		})
	}
	r.Register(0, mk("a"))
	regB := r.Register(0, mk("b"))
	r.Register(0, mk("c"))

	require.True(t, r.Remove(regB))

	matches := r.Match(textEvent(1, "hi"))
	require.Len(t, matches, 1)
	_, err := matches[0].Entry.Action(context.Background(), textEvent(1, "hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, fired)
}

func TestRegistry_PredicatePanicIsNonMatch(t *testing.T) {
	collect := sink.NewCollect()
	r := NewRegistry(collect, nil)

	r.Register(0, NewEntry(func(*event.Event) bool {
		panic("bad predicate")
	}, noopAction))
	r.Register(0, NewEntry(matchAll, noopAction))
	r.Register(1, NewEntry(matchAll, noopAction))

	matches := r.Match(textEvent(1, "hi"))

	// The panicking entry is skipped; the next entry in its group still
	// matches, and other groups are unaffected.
	require.Len(t, matches, 2)
	require.Equal(t, 1, collect.Count())
	assert.Equal(t, sink.KindPredicate, sink.KindOf(collect.Reports()[0].Err))
}

func TestRegistry_RequiresMatchAndAction(t *testing.T) {
	r := NewRegistry(nil, nil)
	assert.Panics(t, func() { r.Register(0, Entry{Match: matchAll}) })
	assert.Panics(t, func() { r.Register(0, Entry{Action: noopAction}) })
}

func TestOnce_NotPersistent(t *testing.T) {
	e := Once(matchAll, noopAction)
	assert.False(t, e.Persistent)
	assert.True(t, NewEntry(matchAll, noopAction).Persistent)
}
