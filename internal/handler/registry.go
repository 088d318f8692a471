// ABOUTME: Ordered registry of (group, predicate, action) handler entries
// ABOUTME: Matching picks the first entry per group; groups are independent lanes

package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/candourhq/courier/internal/conversation"
	"github.com/candourhq/courier/internal/event"
	"github.com/candourhq/courier/internal/sink"
)

// Predicate decides whether an entry wants an event. Predicates must be
// side-effect-free; a panicking predicate is reported and treated as a
// non-match for that entry only.
type Predicate func(*event.Event) bool

// Action is the callable executed for a matched event. A non-nil transition
// is applied to the event's conversation key after the action returns
// without error.
type Action func(ctx context.Context, ev *event.Event) (*conversation.Transition, error)

// Entry is one registered handler.
type Entry struct {
	// Match selects events for this entry.
	Match Predicate

	// Action runs for selected events.
	Action Action

	// Persistent entries stay registered across dispatches. Non-persistent
	// entries are removed after their action has been dispatched once.
	Persistent bool
}

// NewEntry builds a persistent entry.
func NewEntry(match Predicate, action Action) Entry {
	return Entry{Match: match, Action: action, Persistent: true}
}

// Once builds an entry that is removed after its first dispatch.
func Once(match Predicate, action Action) Entry {
	return Entry{Match: match, Action: action}
}

// Registration identifies a registered entry for later removal.
type Registration struct {
	group int
	id    uuid.UUID
}

// Group returns the group the entry was registered in.
func (r Registration) Group() int {
	return r.group
}

type record struct {
	id    uuid.UUID
	entry Entry
}

// Registry holds handler entries as an ordered list of ordered lists:
// groups in ascending numeric order, entries within a group in registration
// order. Every group is evaluated independently for every event; within a
// group the first match wins. Safe for concurrent Register/Remove vs Match.
type Registry struct {
	mu     sync.RWMutex
	groups map[int][]*record
	order  []int
	sink   sink.Sink
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Predicate failures are reported to
// s. Pass nil logger for the default.
func NewRegistry(s sink.Sink, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		groups: make(map[int][]*record),
		sink:   s,
		logger: logger.With("component", "registry"),
	}
}

// Register inserts an entry at the end of the given group, preserving
// registration order within the group. Returns a handle usable with Remove.
func (r *Registry) Register(group int, e Entry) Registration {
	if e.Match == nil || e.Action == nil {
		panic("handler: entry requires both Match and Action")
	}

	rec := &record{id: uuid.New(), entry: e}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[group]; !ok {
		r.order = append(r.order, group)
		sort.Ints(r.order)
	}
	r.groups[group] = append(r.groups[group], rec)

	r.logger.Debug("handler registered",
		"group", group,
		"entries_in_group", len(r.groups[group]),
		"persistent", e.Persistent,
	)
	return Registration{group: group, id: rec.id}
}

// Remove deletes the entry identified by reg. Returns false if the entry was
// already removed.
func (r *Registry) Remove(reg Registration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, ok := r.groups[reg.group]
	if !ok {
		return false
	}
	for i, rec := range recs {
		if rec.id == reg.id {
			r.groups[reg.group] = append(recs[:i], recs[i+1:]...)
			if len(r.groups[reg.group]) == 0 {
				delete(r.groups, reg.group)
				r.dropGroupOrder(reg.group)
			}
			return true
		}
	}
	return false
}

// dropGroupOrder removes group from the sorted order slice. Caller holds mu.
func (r *Registry) dropGroupOrder(group int) {
	for i, g := range r.order {
		if g == group {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// Matched is one (group, entry) pair selected for an event.
type Matched struct {
	Group int
	Reg   Registration
	Entry Entry
}

// Match evaluates every group against ev and returns, in ascending group
// order, the first entry of each group whose predicate accepts the event.
// Groups with no match contribute nothing. Predicate panics are caught,
// reported, and treated as a non-match for that entry.
func (r *Registry) Match(ev *event.Event) []Matched {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Matched
	for _, group := range r.order {
		for _, rec := range r.groups[group] {
			if !r.safeMatch(rec, group, ev) {
				continue
			}
			out = append(out, Matched{
				Group: group,
				Reg:   Registration{group: group, id: rec.id},
				Entry: rec.entry,
			})
			break
		}
	}
	return out
}

// safeMatch runs a predicate with panic recovery.
func (r *Registry) safeMatch(rec *record, group int, ev *event.Event) (matched bool) {
	defer func() {
		if p := recover(); p != nil {
			matched = false
			if r.sink != nil {
				r.sink.Report("registry", sink.Predicate(fmt.Errorf("predicate panic in group %d: %v", group, p)))
			}
		}
	}()
	return rec.entry.Match(ev)
}

// Len returns the total number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, recs := range r.groups {
		n += len(recs)
	}
	return n
}
