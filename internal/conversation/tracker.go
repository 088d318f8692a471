// ABOUTME: Per-conversation-key state store with per-key mutual exclusion lanes
// ABOUTME: Handles state transitions, per-key timeouts, and idle entry eviction

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/candourhq/courier/internal/event"
)

// State is an opaque conversation state token. The zero value is the
// implicit initial state of every key.
type State string

// Initial is the state of a key that has never transitioned.
const Initial State = ""

// ErrStateConflict indicates a transition was attempted through a lane that
// was already released. Per-key serialization makes this unreachable in
// correct code.
var ErrStateConflict = errors.New("transition on released lane")

// Transition is the state change a handler action declares.
type Transition struct {
	// To is the next state for the key.
	To State

	// Timeout overrides the tracker's default timeout for this key. Zero
	// means use the default; negative disables the deadline.
	Timeout time.Duration

	// End terminates the conversation: the key reverts to the initial state
	// and its persisted record is removed.
	End bool
}

// To builds a plain transition into state s.
func To(s State) *Transition {
	return &Transition{To: s}
}

// End builds a terminating transition.
func End() *Transition {
	return &Transition{End: true}
}

// StateStore persists conversation states across restarts. Implementations
// live in the store package; a nil store means memory-only tracking.
type StateStore interface {
	SaveState(ctx context.Context, key string, state string, deadline time.Time) error
	DeleteState(ctx context.Context, key string) error
	LoadStates(ctx context.Context) (map[string]PersistedState, error)
}

// PersistedState is one stored (state, deadline) pair.
type PersistedState struct {
	State    string
	Deadline time.Time
}

// Config controls tracker behavior.
type Config struct {
	// DefaultTimeout is applied to keys after a transition unless the
	// transition overrides it. Zero disables deadlines.
	DefaultTimeout time.Duration

	// TimedOutState is the terminal state a key is reset to when its
	// deadline elapses with no handler execution.
	TimedOutState State

	// OnTimeout, if set, is called (on the sweep goroutine) for each key
	// that times out.
	OnTimeout func(key event.Key)

	// IdleAfter is how long an idle, stateless entry is kept before
	// eviction. Zero uses a 30 minute default.
	IdleAfter time.Duration

	// SweepInterval is how often the timeout/eviction sweep runs. Zero uses
	// a 30 second default.
	SweepInterval time.Duration

	// Store, if non-nil, persists states across restarts.
	Store StateStore

	// Logger for tracker diagnostics. Nil uses slog.Default.
	Logger *slog.Logger
}

const (
	defaultIdleAfter     = 30 * time.Minute
	defaultSweepInterval = 30 * time.Second
)

// lockEntry is one tracked conversation key. laneMu serializes handler
// execution for the key; the remaining fields are guarded by Tracker.mu.
type lockEntry struct {
	laneMu   sync.Mutex
	key      event.Key
	state    State
	deadline time.Time
	touched  time.Time
	refs     int
}

// Tracker owns all conversation state. Lookup reads, Apply is the sole
// mutator, and Acquire hands out per-key mutual-exclusion lanes so that a
// handler reading state, computing a transition, and writing it back never
// races with a concurrent handler for the same key.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	cfg     Config
	logger  *slog.Logger
	done    chan struct{}
	closed  bool
}

// NewTracker creates a tracker and starts its sweep goroutine. If a store is
// configured, previously persisted states are loaded so a restarted process
// resumes conversations where they left off.
func NewTracker(cfg Config) *Tracker {
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = defaultIdleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		entries: make(map[string]*lockEntry),
		cfg:     cfg,
		logger:  logger.With("component", "tracker"),
		done:    make(chan struct{}),
	}
	t.restore()
	go t.sweep()
	return t
}

// restore loads persisted states into memory.
func (t *Tracker) restore() {
	if t.cfg.Store == nil {
		return
	}
	states, err := t.cfg.Store.LoadStates(context.Background())
	if err != nil {
		t.logger.Error("loading persisted conversation states", "error", err)
		return
	}
	now := time.Now()
	for key, ps := range states {
		parsed, ok := event.ParseKey(key)
		if !ok {
			t.logger.Warn("skipping unparseable persisted key", "key", key)
			continue
		}
		t.entries[key] = &lockEntry{
			key:      parsed,
			state:    State(ps.State),
			deadline: ps.Deadline,
			touched:  now,
		}
	}
	if len(states) > 0 {
		t.logger.Info("restored conversation states", "count", len(states))
	}
}

// Lookup returns the current state for key, Initial if the key is untracked.
func (t *Tracker) Lookup(key event.Key) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key.String()]
	if !ok {
		return Initial
	}
	return e.state
}

// Lane is an acquired per-key mutual-exclusion token. The dispatcher holds a
// lane for the whole of a handler action plus its state transition.
type Lane struct {
	t        *Tracker
	e        *lockEntry
	released bool
}

// Acquire blocks until the key's lane is free and returns it. Every Acquire
// must be paired with Release.
func (t *Tracker) Acquire(key event.Key) *Lane {
	ks := key.String()

	t.mu.Lock()
	e, ok := t.entries[ks]
	if !ok {
		e = &lockEntry{key: key, touched: time.Now()}
		t.entries[ks] = e
	}
	e.refs++
	t.mu.Unlock()

	e.laneMu.Lock()
	return &Lane{t: t, e: e}
}

// State returns the key's current state as seen inside the lane.
func (l *Lane) State() State {
	l.t.mu.Lock()
	defer l.t.mu.Unlock()
	return l.e.state
}

// Key returns the conversation key the lane belongs to.
func (l *Lane) Key() event.Key {
	return l.e.key
}

// Release frees the lane. Safe to call once per Acquire.
func (l *Lane) Release() {
	if l.released {
		return
	}
	l.released = true
	l.e.laneMu.Unlock()

	l.t.mu.Lock()
	l.e.refs--
	l.e.touched = time.Now()
	l.t.mu.Unlock()
}

// Apply performs the transition declared by a handler action. It is the only
// state mutator. Returns ErrStateConflict if the lane was already released;
// that is an invariant violation, not a recoverable condition.
func (t *Tracker) Apply(l *Lane, tr *Transition) error {
	if l.released {
		return ErrStateConflict
	}
	if tr == nil {
		return nil
	}

	e := l.e
	ks := e.key.String()
	now := time.Now()

	t.mu.Lock()
	if tr.End {
		e.state = Initial
		e.deadline = time.Time{}
	} else {
		e.state = tr.To
		e.deadline = t.deadlineFor(tr, now)
	}
	e.touched = now
	state, deadline := e.state, e.deadline
	t.mu.Unlock()

	t.persist(ks, state, deadline, tr.End)
	return nil
}

// deadlineFor computes the new deadline from the transition and defaults.
func (t *Tracker) deadlineFor(tr *Transition, now time.Time) time.Time {
	timeout := tr.Timeout
	if timeout == 0 {
		timeout = t.cfg.DefaultTimeout
	}
	if timeout <= 0 {
		return time.Time{}
	}
	return now.Add(timeout)
}

// persist writes the state change through to the store, if configured.
// Persistence failures are logged, never propagated: state already advanced
// in memory and dispatch must not stall on storage.
func (t *Tracker) persist(key string, state State, deadline time.Time, end bool) {
	if t.cfg.Store == nil {
		return
	}
	ctx := context.Background()
	var err error
	if end {
		err = t.cfg.Store.DeleteState(ctx, key)
	} else {
		err = t.cfg.Store.SaveState(ctx, key, string(state), deadline)
	}
	if err != nil {
		t.logger.Error("persisting conversation state", "key", key, "error", err)
	}
}

// sweep runs in a background goroutine, expiring deadlines and evicting idle
// entries.
func (t *Tracker) sweep() {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runSweep()
		case <-t.done:
			return
		}
	}
}

// runSweep applies timeouts and evicts idle entries. A key mid-action
// (refs > 0) is never timed out or evicted.
func (t *Tracker) runSweep() {
	now := time.Now()
	var timedOut []event.Key

	t.mu.Lock()
	for ks, e := range t.entries {
		if e.refs > 0 {
			continue
		}
		if !e.deadline.IsZero() && now.After(e.deadline) {
			e.state = t.cfg.TimedOutState
			e.deadline = time.Time{}
			e.touched = now
			timedOut = append(timedOut, e.key)
			continue
		}
		idle := e.state == Initial || e.state == t.cfg.TimedOutState
		if idle && now.Sub(e.touched) > t.cfg.IdleAfter {
			delete(t.entries, ks)
		}
	}
	t.mu.Unlock()

	for _, key := range timedOut {
		t.persist(key.String(), t.cfg.TimedOutState, time.Time{}, false)
		t.logger.Debug("conversation timed out", "key", key.String())
		if t.cfg.OnTimeout != nil {
			t.cfg.OnTimeout(key)
		}
	}
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		close(t.done)
		t.closed = true
	}
}
